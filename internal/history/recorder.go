package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/horserace/internal/meeting"
)

// maxFlushFailures disables a recorder whose file keeps failing
const maxFlushFailures = 3

// Recorder appends every settled race of a meeting to a history file. Races
// are buffered and written every FlushRaces races and on Close.
type Recorder struct {
	path       string
	flushRaces int
	logger     *log.Logger
	clock      quartz.Clock

	mu       sync.Mutex
	flushMu  sync.Mutex
	buffer   []*RaceHistory
	section  int
	failures int
	disabled bool
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithClock sets the clock used to timestamp races
func WithClock(clock quartz.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

// WithFlushRaces writes the buffer every n races; 1 writes each race as it settles
func WithFlushRaces(n int) RecorderOption {
	return func(r *Recorder) { r.flushRaces = n }
}

// NewRecorder opens a recorder for path, creating its directory. Section
// numbering continues from any races already in the file.
func NewRecorder(path string, logger *log.Logger, opts ...RecorderOption) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("history: path is required")
	}

	r := &Recorder{
		path:       path,
		flushRaces: 1,
		logger:     logger.WithPrefix("history"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = quartz.NewReal()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	section, err := readLastSection(path)
	if err != nil {
		return nil, fmt.Errorf("history: read sections: %w", err)
	}
	r.section = section
	return r, nil
}

// Path returns the file races are written to
func (r *Recorder) Path() string { return r.path }

// OnEvent implements meeting.EventSubscriber
func (r *Recorder) OnEvent(event meeting.Event) {
	end, ok := event.(meeting.RaceEndEvent)
	if !ok || end.Outcome == nil || end.Outcome.Result == nil {
		return
	}

	r.mu.Lock()
	if r.disabled {
		r.mu.Unlock()
		return
	}
	r.buffer = append(r.buffer, FromOutcome(end.Outcome, r.clock.Now()))
	due := r.flushRaces > 0 && len(r.buffer) >= r.flushRaces
	r.mu.Unlock()

	if due {
		if err := r.Flush(); err != nil {
			r.logger.Error("Failed to write race history", "path", r.path, "error", err)
		}
	}
}

// Flush writes buffered races to disk
func (r *Recorder) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.disabled || len(r.buffer) == 0 {
		r.mu.Unlock()
		return nil
	}
	races := append([]*RaceHistory(nil), r.buffer...)
	section := r.section
	r.mu.Unlock()

	written, err := r.write(section, races)
	r.finishFlush(written, section+written, err)
	return err
}

func (r *Recorder) write(section int, races []*RaceHistory) (int, error) {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	written := 0
	for _, h := range races {
		if err := writeSection(w, section+written+1, h); err != nil {
			_ = w.Flush()
			return written, err
		}
		written++
	}
	return written, w.Flush()
}

// finishFlush drops written races from the buffer and tracks failures
func (r *Recorder) finishFlush(written, section int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = r.buffer[written:]
	r.section = section

	if err == nil {
		r.failures = 0
		return
	}
	r.failures++
	if r.failures >= maxFlushFailures {
		r.logger.Warn("Disabling race history after repeated failures", "path", r.path, "dropped", len(r.buffer))
		r.buffer = nil
		r.disabled = true
	}
}

// Close flushes remaining races
func (r *Recorder) Close() error {
	return r.Flush()
}

// Disabled reports whether the recorder gave up writing
func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

func writeSection(w *bufio.Writer, section int, h *RaceHistory) error {
	if _, err := fmt.Fprintf(w, "[%d]\n", section); err != nil {
		return err
	}
	if err := Encode(w, h); err != nil {
		return err
	}
	_, err := w.WriteString("\n")
	return err
}

// readLastSection finds the highest [n] header in an existing file
func readLastSection(path string) (int, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer file.Close()

	last := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if n, ok := sectionNumber(scanner.Text()); ok && n > last {
			last = n
		}
	}
	return last, scanner.Err()
}

func sectionNumber(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 3 || line[0] != '[' || line[len(line)-1] != ']' {
		return 0, false
	}
	n, err := strconv.Atoi(line[1 : len(line)-1])
	return n, err == nil
}
