package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load reads every race from a history file in section order
func Load(path string) ([]RaceHistory, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	sections := make(map[string]RaceHistory)
	if _, err := toml.Decode(string(data), &sections); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", filepath.Base(path), err)
	}

	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})

	races := make([]RaceHistory, 0, len(keys))
	for _, k := range keys {
		races = append(races, sections[k])
	}
	return races, nil
}
