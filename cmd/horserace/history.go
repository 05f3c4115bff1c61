package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/lox/horserace/internal/history"
)

// HistoryCmd prints races recorded with --history-file
type HistoryCmd struct {
	File  string `arg:"" type:"existingfile" help:"History file to read"`
	Limit int    `help:"Only print the last N races (0 = all)"`
}

func (c *HistoryCmd) Run() error {
	races, err := history.Load(c.File)
	if err != nil {
		return err
	}
	if len(races) == 0 {
		return fmt.Errorf("no races found in %s", c.File)
	}

	start := 0
	if c.Limit > 0 && c.Limit < len(races) {
		start = len(races) - c.Limit
	}

	wins := make(map[string]int)
	for i := start; i < len(races); i++ {
		if i > start {
			fmt.Println()
		}
		if err := history.Render(os.Stdout, i+1, &races[i]); err != nil {
			return err
		}
		for j, sym := range races[i].Symbols {
			if sym == races[i].Winner && j < len(races[i].Names) {
				wins[races[i].Names[j]]++
			}
		}
	}

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf(" %d races ", len(races)-start)))
	names := make([]string, 0, len(wins))
	for name := range wins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if wins[names[i]] != wins[names[j]] {
			return wins[names[i]] > wins[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Printf("%-12s %d wins\n", name, wins[name])
	}
	return nil
}
