package main

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/scorepulse/internal/dataset"
	"github.com/rewired-gh/scorepulse/internal/training"
)

func printBanner(title string) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
}

func printRule() {
	fmt.Println(strings.Repeat("-", 80))
}

// printEntries displays one line per (target, algorithm) contestant
func printEntries(entries []training.Entry) {
	fmt.Printf("  %-12s %-4s %-9s %10s\n", "target", "algo", "metric", "score")
	for _, e := range entries {
		if e.Err != nil {
			fmt.Printf("  %-12s %-4s %-9s %10s  (%v)\n", e.Target, e.Kind, e.Metric, "failed", e.Err)
			continue
		}
		fmt.Printf("  %-12s %-4s %-9s %10.4f\n", e.Target, e.Kind, e.Metric, e.Score)
	}
}

// printWinners displays the saved winner per target
func printWinners(tour *training.Tournament) {
	for _, target := range dataset.Targets {
		w, ok := tour.Winners[target]
		if !ok {
			fmt.Printf("  %-12s no finisher\n", target)
			continue
		}
		fmt.Printf("  %-12s %-4s (%s %.4f)\n", target, w.Kind, w.Metric, w.Score)
	}
	fmt.Printf("\n  %d artifacts saved\n", len(tour.Saved))
	for _, p := range tour.Saved {
		fmt.Printf("    %s\n", p)
	}
}
