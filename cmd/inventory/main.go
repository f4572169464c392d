package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/scorepulse/internal/config"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/predictor"
	"github.com/rewired-gh/scorepulse/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	top        = flag.Int("top", 10, "Number of most active teams to list")
)

// divisionStats holds inventory data for one division
type divisionStats struct {
	code     string
	league   predictor.League
	matches  int
	teams    map[string]struct{}
	goals    int
	homeWins int
	draws    int
	first    time.Time
	last     time.Time
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	matches, err := store.Matches(context.Background())
	if err != nil {
		logger.Fatal("Failed to read matches: %v", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("MATCH STORE INVENTORY - %s\n", cfg.Storage.DBPath)
	fmt.Println(strings.Repeat("=", 80))

	if len(matches) == 0 {
		fmt.Println("\nNo matches stored yet. Import data with the importer first.")
		return
	}

	fmt.Printf("\nTotal matches: %d (%s to %s)\n\n", len(matches),
		matches[0].Date.Format(time.DateOnly), matches[len(matches)-1].Date.Format(time.DateOnly))

	analyzeDivisions(matches)
	analyzeTeams(matches, *top)
}

func analyzeDivisions(matches []models.Match) {
	byCode := make(map[string]*divisionStats)
	for _, m := range matches {
		s, ok := byCode[m.Division]
		if !ok {
			s = &divisionStats{code: m.Division, league: predictor.LeagueOf(m.Division), teams: make(map[string]struct{}), first: m.Date}
			byCode[m.Division] = s
		}
		s.matches++
		s.teams[m.HomeTeam] = struct{}{}
		s.teams[m.AwayTeam] = struct{}{}
		s.goals += m.TotalGoals()
		switch m.Result {
		case models.ResultHome:
			s.homeWins++
		case models.ResultDraw:
			s.draws++
		}
		if m.Date.Before(s.first) {
			s.first = m.Date
		}
		if m.Date.After(s.last) {
			s.last = m.Date
		}
	}

	stats := make([]*divisionStats, 0, len(byCode))
	for _, s := range byCode {
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].matches > stats[j].matches
	})

	fmt.Printf("%-6s %-14s %-18s %-8s %-6s %-10s %-8s %-8s %s\n",
		"Div", "Country", "League", "Matches", "Teams", "Goals/m", "Home%", "Draw%", "Last match")
	fmt.Println(strings.Repeat("-", 100))
	for _, s := range stats {
		code := s.code
		if code == "" {
			code = "-"
		}
		n := float64(s.matches)
		fmt.Printf("%-6s %-14s %-18s %-8d %-6d %-10.2f %-8.1f %-8.1f %s\n",
			code, truncate(s.league.Country, 14), truncate(s.league.Name, 18), s.matches, len(s.teams),
			float64(s.goals)/n, float64(s.homeWins)/n*100, float64(s.draws)/n*100, s.last.Format(time.DateOnly))
	}
}

func analyzeTeams(matches []models.Match, limit int) {
	played := make(map[string]int)
	for _, m := range matches {
		played[m.HomeTeam]++
		played[m.AwayTeam]++
	}

	type teamCount struct {
		name  string
		count int
	}
	teams := make([]teamCount, 0, len(played))
	for name, c := range played {
		teams = append(teams, teamCount{name, c})
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].count != teams[j].count {
			return teams[i].count > teams[j].count
		}
		return teams[i].name < teams[j].name
	})

	fmt.Printf("\n%d distinct teams. Most matches played:\n", len(teams))
	fmt.Println(strings.Repeat("-", 40))
	for i, t := range teams {
		if i >= limit {
			break
		}
		fmt.Printf("  %-28s %5d\n", truncate(t.name, 28), t.count)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
