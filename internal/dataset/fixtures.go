package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/scorepulse/internal/models"
)

// LoadFixtures reads the upcoming schedule (Date, HomeTeam, AwayTeam, League) and
// returns at most count fixtures dated today or later, soonest first. A missing
// schedule file is not an error.
func LoadFixtures(path string, now time.Time, count int) ([]models.Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Fixture{}, nil
		}
		return nil, fmt.Errorf("failed to open schedule: %w", err)
	}
	defer f.Close()
	return ReadFixtures(f, now, count)
}

// ReadFixtures parses a schedule from r. See LoadFixtures.
func ReadFixtures(r io.Reader, now time.Time, count int) ([]models.Fixture, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return []models.Fixture{}, nil
		}
		return nil, fmt.Errorf("failed to read schedule header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range []string{"Date", "HomeTeam", "AwayTeam"} {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	type dated struct {
		at time.Time
		fx models.Fixture
	}
	var upcoming []dated
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read schedule: %w", err)
		}
		get := func(col string) string {
			if p, ok := pos[col]; ok && p < len(record) {
				return strings.TrimSpace(record[p])
			}
			return ""
		}
		at, err := ParseDate(get("Date"))
		if err != nil || at.Before(today) {
			continue
		}
		upcoming = append(upcoming, dated{at: at, fx: models.Fixture{
			Date:   at.Format("2006-01-02"),
			Home:   get("HomeTeam"),
			Away:   get("AwayTeam"),
			League: get("League"),
		}})
	}

	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].at.Before(upcoming[j].at) })
	if count > 0 && len(upcoming) > count {
		upcoming = upcoming[:count]
	}
	out := make([]models.Fixture, len(upcoming))
	for i, u := range upcoming {
		out[i] = u.fx
	}
	return out, nil
}
