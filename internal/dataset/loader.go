// Package dataset reads raw match files, labels featurized rows with training
// targets, splits them chronologically and persists the splits.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rewired-gh/scorepulse/internal/models"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrMissingColumns is returned when a match file lacks required columns.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrBadDate is returned when a date cell cannot be parsed.
	ErrBadDate = errors.New("unparseable match date")
)

// Canonical column names and the aliases accepted for them.
var columnAliases = map[string][]string{
	"MatchDate":   {"MatchDate", "Date"},
	"Division":    {"Division", "Div"},
	"HomeTeam":    {"HomeTeam"},
	"AwayTeam":    {"AwayTeam"},
	"FTHome":      {"FTHome", "FTHG"},
	"FTAway":      {"FTAway", "FTAG"},
	"FTResult":    {"FTResult", "FTR"},
	"HomeShots":   {"HomeShots", "HS"},
	"AwayShots":   {"AwayShots", "AS"},
	"HomeCorners": {"HomeCorners", "HC"},
	"AwayCorners": {"AwayCorners", "AC"},
	"HomeElo":     {"HomeElo"},
	"AwayElo":     {"AwayElo"},
	"OddHome":     {"OddHome"},
	"OddDraw":     {"OddDraw"},
	"OddAway":     {"OddAway"},
	"Form3Home":   {"Form3Home"},
	"Form5Home":   {"Form5Home"},
	"Form3Away":   {"Form3Away"},
	"Form5Away":   {"Form5Away"},
}

// RequiredColumns must be present in every match file.
var RequiredColumns = []string{
	"MatchDate", "HomeTeam", "AwayTeam", "FTHome", "FTAway", "FTResult",
	"HomeShots", "AwayShots", "HomeCorners", "AwayCorners",
	"HomeElo", "AwayElo", "OddHome", "OddDraw", "OddAway",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02/01/06",
}

// LoadResult is the outcome of reading one match file.
type LoadResult struct {
	Matches             []models.Match
	Rows                int // data rows read
	DroppedMissing      int // rows without goals or result
	DroppedInconsistent int // rows whose result contradicts the score
	Duplicates          int // earlier rows replaced by a later row with the same key
}

// LoadFile reads a match CSV from disk.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

// Load parses a match CSV. Input that is not valid UTF-8 is decoded as Latin-1.
// Rows missing goals or result are dropped and counted; a missing required column or
// an unparseable date aborts the whole file.
func Load(r io.Reader) (*LoadResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read match data: %w", err)
	}
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		res.Rows++

		m, ok, err := parseRecord(record, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			res.DroppedMissing++
			continue
		}
		if m.Result != models.ResultFromGoals(m.FTHome, m.FTAway) {
			res.DroppedInconsistent++
			continue
		}
		res.Matches = append(res.Matches, m)
	}

	before := len(res.Matches)
	res.Matches = Dedupe(res.Matches)
	res.Duplicates = before - len(res.Matches)
	return res, nil
}

// Dedupe keeps the last occurrence of each (date, home, away) key, preserving the
// order in which surviving rows first appeared.
func Dedupe(matches []models.Match) []models.Match {
	last := make(map[string]int, len(matches))
	for i := range matches {
		last[matches[i].Key()] = i
	}
	out := make([]models.Match, 0, len(last))
	for i := range matches {
		if last[matches[i].Key()] == i {
			out = append(out, matches[i])
		}
	}
	return out
}

func decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode latin-1 input: %w", err)
	}
	return string(decoded), nil
}

func resolveColumns(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}

	idx := make(map[string]int, len(columnAliases))
	for canonical, aliases := range columnAliases {
		for _, a := range aliases {
			if p, ok := pos[a]; ok {
				idx[canonical] = p
				break
			}
		}
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(record []string, idx map[string]int) (models.Match, bool, error) {
	cell := func(col string) string {
		p, ok := idx[col]
		if !ok || p >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[p])
	}

	date, err := ParseDate(cell("MatchDate"))
	if err != nil {
		return models.Match{}, false, err
	}

	m := models.NewMatch(date, cell("HomeTeam"), cell("AwayTeam"))
	m.Division = cell("Division")

	home, okH := parseGoals(cell("FTHome"))
	away, okA := parseGoals(cell("FTAway"))
	result := models.NormalizeResult(cell("FTResult"))
	if !okH || !okA || result == "" || m.HomeTeam == "" || m.AwayTeam == "" {
		return m, false, nil
	}
	m.FTHome, m.FTAway, m.Result = home, away, result

	numeric := map[string]*float64{
		"HomeShots": &m.HomeShots, "AwayShots": &m.AwayShots,
		"HomeCorners": &m.HomeCorners, "AwayCorners": &m.AwayCorners,
		"HomeElo": &m.HomeElo, "AwayElo": &m.AwayElo,
		"OddHome": &m.OddHome, "OddDraw": &m.OddDraw, "OddAway": &m.OddAway,
		"Form3Home": &m.Form3Home, "Form5Home": &m.Form5Home,
		"Form3Away": &m.Form3Away, "Form5Away": &m.Form5Away,
	}
	for col, dst := range numeric {
		*dst = parseFloat(cell(col))
	}
	return m, true, nil
}

// ParseDate accepts ISO dates (optionally with a time) and day-first slash dates.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// maxGoals bounds a single side's score; anything larger is a corrupt cell.
const maxGoals = 99

func parseGoals(s string) (int, bool) {
	f := parseFloat(s)
	if math.IsNaN(f) || f < 0 || f > maxGoals || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
