package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/models"
)

var baseColumns = []string{"MatchDate", "Division", "HomeTeam", "AwayTeam", "FTHome", "FTAway", "FTResult"}

// SplitPath returns the CSV path for a named split.
func SplitPath(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

// SplitsExist reports whether all three split files are present in dir.
func SplitsExist(dir string) bool {
	for _, name := range []string{SplitTrain, SplitVal, SplitTest} {
		if _, err := os.Stat(SplitPath(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// WriteSplits persists the three partitions as CSV files in dir.
func WriteSplits(dir string, s *Splits) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create splits directory: %w", err)
	}
	for name, rows := range map[string][]features.Row{SplitTrain: s.Train, SplitVal: s.Val, SplitTest: s.Test} {
		if err := writeRows(SplitPath(dir, name), rows); err != nil {
			return fmt.Errorf("failed to write %s split: %w", name, err)
		}
	}
	return nil
}

func writeRows(path string, rows []features.Row) error {
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	if err := WriteRows(f, rows); err != nil {
		f.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

// WriteRows writes featurized, labeled rows with the split file schema.
func WriteRows(w io.Writer, rows []features.Row) error {
	valueCols := splitValueColumns()
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, baseColumns...), valueCols...)); err != nil {
		return err
	}

	record := make([]string, len(baseColumns)+len(valueCols))
	for _, r := range rows {
		m := r.Match
		record[0] = m.Date.Format("2006-01-02")
		record[1] = m.Division
		record[2] = m.HomeTeam
		record[3] = m.AwayTeam
		record[4] = strconv.Itoa(m.FTHome)
		record[5] = strconv.Itoa(m.FTAway)
		record[6] = m.Result
		for i, col := range valueCols {
			record[len(baseColumns)+i] = formatValue(r.Value(col))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSplit loads a named split from dir.
func ReadSplit(dir, name string) ([]features.Row, error) {
	f, err := os.Open(SplitPath(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s split: %w", name, err)
	}
	defer f.Close()
	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s split: %w", name, err)
	}
	return rows, nil
}

// ReadSplits loads all three partitions from dir.
func ReadSplits(dir string) (*Splits, error) {
	var s Splits
	var err error
	if s.Train, err = ReadSplit(dir, SplitTrain); err != nil {
		return nil, err
	}
	if s.Val, err = ReadSplit(dir, SplitVal); err != nil {
		return nil, err
	}
	if s.Test, err = ReadSplit(dir, SplitTest); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadRows parses rows written by WriteRows. Every non-base column becomes a
// numeric value; columns absent from the header are absent from the rows.
func ReadRows(r io.Reader) ([]features.Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	for _, c := range []string{"MatchDate", "HomeTeam", "AwayTeam"} {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumns, c)
		}
	}
	isBase := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		isBase[c] = true
	}

	var rows []features.Row
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			if p, ok := pos[col]; ok && p < len(record) {
				return record[p]
			}
			return ""
		}

		date, err := ParseDate(get("MatchDate"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m := models.NewMatch(date, get("HomeTeam"), get("AwayTeam"))
		m.Division = get("Division")
		m.FTHome, _ = parseGoals(get("FTHome"))
		m.FTAway, _ = parseGoals(get("FTAway"))
		m.Result = models.NormalizeResult(get("FTResult"))

		values := make(map[string]float64, len(header))
		for i, h := range header {
			if isBase[h] || i >= len(record) {
				continue
			}
			values[h] = parseFloat(record[i])
		}
		m.OddHome = valueOr(values, features.OddHome)
		m.OddDraw = valueOr(values, features.OddDraw)
		m.OddAway = valueOr(values, features.OddAway)
		m.HomeElo = valueOr(values, features.HomeElo)
		m.AwayElo = valueOr(values, features.AwayElo)
		rows = append(rows, features.Row{Match: m, Values: values})
	}
	return rows, nil
}

func splitValueColumns() []string {
	cols := append([]string{}, features.Names...)
	cols = append(cols, features.Extra...)
	return append(cols, TargetColumns()...)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func valueOr(values map[string]float64, col string) float64 {
	if v, ok := values[col]; ok {
		return v
	}
	return math.NaN()
}
