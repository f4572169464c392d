package dataset

import (
	"fmt"

	"github.com/rewired-gh/scorepulse/internal/features"
	"github.com/rewired-gh/scorepulse/internal/models"
)

// Split names, also used as file stems.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Splits holds the three chronological partitions.
type Splits struct {
	Train []features.Row
	Val   []features.Row
	Test  []features.Row
}

// Len returns the total number of rows across partitions.
func (s *Splits) Len() int {
	return len(s.Train) + len(s.Val) + len(s.Test)
}

// Split partitions rows by position: the first floor(n*train) rows, the next rows up
// to floor(n*(train+val)), then the rest. Rows must already be in date order.
func Split(rows []features.Row, trainFrac, valFrac float64) (*Splits, error) {
	if trainFrac <= 0 || valFrac < 0 || trainFrac+valFrac > 1 {
		return nil, fmt.Errorf("invalid split fractions %.2f/%.2f", trainFrac, valFrac)
	}
	n := len(rows)
	trainEnd := int(float64(n) * trainFrac)
	valEnd := int(float64(n) * (trainFrac + valFrac))
	if valEnd > n {
		valEnd = n
	}
	return &Splits{
		Train: rows[:trainEnd:trainEnd],
		Val:   rows[trainEnd:valEnd:valEnd],
		Test:  rows[valEnd:],
	}, nil
}

// PrepareStats reports what the strict preparation pass discarded.
type PrepareStats struct {
	Input      int
	Unlabeled  int
	Incomplete int
	Output     int
}

// Prepare runs the batch pipeline: featurize, label, then drop any row with a
// missing feature or target.
func Prepare(matches []models.Match, gen *features.Generator) ([]features.Row, PrepareStats) {
	st := PrepareStats{Input: len(matches)}
	rows := gen.Generate(matches)
	labeled := Label(rows)
	st.Unlabeled = len(rows) - len(labeled)
	clean, dropped := DropIncomplete(labeled)
	st.Incomplete = dropped
	st.Output = len(clean)
	return clean, st
}
