package psm

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Label values. Target is only used for raw input, after relabeling a
// target is either Positive or Unlabeled.
const (
	Decoy     = -1
	Unlabeled = 0
	Positive  = 1
	Target    = Positive
)

var (
	ErrDimensionMismatch = errors.New("psm: dimension mismatch")
	ErrInvalidLabel      = errors.New("psm: invalid target/decoy label")
	ErrNoFeatures        = errors.New("psm: dataset has no feature columns")
	ErrInvalidRowIndex   = errors.New("psm: invalid row index")
)

// Dataset holds the PSM feature matrix, the working labels and, for each
// row, the index of the row in the dataset it was originally created from.
// Only the labels are mutable.
type Dataset struct {
	x     *mat.Dense // nil when the dataset has no rows
	cols  int
	y     []int
	rowID []int
	decoy []bool // target/decoy assignment of the raw input
}

// New creates a dataset from a raw feature matrix and target/decoy labels
// (+1 target, -1 decoy). The matrix is copied, so later changes by the
// caller don't affect the dataset.
func New(x mat.Matrix, y []int) (*Dataset, error) {
	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d labels", ErrDimensionMismatch, r, len(y))
	}
	if c == 0 {
		return nil, ErrNoFeatures
	}
	d := &Dataset{
		cols:  c,
		y:     make([]int, r),
		rowID: make([]int, r),
		decoy: make([]bool, r),
	}
	if r > 0 {
		d.x = mat.DenseCopyOf(x)
	}
	for i, l := range y {
		switch l {
		case Target:
		case Decoy:
			d.decoy[i] = true
		default:
			return nil, fmt.Errorf("%w: %d at row %d", ErrInvalidLabel, l, i)
		}
		d.y[i] = l
		d.rowID[i] = i
	}
	return d, nil
}

// Rows returns the number of PSMs
func (d *Dataset) Rows() int {
	return len(d.y)
}

// Cols returns the number of feature columns
func (d *Dataset) Cols() int {
	return d.cols
}

// X returns the feature matrix, or nil if the dataset is empty.
// The matrix must not be modified.
func (d *Dataset) X() mat.Matrix {
	if d.x == nil {
		return nil
	}
	return d.x
}

// Labels returns a copy of the current labels
func (d *Dataset) Labels() []int {
	l := make([]int, len(d.y))
	copy(l, d.y)
	return l
}

// Label returns the current label of row i
func (d *Dataset) Label(i int) int {
	return d.y[i]
}

// RowID returns the original row index of row i
func (d *Dataset) RowID(i int) int {
	return d.rowID[i]
}

// RowIDs returns a copy of the original row indices
func (d *Dataset) RowIDs() []int {
	ids := make([]int, len(d.rowID))
	copy(ids, d.rowID)
	return ids
}

// IsDecoy reports whether row i was a decoy in the raw input
func (d *Dataset) IsDecoy(i int) bool {
	return d.decoy[i]
}

// SetLabels replaces the working labels. A decoy can't become positive.
func (d *Dataset) SetLabels(labels []int) error {
	if len(labels) != len(d.y) {
		return fmt.Errorf("%w: %d labels for %d rows", ErrDimensionMismatch, len(labels), len(d.y))
	}
	for i, l := range labels {
		if l < Decoy || l > Positive || (d.decoy[i] && l == Positive) {
			return fmt.Errorf("%w: %d at row %d", ErrInvalidLabel, l, i)
		}
	}
	copy(d.y, labels)
	return nil
}

// Column returns a copy of feature column j
func (d *Dataset) Column(j int) []float64 {
	col := make([]float64, len(d.y))
	if d.x != nil {
		mat.Col(col, j, d.x)
	}
	return col
}

// Clone returns a deep copy, labels included
func (d *Dataset) Clone() *Dataset {
	c := &Dataset{
		cols:  d.cols,
		y:     d.Labels(),
		rowID: d.RowIDs(),
		decoy: make([]bool, len(d.decoy)),
	}
	copy(c.decoy, d.decoy)
	if d.x != nil {
		c.x = mat.DenseCopyOf(d.x)
	}
	return c
}

// Filter returns a new dataset with the rows for which mask is true.
// Row order, and thus the order of row ids, is preserved.
func (d *Dataset) Filter(mask []bool) (*Dataset, error) {
	if len(mask) != len(d.y) {
		return nil, fmt.Errorf("%w: mask of length %d for %d rows", ErrDimensionMismatch, len(mask), len(d.y))
	}
	rows := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			rows = append(rows, i)
		}
	}
	return d.subset(rows), nil
}

// Remove deletes the given rows in place. Indices refer to the current
// rows of d and must be distinct.
func (d *Dataset) Remove(indices []int) error {
	drop := make([]bool, len(d.y))
	for _, i := range indices {
		if i < 0 || i >= len(d.y) || drop[i] {
			return fmt.Errorf("%w: %d", ErrInvalidRowIndex, i)
		}
		drop[i] = true
	}
	rows := make([]int, 0, len(d.y)-len(indices))
	for i, dropped := range drop {
		if !dropped {
			rows = append(rows, i)
		}
	}
	*d = *d.subset(rows)
	return nil
}

// RemoveUnlabeled deletes all rows with label Unlabeled and returns
// the number of rows removed
func (d *Dataset) RemoveUnlabeled() int {
	var unlabeled []int
	for i, l := range d.y {
		if l == Unlabeled {
			unlabeled = append(unlabeled, i)
		}
	}
	if len(unlabeled) > 0 {
		// indices are distinct and in range, Remove can't fail
		_ = d.Remove(unlabeled)
	}
	return len(unlabeled)
}

// subset builds a dataset from the given rows, which must be in
// increasing order
func (d *Dataset) subset(rows []int) *Dataset {
	s := &Dataset{
		cols:  d.cols,
		y:     make([]int, len(rows)),
		rowID: make([]int, len(rows)),
		decoy: make([]bool, len(rows)),
	}
	if len(rows) > 0 {
		s.x = mat.NewDense(len(rows), d.cols, nil)
	}
	for k, i := range rows {
		s.x.SetRow(k, d.x.RawRowView(i))
		s.y[k] = d.y[i]
		s.rowID[k] = d.rowID[i]
		s.decoy[k] = d.decoy[i]
	}
	return s
}

// ColumnSummary describes the distribution of one feature column
type ColumnSummary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summary gives an overview of the data in a dataset
type Summary struct {
	Rows      int
	Targets   int
	Decoys    int
	Positives int // targets currently labeled positive
	Columns   []ColumnSummary
}

// Summarize computes counts and per column statistics
func (d *Dataset) Summarize() Summary {
	s := Summary{Rows: len(d.y), Columns: make([]ColumnSummary, d.cols)}
	for i, isDecoy := range d.decoy {
		if isDecoy {
			s.Decoys++
		} else {
			s.Targets++
			if d.y[i] == Positive {
				s.Positives++
			}
		}
	}
	if len(d.y) == 0 {
		return s
	}
	for j := range s.Columns {
		col := d.Column(j)
		cs := &s.Columns[j]
		cs.Mean, cs.StdDev = stat.MeanStdDev(col, nil)
		cs.Min, cs.Max = col[0], col[0]
		for _, v := range col {
			if v < cs.Min {
				cs.Min = v
			}
			if v > cs.Max {
				cs.Max = v
			}
		}
	}
	return s
}
