// Package psmio reads PSM features and target/decoy labels from
// delimited text files, and writes the computed scores.
package psmio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptyInput   = errors.New("psmio: no data")
	ErrColumnRange  = errors.New("psmio: invalid column range")
	ErrLengthDiffer = errors.New("psmio: number of rows differ")
	ErrInvalidLabel = errors.New("psmio: label must be 1 (target) or -1 (decoy)")
)

// ReadFeatures reads a numeric matrix without header, one PSM per line
func ReadFeatures(r io.Reader, delimiter rune) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var data []float64
	cols := -1
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if cols < 0 {
			cols = len(record)
		}
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("psmio: line %d, column %d: %w", line, j+1, err)
			}
			data = append(data, v)
		}
	}
	if cols <= 0 {
		return nil, ErrEmptyInput
	}
	return mat.NewDense(len(data)/cols, cols, data), nil
}

// ReadLabels reads one label per line, taken from the first
// tab separated field
func ReadLabels(r io.Reader) ([]int, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	var labels []int
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		l, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("psmio: line %d: %w", line, err)
		}
		if l != 1 && l != -1 {
			return nil, fmt.Errorf("%w: line %d: %d", ErrInvalidLabel, line, l)
		}
		labels = append(labels, l)
	}
	if len(labels) == 0 {
		return nil, ErrEmptyInput
	}
	return labels, nil
}

// SelectColumns returns a copy of columns lo to hi (inclusive) of x
func SelectColumns(x *mat.Dense, lo, hi int) (*mat.Dense, error) {
	r, c := x.Dims()
	if lo < 0 || hi >= c || lo > hi {
		return nil, fmt.Errorf("%w: %d:%d for %d columns", ErrColumnRange, lo, hi, c)
	}
	return mat.DenseCopyOf(x.Slice(0, r, lo, hi+1)), nil
}

// scoreRow is one line of the score output
type scoreRow struct {
	Row   int     `csv:"row"`
	Label int     `csv:"label"`
	Score float64 `csv:"score"`
}

// WriteScores writes a CSV table with the original row index, the
// target/decoy label and the score of each PSM
func WriteScores(w io.Writer, labels []int, scores []float64) error {
	if len(labels) != len(scores) {
		return fmt.Errorf("%w: %d labels, %d scores", ErrLengthDiffer, len(labels), len(scores))
	}
	rows := make([]scoreRow, len(scores))
	for i := range rows {
		rows[i] = scoreRow{Row: i, Label: labels[i], Score: scores[i]}
	}
	return gocsv.Marshal(rows, w)
}
