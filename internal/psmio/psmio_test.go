package psmio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestReadFeatures(t *testing.T) {
	in := "1.5, 2,3\n4,5e1,-6\n"
	x, err := ReadFeatures(strings.NewReader(in), ',')
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	r, c := x.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("Expected 2x3 matrix, got %dx%d", r, c)
	}
	if diff := cmp.Diff([]float64{1.5, 2, 3, 4, 50, -6}, x.RawMatrix().Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}

	x, err = ReadFeatures(strings.NewReader("1\t2\n3\t4\n"), '\t')
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	if v := x.At(1, 1); v != 4 {
		t.Errorf("Expected 4, got %f", v)
	}
}

func TestReadFeaturesErrors(t *testing.T) {
	if _, err := ReadFeatures(strings.NewReader("1,2\n3\n"), ','); err == nil {
		t.Errorf("Expected error for ragged rows")
	}
	if _, err := ReadFeatures(strings.NewReader("1,x\n"), ','); err == nil {
		t.Errorf("Expected error for non-numeric field")
	}
	if _, err := ReadFeatures(strings.NewReader(""), ','); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got: %v", err)
	}
}

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(strings.NewReader("1\n-1\textra\n 1\n"))
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if diff := cmp.Diff([]int{1, -1, 1}, labels); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
	if _, err = ReadLabels(strings.NewReader("1\ntarget\n")); err == nil {
		t.Errorf("Expected error for non-numeric label")
	}
	_, err = ReadLabels(strings.NewReader("1\n-1\n0\n"))
	if !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("Expected ErrInvalidLabel, got: %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Error should name the line: %v", err)
	}
}

func TestSelectColumns(t *testing.T) {
	x := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	})
	sel, err := SelectColumns(x, 1, 2)
	if err != nil {
		t.Fatalf("SelectColumns: %v", err)
	}
	if diff := cmp.Diff([]float64{2, 3, 6, 7}, sel.RawMatrix().Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	for _, r := range [][2]int{{-1, 2}, {2, 1}, {0, 4}} {
		if _, err = SelectColumns(x, r[0], r[1]); !errors.Is(err, ErrColumnRange) {
			t.Errorf("%v: expected ErrColumnRange, got: %v", r, err)
		}
	}
}

func TestWriteScores(t *testing.T) {
	var buf bytes.Buffer
	err := WriteScores(&buf, []int{1, -1}, []float64{0.75, 0.25})
	if err != nil {
		t.Fatalf("WriteScores: %v", err)
	}
	want := "row,label,score\n0,1,0.75\n1,-1,0.25\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
	if err = WriteScores(&buf, []int{1}, nil); !errors.Is(err, ErrLengthDiffer) {
		t.Errorf("Expected ErrLengthDiffer, got: %v", err)
	}
}
