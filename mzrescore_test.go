package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/524D/mzrescore/internal/classifier"
)

func TestParseIntRange(t *testing.T) {
	tests := []struct {
		in       string
		min, max int
		err      error
	}{
		{in: "3:6", min: 3, max: 6},
		{in: "", min: 0, max: 10},
		{in: ":4", min: 0, max: 4},
		{in: "4:", min: 4, max: 10},
		{in: "-5:20", min: 0, max: 10},
		{in: "7:2", min: 2, max: 2, err: ErrRangeSpec},
	}
	for _, tc := range tests {
		min, max, err := parseIntRange(tc.in, 0, 10)
		if !errors.Is(err, tc.err) {
			t.Errorf("%q: expected error %v, got: %v", tc.in, tc.err, err)
		}
		if min != tc.min || max != tc.max {
			t.Errorf("%q: expected %d:%d, got %d:%d", tc.in, tc.min, tc.max, min, max)
		}
	}
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{",": ',', "tab": '\t', `\t`: '\t', ";": ';'} {
		got, err := parseDelimiter(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %q, got %q (%v)", in, want, got, err)
		}
	}
	if _, err := parseDelimiter(",;"); err == nil {
		t.Errorf("Expected error for multi-character delimiter")
	}
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	usage(&buf)
	out := buf.String()
	if strings.Contains(out, "%!") {
		t.Errorf("Malformed usage text:\n%s", out)
	}
	for _, s := range []string{"USAGE:", "--debug", "--columns 0:9", "CONFIGURATION FILE:"} {
		if !strings.Contains(out, s) {
			t.Errorf("Usage text doesn't contain %q", s)
		}
	}
}

func JSONCompare(t testing.TB, expected, actual io.Reader) {
	alwaysEqual := cmp.Comparer(func(_, _ interface{}) bool { return true })

	opts := cmp.Options{
		// This option declares that a float64 comparison is equal only if
		// both inputs are NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return math.IsNaN(x) && math.IsNaN(y)
		}, alwaysEqual),

		// This option declares approximate equality on float64s only if
		// both inputs are not NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return !math.IsNaN(x) && !math.IsNaN(y)
		}, cmp.Comparer(func(x, y float64) bool {
			delta := math.Abs(x - y)
			mean := math.Abs(x+y) / 2.0
			return delta == 0 || delta/mean < 0.00001
		})),
	}

	var in1 map[string]any
	var in2 map[string]any

	dec := json.NewDecoder(expected)
	err := dec.Decode(&in1)
	if err != nil {
		t.Fatalf("Error decoding expected JSON: %v", err)
	}
	dec = json.NewDecoder(actual)
	err = dec.Decode(&in2)
	if err != nil {
		t.Fatalf("Error decoding actual JSON: %v", err)
	}

	if diff := cmp.Diff(in1, in2, opts); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// writeTestData writes 10 targets and 10 decoys that are separated by
// the first feature. The second feature is the row index.
func writeTestData(t testing.TB, dir string) string {
	var features, labels strings.Builder
	for i := 0; i < 20; i++ {
		v := 5.0 + 0.5*float64(i)
		l := 1
		if i >= 10 {
			v = 0.5 * float64(i-10)
			l = -1
		}
		fmt.Fprintf(&features, "%g,%d\n", v, i)
		fmt.Fprintf(&labels, "%d\n", l)
	}
	name := filepath.Join(dir, "test.csv")
	if err := os.WriteFile(name, []byte(features.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test-labels.tsv"), []byte(labels.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return name
}

func TestRescore(t *testing.T) {
	dir := t.TempDir()
	in := writeTestData(t, dir)

	par := params{delimiter: ",", maxRank: 1, cfg: defaultConfig()}
	var seed uint64 = 7
	par.cfg.Learner.Seed = &seed
	if err := sanatizeParams(&par, []string{in}, nil); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if err := rescore(par, zap.NewNop()); err != nil {
		t.Fatalf("rescore: %v", err)
	}

	sum, err := os.ReadFile(filepath.Join(dir, "test-rescore.json"))
	if err != nil {
		t.Fatalf("Reading summary: %v", err)
	}
	var got map[string]any
	if err = json.Unmarshal(sum, &got); err != nil {
		t.Fatalf("Decoding summary: %v", err)
	}
	// Weights depend on the optimizer, only check their presence
	if w, ok := got["Weights"].([]any); !ok || len(w) != 3 {
		t.Errorf("Expected 3 weights, got %v", got["Weights"])
	}
	delete(got, "Weights")
	gotJSON, _ := json.Marshal(got)
	want := `{
		"MzRescoreVersion": "1.0",
		"Model": "logistic",
		"Rows": 20,
		"BestFeature": 0,
		"Descending": true,
		"InitialPositives": 10,
		"TrainFDR": 0.01,
		"EvalFDR": 0.01,
		"Positives": 10
	}`
	JSONCompare(t, strings.NewReader(want), strings.NewReader(string(gotJSON)))

	scores, err := os.ReadFile(filepath.Join(dir, "test-scores.csv"))
	if err != nil {
		t.Fatalf("Reading scores: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(scores)), "\n")
	if len(lines) != 21 {
		t.Fatalf("Expected header and 20 score lines, got %d lines", len(lines))
	}
	if lines[0] != "row,label,score" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,1,") || !strings.HasPrefix(lines[20], "19,-1,") {
		t.Errorf("Unexpected score lines %q %q", lines[1], lines[20])
	}
}

func TestRescoreDebug(t *testing.T) {
	dir := t.TempDir()
	in := writeTestData(t, dir)

	par := params{delimiter: ",", columns: "0:0", debug: true, cfg: defaultConfig()}
	par.cfg.Model = classifier.LinearSVM
	if err := sanatizeParams(&par, []string{in}, nil); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if err := rescore(par, zap.NewNop()); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	f, err := os.Open(par.summaryFilename)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	var sum summary
	if err = json.NewDecoder(f).Decode(&sum); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sum.Model != "svm" || sum.Positives != 10 {
		t.Errorf("Unexpected summary %+v", sum)
	}
	if sum.DebugInfo == nil {
		t.Fatalf("Expected debug info in summary")
	}
	if diff := cmp.Diff([][2]int{{0, 10}}, sum.DebugInfo.FeatureCounts); diff != "" {
		t.Errorf("FeatureCounts mismatch (-want +got):\n%s", diff)
	}
	if len(sum.DebugInfo.Folds) != par.cfg.Learner.XevalNumIter {
		t.Errorf("Expected %d folds, got %d", par.cfg.Learner.XevalNumIter, len(sum.DebugInfo.Folds))
	}
}

func TestRescoreMissingLabels(t *testing.T) {
	dir := t.TempDir()
	in := writeTestData(t, dir)
	par := params{delimiter: ",", labelsFilename: filepath.Join(dir, "none.tsv"), cfg: defaultConfig()}
	if err := sanatizeParams(&par, []string{in}, nil); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if err := rescore(par, zap.NewNop()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got: %v", err)
	}
}

func TestSanatizeParamsConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "rescore.yaml")
	err := os.WriteFile(cfgFile, []byte(`
train_fdr: 0.02
xeval_num_iter: 4
seed: 42
model: svm
classifier:
  l2: 0.1
`), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var par params
	par.cfg = defaultConfig()
	par.configFilename = cfgFile
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Float64Var(&par.cfg.Learner.TrainFDR, "trainfdr", par.cfg.Learner.TrainFDR, "")
	fs.IntVar(&par.cfg.Learner.XevalNumIter, "folds", par.cfg.Learner.XevalNumIter, "")
	if err = fs.Parse([]string{"--trainfdr=0.05"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err = sanatizeParams(&par, []string{"data/in.csv"}, fs); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if par.cfg.Learner.TrainFDR != 0.05 {
		t.Errorf("Flag should override config file, TrainFDR is %g", par.cfg.Learner.TrainFDR)
	}
	if par.cfg.Learner.XevalNumIter != 4 {
		t.Errorf("XevalNumIter is %d, expected 4", par.cfg.Learner.XevalNumIter)
	}
	if par.cfg.Learner.Seed == nil || *par.cfg.Learner.Seed != 42 {
		t.Errorf("Seed not read from config file")
	}
	if par.cfg.Model != classifier.LinearSVM || par.cfg.Classifier.L2 != 0.1 {
		t.Errorf("Unexpected classifier config %v %+v", par.cfg.Model, par.cfg.Classifier)
	}
	// Keys that are not in the file keep their default
	if par.cfg.Classifier.MaxIterations != classifier.DefaultParams().MaxIterations {
		t.Errorf("MaxIterations is %d", par.cfg.Classifier.MaxIterations)
	}
	wantNames := []string{"data/in-labels.tsv", "data/in-scores.csv", "data/in-rescore.json"}
	gotNames := []string{par.labelsFilename, par.scoreFilename, par.summaryFilename}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Errorf("Filenames mismatch (-want +got):\n%s", diff)
	}
}

func TestSanatizeParamsErrors(t *testing.T) {
	par := params{cfg: defaultConfig()}
	if err := sanatizeParams(&par, nil, nil); err == nil {
		t.Errorf("Expected error without input file")
	}
	par.cfg.EvalFDR = 2
	if err := sanatizeParams(&par, []string{"in.csv"}, nil); err == nil {
		t.Errorf("Expected error for FDR outside [0,1]")
	}
	par = params{cfg: defaultConfig()}
	par.cfg.EvalFDR = math.NaN()
	if err := sanatizeParams(&par, []string{"in.csv"}, nil); err == nil {
		t.Errorf("Expected error for NaN evaluation FDR")
	}
	par = params{cfg: defaultConfig()}
	par.cfg.Learner.TrainFDR = math.NaN()
	if err := sanatizeParams(&par, []string{"in.csv"}, nil); err == nil {
		t.Errorf("Expected error for NaN train FDR")
	}
	par = params{cfg: defaultConfig()}
	par.cfg.Learner.XevalNumIter = 1
	if err := sanatizeParams(&par, []string{"in.csv"}, nil); err == nil {
		t.Errorf("Expected error for a single fold")
	}
	par = params{cfg: defaultConfig(), configFilename: "does-not-exist.yaml"}
	if err := sanatizeParams(&par, []string{"in.csv"}, nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got: %v", err)
	}
}
