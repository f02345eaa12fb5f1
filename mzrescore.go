// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/524D/mzrescore/internal/classifier"
	"github.com/524D/mzrescore/internal/learner"
	"github.com/524D/mzrescore/internal/mzidentml"
	"github.com/524D/mzrescore/internal/psm"
	"github.com/524D/mzrescore/internal/psmio"
)

// Program name and version
const progName = "mzRescore"

var progVersion = `Unknown`

// Format of the JSON summary, if it ever changes we should still be able
// to parse output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	inFilename      string
	labelsFilename  string // target/decoy labels, for delimited feature input
	scoreFilename   string // output: score per PSM
	summaryFilename string // output: JSON run summary
	configFilename  string // YAML file with learner/classifier settings
	delimiter       string // field delimiter of the feature file
	columns         string // range of feature columns to use
	maxRank         int    // highest identification rank used from mzIdentML
	verbosity       int    // Verbosity of progress messages (infoDefault...)
	debug           bool   // Enable debug info (environment variable MZRESCORE_DEBUG=1)
	cfg             config
}

// config holds everything that can be set from a configuration file
type config struct {
	Learner    learner.Config       `yaml:",inline"`
	EvalFDR    float64              `yaml:"eval_fdr"`
	Model      classifier.ModelType `yaml:"model"`
	Classifier classifier.Params    `yaml:"classifier"`
}

func defaultConfig() config {
	return config{
		Learner:    learner.DefaultConfig(),
		EvalFDR:    0.01,
		Model:      classifier.Logistic,
		Classifier: classifier.DefaultParams(),
	}
}

// summary is written as JSON after rescoring
type summary struct {
	// Version of the summary format
	MzRescoreVersion string
	Model            string
	Rows             int
	Features         []string `json:",omitempty"`
	BestFeature      int
	BestFeatureName  string `json:",omitempty"`
	Descending       bool
	InitialPositives int
	TrainFDR         float64
	EvalFDR          float64
	// Positives at EvalFDR using the final scores
	Positives int
	Weights   []float64         `json:",omitempty"`
	DebugInfo *summaryDebugInfo `json:",omitempty"`
}

var ErrRangeSpec = errors.New("invalid range specified")

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// parseDelimiter accepts a single character, or the names "tab"
// and "\t" for a tab
func parseDelimiter(s string) (rune, error) {
	switch s {
	case `tab`, `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// readConfig overrides cfg with the values in a YAML file
func readConfig(filename string, cfg *config) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err = d.Decode(cfg); err != nil {
		return fmt.Errorf("config %s: %w", filename, err)
	}
	return nil
}

// loadPSMs reads features and target/decoy labels, either from an
// mzIdentML file or from a delimited feature file plus a label file.
// Feature names are only available for mzIdentML input.
func loadPSMs(par params) (*mat.Dense, []int, []string, error) {
	f, err := os.Open(par.inFilename)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(par.inFilename), ".mzid") {
		mzIdentML, err := mzidentml.Read(f)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mzidentml.Read: %w", err)
		}
		table, err := mzIdentML.PSMs(par.maxRank)
		if err != nil {
			return nil, nil, nil, err
		}
		return table.Features, table.Labels, table.Names, nil
	}

	delim, err := parseDelimiter(par.delimiter)
	if err != nil {
		return nil, nil, nil, err
	}
	x, err := psmio.ReadFeatures(f, delim)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", par.inFilename, err)
	}
	lf, err := os.Open(par.labelsFilename)
	if err != nil {
		return nil, nil, nil, err
	}
	defer lf.Close()
	y, err := psmio.ReadLabels(lf)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", par.labelsFilename, err)
	}
	return x, y, nil, nil
}

// selectColumns restricts the features to the columns given by
// par.columns, e.g. "0:9"
func selectColumns(x *mat.Dense, names []string, par params) (*mat.Dense, []string, error) {
	if par.columns == `` {
		return x, names, nil
	}
	_, c := x.Dims()
	lo, hi, err := parseIntRange(par.columns, 0, c-1)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid column range %s: %w", par.columns, err)
	}
	x, err = psmio.SelectColumns(x, lo, hi)
	if err != nil {
		return nil, nil, err
	}
	if names != nil {
		names = names[lo : hi+1]
	}
	return x, names, nil
}

func writeScores(labels []int, scores []float64, par params) error {
	f, err := os.Create(par.scoreFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err = psmio.WriteScores(f, labels, scores); err != nil {
		return err
	}
	return f.Close()
}

func writeSummary(sum summary, par params) error {
	f, err := os.Create(par.summaryFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	if err = e.Encode(sum); err != nil {
		return err
	}
	return f.Close()
}

// countPositives returns the number of targets that pass fdr when
// ranked by the final scores
func countPositives(x mat.Matrix, y []int, scores []float64, fdr float64) (int, error) {
	ds, err := psm.New(x, y)
	if err != nil {
		return 0, err
	}
	labels, err := ds.UpdateLabels(scores, fdr, true)
	if err != nil {
		return 0, err
	}
	return psm.CountPositives(labels), nil
}

// rescore glues together all the steps:
// Read PSM features and target/decoy labels
// Train the semi-supervised learner and compute scores
// Write the scores and a JSON summary
func rescore(par params, logger *zap.Logger) error {
	t := time.Now()
	x, y, names, err := loadPSMs(par)
	if err != nil {
		return err
	}
	x, names, err = selectColumns(x, names, par)
	if err != nil {
		return err
	}
	logger.Info("Read PSMs", zap.String("file", par.inFilename), zap.Duration("elapsed", time.Since(t)))

	cfg := par.cfg
	model, err := classifier.New(cfg.Model, cfg.Classifier)
	if err != nil {
		return err
	}
	l, err := learner.New(model, cfg.Learner, logger)
	if err != nil {
		return err
	}
	t = time.Now()
	scores, err := l.Fit(x, y)
	if err != nil {
		return err
	}
	logger.Info("Computed scores", zap.Duration("elapsed", time.Since(t)))

	rep := l.Report()
	rows, _ := x.Dims()
	sum := summary{
		MzRescoreVersion: outputFormatVersion,
		Model:            cfg.Model.String(),
		Rows:             rows,
		Features:         names,
		BestFeature:      rep.BestFeature,
		Descending:       rep.Descending,
		InitialPositives: rep.InitialPositives,
		TrainFDR:         cfg.Learner.TrainFDR,
		EvalFDR:          cfg.EvalFDR,
	}
	if names != nil {
		sum.BestFeatureName = names[rep.BestFeature]
	}
	if w, ok := model.(interface{ Weights() []float64 }); ok {
		sum.Weights = w.Weights()
	}
	sum.Positives, err = countPositives(x, y, scores, cfg.EvalFDR)
	if err != nil {
		return err
	}
	logger.Info("Rescoring done",
		zap.Int("initialPositives", sum.InitialPositives),
		zap.Int("positives", sum.Positives),
		zap.Float64("fdr", cfg.EvalFDR))
	if err = debugSummary(&sum, x, y, rep, par); err != nil {
		return err
	}
	debugLogRows(y, scores)

	if err = writeScores(y, scores, par); err != nil {
		return err
	}
	return writeSummary(sum, par)
}

// sanatizeParams does some checks on parameters, fills missing
// filenames and reads the configuration file
func sanatizeParams(par *params, args []string, fs *flag.FlagSet) error {
	if len(args) != 1 {
		return errors.New(`last argument must be name of the feature file (.csv/.tsv) or mzIdentML file (.mzid)`)
	}
	par.inFilename = args[0]
	var extension = filepath.Ext(par.inFilename)
	var startName = par.inFilename[0 : len(par.inFilename)-len(extension)]

	if par.labelsFilename == "" {
		par.labelsFilename = startName + "-labels.tsv"
	}
	if par.scoreFilename == "" {
		par.scoreFilename = startName + "-scores.csv"
	}
	if par.summaryFilename == "" {
		par.summaryFilename = startName + "-rescore.json"
	}

	// Settings from the configuration file are overruled by flags
	// that were set explicitly
	if par.configFilename != "" {
		flagCfg := par.cfg
		par.cfg = defaultConfig()
		if err := readConfig(par.configFilename, &par.cfg); err != nil {
			return err
		}
		overrideConfig(&par.cfg, flagCfg, fs)
	}
	if fs != nil && fs.Changed("model") {
		mt, err := classifier.ParseModelType(fs.Lookup("model").Value.String())
		if err != nil {
			return err
		}
		par.cfg.Model = mt
	}
	if !(par.cfg.EvalFDR >= 0 && par.cfg.EvalFDR <= 1) {
		return fmt.Errorf("evaluation FDR %g outside [0,1]", par.cfg.EvalFDR)
	}
	return par.cfg.Learner.Validate()
}

// overrideConfig copies the values of flags that were set on the
// command line from flagCfg into cfg
func overrideConfig(cfg *config, flagCfg config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	if fs.Changed("trainfdr") {
		cfg.Learner.TrainFDR = flagCfg.Learner.TrainFDR
	}
	if fs.Changed("folds") {
		cfg.Learner.XevalNumIter = flagCfg.Learner.XevalNumIter
	}
	if fs.Changed("seed") {
		cfg.Learner.Seed = flagCfg.Learner.Seed
	}
	if fs.Changed("evalfdr") {
		cfg.EvalFDR = flagCfg.EvalFDR
	}
	if fs.Changed("l2") {
		cfg.Classifier.L2 = flagCfg.Classifier.L2
	}
	if fs.Changed("maxiter") {
		cfg.Classifier.MaxIterations = flagCfg.Classifier.MaxIterations
	}
	if fs.Changed("workers") {
		cfg.Classifier.Workers = flagCfg.Classifier.Workers
	}
}

// newLogger creates the logger for progress messages, which are
// written to stderr
func newLogger(verbosity int) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	switch verbosity {
	case infoSilent:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case infoVerbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// usage writes the help text to w
func usage(w io.Writer) {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(w,
		`USAGE:
  %s [options] <featurefile|mzIdentMLfile>

  This program computes confidence scores for peptide-spectrum matches (PSMs)
  by semi-supervised learning. Training labels are obtained from target-decoy
  competition, starting from the single most informative feature.

OPTIONS:
`, exeName)
	fmt.Fprint(w, flag.CommandLine.FlagUsages())
	fmt.Fprintf(w,
		`
INPUT:
  A feature file contains one PSM per line, with numeric features separated
  by the delimiter and no header. The accompanying label file contains one
  label per line: 1 for a target PSM, -1 for a decoy PSM.
  An mzIdentML file (extension .mzid) contains both: all numeric scores of
  the identifications are used as features, and an identification is a decoy
  if all its peptide evidences are decoys.

CONFIGURATION FILE:
  A YAML file with any of the following keys. Options given on the command
  line take precedence.
    train_fdr: 0.01
    eval_fdr: 0.01
    xeval_num_iter: 3
    seed: 42
    model: logistic
    classifier:
      l2: 0.001
      max_iterations: 1000
      threshold: 0.5
      workers: 0

ENVIRONMENT VARIABLES:
    When environment variable MZRESCORE_DEBUG=1, extra information is added to the
    JSON summary.

USAGE EXAMPLES:
  %s sage_scores.csv
    Rescore PSMs in sage_scores.csv with labels from sage_scores-labels.tsv,
    write the scores to sage_scores-scores.csv and a summary to
    sage_scores-rescore.json.

  %s --columns 0:9 --folds 5 --seed 1 --model svm yeast.mzid
    Rescore the rank 1 identifications in yeast.mzid using the first 10
    features, 5 cross-validation folds with reproducible fold assignment,
    and a linear SVM.
`, exeName, exeName)
}

func main() {
	var par params
	par.cfg = defaultConfig()
	var seed uint64
	var model string

	flag.StringVarP(&par.scoreFilename, "out", "o", "",
		"`filename` for the computed scores")
	flag.StringVar(&par.summaryFilename, "summary", "",
		"`filename` for the JSON summary")
	flag.StringVar(&par.labelsFilename, "labels", "",
		"`filename` of target/decoy labels (default <featurefile>-labels.tsv)")
	flag.StringVar(&par.configFilename, "config", "",
		"YAML configuration `filename`")
	flag.StringVar(&par.delimiter, "delimiter", ",",
		`field delimiter of the feature file ("tab" for tab)`)
	flag.StringVar(&par.columns, "columns", "",
		"`range` of feature columns to use (e.g. 0:9). Default is all columns")
	flag.IntVar(&par.maxRank, "maxrank", 1,
		`highest rank of mzIdentML identifications to use, 0 for all`)
	flag.StringVar(&model, "model", par.cfg.Model.String(),
		"classifier `model`: logistic or svm")
	flag.Float64Var(&par.cfg.Learner.TrainFDR, "trainfdr", par.cfg.Learner.TrainFDR,
		`FDR for selecting positive PSMs during training`)
	flag.Float64Var(&par.cfg.EvalFDR, "evalfdr", par.cfg.EvalFDR,
		`FDR for reporting the number of positive PSMs`)
	flag.IntVar(&par.cfg.Learner.XevalNumIter, "folds", par.cfg.Learner.XevalNumIter,
		`number of cross-validation folds`)
	flag.Uint64Var(&seed, "seed", 0,
		`seed for fold assignment. If not set, folds differ between runs`)
	flag.Float64Var(&par.cfg.Classifier.L2, "l2", par.cfg.Classifier.L2,
		`L2 regularization of the classifier`)
	flag.IntVar(&par.cfg.Classifier.MaxIterations, "maxiter", par.cfg.Classifier.MaxIterations,
		`maximum number of optimizer iterations, 0 for no limit`)
	flag.IntVar(&par.cfg.Classifier.Workers, "workers", 0,
		`number of goroutines for scoring, 0 for one per CPU`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()
	if *version {
		if progVersion == `Unknown` {
			progVersion = `Unknown
Build with -ldflags "-X main.progVersion=$(git describe --tags)" to show the version here.`
		}
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	if flag.CommandLine.Changed("seed") {
		par.cfg.Learner.Seed = &seed
	}
	// Check if debug output should be enabled
	par.debug = os.Getenv("MZRESCORE_DEBUG") == `1`

	logger, err := newLogger(par.verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err = sanatizeParams(&par, flag.Args(), flag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, `%v
Type %s --help for usage
`, err, filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err = rescore(par, logger); err != nil {
		logger.Fatal("Rescoring failed", zap.Error(err))
	}
}
