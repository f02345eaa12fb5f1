// Package classifier contains the models that can be trained by the
// semi-supervised learner. All models are linear models on standardized
// features, fitted with gonum's optimize package.
package classifier

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted         = errors.New("classifier: model not fitted")
	ErrNoSamples         = errors.New("classifier: no labeled samples")
	ErrSingleClass       = errors.New("classifier: training data contains a single class")
	ErrDimensionMismatch = errors.New("classifier: dimension mismatch")
	ErrNonFinite         = errors.New("classifier: non-finite score")
	ErrUnknownModel      = errors.New("classifier: unknown model type")
)

// ModelType selects the classifier backend
type ModelType int

const (
	Logistic ModelType = iota
	LinearSVM
)

func (t ModelType) String() string {
	switch t {
	case Logistic:
		return "logistic"
	case LinearSVM:
		return "svm"
	}
	return fmt.Sprintf("ModelType(%d)", int(t))
}

// ParseModelType converts a (case insensitive) model name into a ModelType
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(s) {
	case `logistic`, `logreg`:
		return Logistic, nil
	case `svm`, `linearsvm`:
		return LinearSVM, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownModel, s)
}

// UnmarshalText allows model types in configuration files
func (t *ModelType) UnmarshalText(text []byte) error {
	mt, err := ParseModelType(string(text))
	if err != nil {
		return err
	}
	*t = mt
	return nil
}

// MarshalText is the inverse of UnmarshalText
func (t ModelType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Params are the parameters shared by all models
type Params struct {
	L2            float64 `yaml:"l2"`             // L2 regularization strength
	MaxIterations int     `yaml:"max_iterations"` // 0: no limit
	Threshold     float64 `yaml:"threshold"`      // probability above which Predict returns +1
	Workers       int     `yaml:"workers"`        // goroutines used for scoring, 0: GOMAXPROCS
}

// DefaultParams returns reasonable model parameters
func DefaultParams() Params {
	return Params{
		L2:            1e-3,
		MaxIterations: 1000,
		Threshold:     0.5,
	}
}

// Model is a binary classifier for target (+1) and decoy (-1) PSMs
type Model interface {
	// Fit trains the model. Rows with label 0 are ignored.
	// If xEval is not nil, the loss on xEval/yEval is computed after fitting.
	Fit(x mat.Matrix, y []int, xEval mat.Matrix, yEval []int) error
	// PredictProba returns the probability that each row is a target
	PredictProba(x mat.Matrix) ([]float64, error)
	// Predict returns +1 or -1 for each row
	Predict(x mat.Matrix) ([]int, error)
	// EvalLoss returns the loss on the evaluation data of the last Fit,
	// or NaN if no evaluation data was given
	EvalLoss() float64
}

// New creates an untrained model
func New(t ModelType, par Params) (Model, error) {
	if par.L2 < 0 {
		return nil, fmt.Errorf("classifier: negative L2 regularization %g", par.L2)
	}
	if par.Workers <= 0 {
		par.Workers = runtime.GOMAXPROCS(0)
	}
	switch t {
	case Logistic:
		return &linearModel{par: par, loss: logLoss, link: sigmoid}, nil
	case LinearSVM:
		return &linearModel{par: par, loss: squaredHingeLoss, link: sigmoid}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownModel, int(t))
}
