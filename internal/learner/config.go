package learner

import "fmt"

// Config holds the parameters of the semi-supervised learner
type Config struct {
	// FDR used for bootstrapping the initial labels and for relabeling
	TrainFDR float64 `yaml:"train_fdr"`
	// Number of cross-validation folds
	XevalNumIter int `yaml:"xeval_num_iter"`
	// Seed for fold assignment. If nil, folds differ between runs.
	Seed *uint64 `yaml:"seed"`
}

// DefaultConfig returns the default learner parameters
func DefaultConfig() Config {
	return Config{
		TrainFDR:     0.01,
		XevalNumIter: 3,
	}
}

// Validate checks for parameters that can't produce a meaningful run
func (c Config) Validate() error {
	if !(c.TrainFDR >= 0 && c.TrainFDR <= 1) {
		return fmt.Errorf("learner: train FDR %g outside [0,1]", c.TrainFDR)
	}
	if c.XevalNumIter < 2 {
		return fmt.Errorf("%w: %d, need at least 2", ErrInvalidFolds, c.XevalNumIter)
	}
	return nil
}
