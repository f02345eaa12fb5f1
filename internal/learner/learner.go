package learner

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/524D/mzrescore/internal/psm"
)

// Classifier is the model that is trained on the bootstrapped labels.
// Fit only receives rows labeled +1 or -1. PredictProba returns one
// score per row; higher means more target-like.
type Classifier interface {
	Fit(x mat.Matrix, y []int, xEval mat.Matrix, yEval []int) error
	PredictProba(x mat.Matrix) ([]float64, error)
}

// FoldReport describes what happened in one cross-validation fold
type FoldReport struct {
	Fold      int `json:"fold"`
	TrainRows int `json:"trainRows"` // rows used for fitting
	Unlabeled int `json:"unlabeled"` // train rows skipped because they had no label
	TestRows  int `json:"testRows"`
	Positives int `json:"positives"` // positives after relabeling
}

// Report summarizes a run of the learner
type Report struct {
	BestFeature      int          `json:"bestFeature"`
	Descending       bool         `json:"descending"`
	InitialPositives int          `json:"initialPositives"`
	Folds            []FoldReport `json:"folds,omitempty"`
}

// Learner drives the semi-supervised rescoring of PSMs
type Learner struct {
	model  Classifier
	cfg    Config
	logger *zap.Logger
	report Report
}

// New creates a learner that trains model. If logger is nil,
// nothing is logged.
func New(model Classifier, cfg Config, logger *zap.Logger) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{model: model, cfg: cfg, logger: logger}, nil
}

// Report returns the report of the last call to Fit
func (l *Learner) Report() Report {
	return l.report
}

// Fit computes a score for each PSM. x holds the features, y the target
// (+1) or decoy (-1) label of each PSM. The returned scores are in the
// same order as the rows of x.
//
// Labels are first taken from the single best feature. For each fold,
// the classifier is trained on the labeled train rows and scores the
// test rows; after each fold the labels are recomputed from the scores
// collected so far. Finally, the classifier is trained on all PSMs with
// their original labels and scores all of them.
func (l *Learner) Fit(x mat.Matrix, y []int) ([]float64, error) {
	l.report = Report{}
	ds, err := psm.New(x, y)
	if err != nil {
		return nil, err
	}
	l.logSummary(ds)

	best, err := SelectBestFeature(ds, l.cfg.TrainFDR)
	if err != nil {
		return nil, err
	}
	if err = ds.SetLabels(best.Labels); err != nil {
		return nil, err
	}
	l.report.BestFeature = best.Index
	l.report.Descending = best.Descending
	l.report.InitialPositives = best.Positives
	l.logger.Info("Selected best feature",
		zap.Int("feature", best.Index),
		zap.Bool("descending", best.Descending),
		zap.Int("positives", best.Positives),
		zap.Float64("fdr", l.cfg.TrainFDR))

	folds, err := MakeFolds(ds, l.cfg.XevalNumIter, newRand(l.cfg.Seed))
	if err != nil {
		return nil, err
	}

	// Predictions of all folds evaluated so far; rows of folds that
	// haven't run yet are 0
	predictions := make([]float64, ds.Rows())
	for i, fold := range folds {
		rep, err := l.runFold(i, fold, ds, predictions, best.Descending)
		if err != nil {
			return nil, err
		}
		l.report.Folds = append(l.report.Folds, rep)
	}

	// The final model is trained on the original labels, not on the
	// relabeled working dataset
	final, err := psm.New(x, y)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Final prediction on the entire dataset", zap.Int("rows", final.Rows()))
	if err = l.model.Fit(final.X(), final.Labels(), nil, nil); err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}
	scores, err := l.model.PredictProba(final.X())
	if err != nil {
		return nil, fmt.Errorf("final prediction: %w", err)
	}
	if len(scores) != final.Rows() {
		return nil, fmt.Errorf("final prediction: %w: %d scores for %d rows",
			psm.ErrDimensionMismatch, len(scores), final.Rows())
	}
	return scores, nil
}

// runFold trains on the fold's train set, scatters the predictions for
// the test set into predictions and relabels ds
func (l *Learner) runFold(i int, fold Fold, ds *psm.Dataset,
	predictions []float64, descending bool) (FoldReport, error) {
	rep := FoldReport{Fold: i, TestRows: fold.Test.Rows()}

	train := fold.Train
	rep.Unlabeled = train.RemoveUnlabeled()
	rep.TrainRows = train.Rows()
	l.logger.Info("Learning on cross-validation fold",
		zap.Int("fold", i),
		zap.Int("trainRows", rep.TrainRows),
		zap.Int("unlabeled", rep.Unlabeled),
		zap.Int("testRows", rep.TestRows))

	if err := l.model.Fit(train.X(), train.Labels(), nil, nil); err != nil {
		return rep, fmt.Errorf("fold %d: fit: %w", i, err)
	}
	foldPredictions, err := l.model.PredictProba(fold.Test.X())
	if err != nil {
		return rep, fmt.Errorf("fold %d: prediction: %w", i, err)
	}
	if len(foldPredictions) != fold.Test.Rows() {
		return rep, fmt.Errorf("fold %d: %w: %d predictions for %d rows",
			i, psm.ErrDimensionMismatch, len(foldPredictions), fold.Test.Rows())
	}
	for j, p := range foldPredictions {
		predictions[fold.Test.RowID(j)] = p
	}

	labels, err := ds.UpdateLabels(predictions, l.cfg.TrainFDR, descending)
	if err != nil {
		return rep, err
	}
	if err = ds.SetLabels(labels); err != nil {
		return rep, err
	}
	rep.Positives = psm.CountPositives(labels)
	l.logger.Debug("Relabeled PSMs", zap.Int("fold", i), zap.Int("positives", rep.Positives))
	return rep, nil
}

func (l *Learner) logSummary(ds *psm.Dataset) {
	s := ds.Summarize()
	l.logger.Info("Input data",
		zap.Int("rows", s.Rows),
		zap.Int("features", len(s.Columns)),
		zap.Int("targets", s.Targets),
		zap.Int("decoys", s.Decoys))
	for j, c := range s.Columns {
		l.logger.Debug("Feature",
			zap.Int("column", j),
			zap.Float64("mean", c.Mean),
			zap.Float64("stddev", c.StdDev),
			zap.Float64("min", c.Min),
			zap.Float64("max", c.Max))
	}
}
