package learner

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/524D/mzrescore/internal/psm"
)

// ErrNoPositives is returned when not a single feature yields positive
// PSMs at the requested FDR, so there is nothing to start learning from
var ErrNoPositives = errors.New("learner: no PSMs found below the FDR threshold")

// Directions in the order in which they are tried
var directions = [2]bool{false, true}

// BestFeature is the feature column that, used directly as a score,
// yields the most positive PSMs
type BestFeature struct {
	Index      int
	Positives  int
	Descending bool
	Labels     []int     // labels obtained from this feature
	Scores     []float64 // the feature column
}

// FeatureCounts evaluates every (column, direction) pair and returns the
// number of positives at evalFDR, indexed as
// [column][0: ascending, 1: descending].
// Columns are independent, so they are evaluated concurrently.
func FeatureCounts(ds *psm.Dataset, evalFDR float64) ([][2]int, error) {
	counts := make([][2]int, ds.Cols())
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for j := range counts {
		j := j
		g.Go(func() error {
			scores := ds.Column(j)
			for k, desc := range directions {
				labels, err := ds.UpdateLabels(scores, evalFDR, desc)
				if err != nil {
					return err
				}
				counts[j][k] = psm.CountPositives(labels)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// SelectBestFeature ranks the PSMs by each feature in both directions
// and selects the column/direction with most positives at evalFDR.
// On a tie, the lowest column index wins, then the direction tried first
// (ascending).
func SelectBestFeature(ds *psm.Dataset, evalFDR float64) (BestFeature, error) {
	var best BestFeature

	counts, err := FeatureCounts(ds, evalFDR)
	if err != nil {
		return best, err
	}
	for j := range counts {
		for k, desc := range directions {
			if counts[j][k] > best.Positives {
				best.Index = j
				best.Positives = counts[j][k]
				best.Descending = desc
			}
		}
	}
	if best.Positives == 0 {
		return best, fmt.Errorf("%w (fdr %g)", ErrNoPositives, evalFDR)
	}

	best.Scores = ds.Column(best.Index)
	best.Labels, err = ds.UpdateLabels(best.Scores, evalFDR, best.Descending)
	if err != nil {
		return best, err
	}
	return best, nil
}
