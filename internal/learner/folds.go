package learner

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/524D/mzrescore/internal/psm"
)

// ErrInvalidFolds is returned for a fold count that can't partition the data
var ErrInvalidFolds = errors.New("learner: invalid number of cross-validation folds")

// Fold is one train/test partition
type Fold struct {
	Train *psm.Dataset
	Test  *psm.Dataset
}

// newRand returns a random source seeded with seed, or with the current
// time if seed is nil
func newRand(seed *uint64) *rand.Rand {
	s := uint64(time.Now().UnixNano())
	if seed != nil {
		s = *seed
	}
	return rand.New(rand.NewSource(s))
}

// MakeFolds shuffles the rows and splits them into k test chunks of
// n/k rows (rounded down). The train set of a fold holds all rows that
// are not in its test chunk.
//
// The n%k rows after the last chunk are never tested and are part of
// every train set.
func MakeFolds(ds *psm.Dataset, k int, rng *rand.Rand) ([]Fold, error) {
	n := ds.Rows()
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: %d folds for %d PSMs", ErrInvalidFolds, k, n)
	}
	if rng == nil {
		rng = newRand(nil)
	}
	indices := rng.Perm(n)
	foldSize := n / k

	folds := make([]Fold, k)
	for i := range folds {
		testMask := make([]bool, n)
		for _, idx := range indices[i*foldSize : (i+1)*foldSize] {
			testMask[idx] = true
		}
		trainMask := make([]bool, n)
		for j, inTest := range testMask {
			trainMask[j] = !inTest
		}

		var err error
		folds[i].Train, err = ds.Filter(trainMask)
		if err != nil {
			return nil, err
		}
		folds[i].Test, err = ds.Filter(testMask)
		if err != nil {
			return nil, err
		}
	}
	return folds, nil
}
