package psm

import (
	"fmt"
	"math"
	"sort"
)

// rankRows returns row indices ordered from best to worst score.
// NaN scores always rank last. Equal scores keep row id order.
func (d *Dataset) rankRows(scores []float64, descending bool) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		nanA, nanB := math.IsNaN(sa), math.IsNaN(sb)
		switch {
		case nanA || nanB:
			if nanA == nanB {
				return d.rowID[order[a]] < d.rowID[order[b]]
			}
			return nanB
		case sa == sb:
			return d.rowID[order[a]] < d.rowID[order[b]]
		case descending:
			return sa > sb
		default:
			return sa < sb
		}
	})
	return order
}

// UpdateLabels computes new labels from scores using target-decoy
// competition. Rows are ranked by score (highest first if descending),
// and the deepest rank at which decoys/targets (counted from the best
// end) is at most fdrThreshold is the cutoff. Targets at or above the
// cutoff become Positive, other targets Unlabeled. Decoys are always Decoy.
// The dataset itself is not modified.
func (d *Dataset) UpdateLabels(scores []float64, fdrThreshold float64, descending bool) ([]int, error) {
	if len(scores) != len(d.y) {
		return nil, fmt.Errorf("%w: %d scores for %d rows", ErrDimensionMismatch, len(scores), len(d.y))
	}
	order := d.rankRows(scores, descending)

	cutoff := -1
	decoys, targets := 0, 0
	for rank, i := range order {
		if d.decoy[i] {
			decoys++
		} else {
			targets++
		}
		if fdr(decoys, targets) <= fdrThreshold {
			cutoff = rank
		}
	}

	labels := make([]int, len(d.y))
	for rank, i := range order {
		switch {
		case d.decoy[i]:
			labels[i] = Decoy
		case rank <= cutoff:
			labels[i] = Positive
		default:
			labels[i] = Unlabeled
		}
	}
	return labels, nil
}

// CountPositives returns the number of Positive labels
func CountPositives(labels []int) int {
	n := 0
	for _, l := range labels {
		if l == Positive {
			n++
		}
	}
	return n
}

// fdr estimates the false discovery rate; with no decoys it is 0
func fdr(decoys, targets int) float64 {
	if decoys == 0 {
		return 0
	}
	if targets < 1 {
		targets = 1
	}
	return float64(decoys) / float64(targets)
}
