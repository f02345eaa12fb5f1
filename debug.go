// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"

	flag "github.com/spf13/pflag"
	"gonum.org/v1/gonum/mat"

	"github.com/524D/mzrescore/internal/learner"
	"github.com/524D/mzrescore/internal/psm"
)

var debugRows *string // Print debug output for given PSM range

func init() {
	debugRows = flag.String("debug", "",
		"Print debug output for given PSM `range` e.g. 3:6")
}

// summaryDebugInfo is added to the JSON summary when MZRESCORE_DEBUG=1
type summaryDebugInfo struct {
	// Positives per feature column, for ascending and descending ranking
	FeatureCounts [][2]int
	Folds         []learner.FoldReport
}

func debugSummary(sum *summary, x mat.Matrix, y []int, rep learner.Report, par params) error {
	if !par.debug {
		return nil
	}
	ds, err := psm.New(x, y)
	if err != nil {
		return err
	}
	counts, err := learner.FeatureCounts(ds, par.cfg.EvalFDR)
	if err != nil {
		return err
	}
	sum.DebugInfo = &summaryDebugInfo{
		FeatureCounts: counts,
		Folds:         rep.Folds,
	}
	return nil
}

func debugLogRows(labels []int, scores []float64) {
	if *debugRows != `` {
		debugMin, debugMax, _ := parseIntRange(*debugRows, 0, len(scores)-1)
		for i := debugMin; i <= debugMax && i < len(scores); i++ {
			fmt.Printf("PSM:%d label:%d score:%f\n", i, labels[i], scores[i])
		}
	}
}
