package classifier

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// marginLoss returns the loss for margin y*f(x) and its derivative
// with respect to the margin
type marginLoss func(margin float64) (loss, deriv float64)

// logLoss is log(1+exp(-m)), computed without overflow
func logLoss(m float64) (float64, float64) {
	var l float64
	if m > 0 {
		l = math.Log1p(math.Exp(-m))
	} else {
		l = -m + math.Log1p(math.Exp(m))
	}
	return l, -sigmoid(-m)
}

// squaredHingeLoss is max(0, 1-m)^2
func squaredHingeLoss(m float64) (float64, float64) {
	h := 1 - m
	if h <= 0 {
		return 0, 0
	}
	return h * h, -2 * h
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// linearModel scores a PSM as w·((x-mean)*scale) + b
type linearModel struct {
	par  Params
	loss marginLoss
	link func(float64) float64 // maps the decision value to a probability

	mean     []float64
	scale    []float64
	w        []float64 // feature weights followed by the bias
	fitted   bool
	evalLoss float64
}

// labeledRows returns the rows with a non-zero label and the labels as
// +1/-1 floats
func labeledRows(x mat.Matrix, y []int) (*mat.Dense, []float64, error) {
	if x == nil {
		return nil, nil, ErrNoSamples
	}
	r, c := x.Dims()
	if r != len(y) {
		return nil, nil, fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, r, len(y))
	}
	rows := make([]int, 0, r)
	ys := make([]float64, 0, r)
	var pos, neg int
	for i, l := range y {
		switch {
		case l > 0:
			pos++
			ys = append(ys, 1)
		case l < 0:
			neg++
			ys = append(ys, -1)
		default:
			continue
		}
		rows = append(rows, i)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoSamples
	}
	if pos == 0 || neg == 0 {
		return nil, nil, fmt.Errorf("%w: %d targets, %d decoys", ErrSingleClass, pos, neg)
	}
	xs := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		for j := 0; j < c; j++ {
			xs.Set(k, j, x.At(i, j))
		}
	}
	return xs, ys, nil
}

// standardize sets mean and scale from the columns of x and transforms
// x in place. Constant columns get scale 1.
func (m *linearModel) standardize(x *mat.Dense) {
	r, c := x.Dims()
	m.mean = make([]float64, c)
	m.scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		m.mean[j] = mean
		m.scale[j] = 1
		if std > 0 && !math.IsNaN(std) {
			m.scale[j] = 1 / std
		}
		for i := range col {
			col[i] = (col[i] - mean) * m.scale[j]
		}
		x.SetCol(j, col)
	}
}

// objective returns the regularized mean loss for weights w, and if
// grad is not nil, stores the gradient in grad
func (m *linearModel) objective(x *mat.Dense, y, w, grad []float64) float64 {
	r, c := x.Dims()
	n := float64(r)
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	var sum float64
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		s := floats.Dot(row, w[:c]) + w[c]
		l, d := m.loss(y[i] * s)
		sum += l
		if grad != nil {
			g := d * y[i] / n
			floats.AddScaled(grad[:c], g, row)
			grad[c] += g
		}
	}
	if grad != nil {
		floats.AddScaled(grad[:c], m.par.L2, w[:c])
	}
	return sum/n + 0.5*m.par.L2*floats.Dot(w[:c], w[:c])
}

func (m *linearModel) Fit(x mat.Matrix, y []int, xEval mat.Matrix, yEval []int) error {
	xs, ys, err := labeledRows(x, y)
	if err != nil {
		return err
	}
	m.fitted = false
	m.standardize(xs)
	_, c := xs.Dims()

	// We use the gonum.optimize package to find the best weights:
	// https://pkg.go.dev/gonum.org/v1/gonum/optimize#Minimize
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			return m.objective(xs, ys, w, nil)
		},
		Grad: func(grad, w []float64) {
			m.objective(xs, ys, w, grad)
		},
	}
	settings := &optimize.Settings{MajorIterations: m.par.MaxIterations}
	result, err := optimize.Minimize(problem, make([]float64, c+1), settings, &optimize.BFGS{})
	if result == nil {
		return fmt.Errorf("classifier: fit: %w", err)
	}
	// A line search failing close to the optimum still leaves
	// usable weights
	if err != nil && (math.IsNaN(result.F) || math.IsInf(result.F, 0)) {
		return fmt.Errorf("classifier: fit: %w", err)
	}
	m.w = result.X
	m.fitted = true

	m.evalLoss = math.NaN()
	if xEval != nil {
		m.evalLoss, err = m.meanLoss(xEval, yEval)
		if err != nil {
			return err
		}
	}
	return nil
}

// meanLoss computes the unregularized mean loss on labeled rows of x
func (m *linearModel) meanLoss(x mat.Matrix, y []int) (float64, error) {
	s, err := m.decision(x)
	if err != nil {
		return 0, err
	}
	if len(s) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, len(s), len(y))
	}
	var sum float64
	var n int
	for i, l := range y {
		if l == 0 {
			continue
		}
		lv, _ := m.loss(float64(l) * s[i])
		sum += lv
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return sum / float64(n), nil
}

// decision computes the decision value of each row. Rows are scored
// concurrently by par.Workers goroutines.
func (m *linearModel) decision(x mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if x == nil {
		return []float64{}, nil
	}
	r, c := x.Dims()
	if c != len(m.mean) {
		return nil, fmt.Errorf("%w: %d features, model has %d", ErrDimensionMismatch, c, len(m.mean))
	}
	out := make([]float64, r)
	workers := m.par.Workers
	if workers < 1 {
		workers = 1
	}
	chunk := (r + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < r; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > r {
			hi = r
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				s := m.w[c]
				for j := 0; j < c; j++ {
					s += (x.At(i, j) - m.mean[j]) * m.scale[j] * m.w[j]
				}
				if math.IsNaN(s) || math.IsInf(s, 0) {
					return fmt.Errorf("%w at row %d", ErrNonFinite, i)
				}
				out[i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *linearModel) PredictProba(x mat.Matrix) ([]float64, error) {
	s, err := m.decision(x)
	if err != nil {
		return nil, err
	}
	for i, v := range s {
		s[i] = m.link(v)
	}
	return s, nil
}

func (m *linearModel) Predict(x mat.Matrix) ([]int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	classes := make([]int, len(p))
	for i, v := range p {
		classes[i] = -1
		if v > m.par.Threshold {
			classes[i] = 1
		}
	}
	return classes, nil
}

func (m *linearModel) EvalLoss() float64 {
	if !m.fitted {
		return math.NaN()
	}
	return m.evalLoss
}

// Weights returns the feature weights in the original (unstandardized)
// feature space, followed by the bias
func (m *linearModel) Weights() []float64 {
	if !m.fitted {
		return nil
	}
	c := len(m.mean)
	w := make([]float64, c+1)
	w[c] = m.w[c]
	for j := 0; j < c; j++ {
		w[j] = m.w[j] * m.scale[j]
		w[c] -= w[j] * m.mean[j]
	}
	return w
}
