// Package fit implements Levenberg-Marquardt least-squares curve fitting.
// The damped normal equations are solved with the sparse LU in pkg/matrix.
package fit

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/pkg/matrix"
)

var (
	ErrDivergence    = errors.New("curve fit did not converge")
	ErrNotEnoughData = errors.New("not enough points to fit")
)

// Model is a scalar function of x with parameters p. Gradient, if set,
// writes df/dp into grad; otherwise forward differences are used.
type Model struct {
	Name     string
	Eval     func(x float64, p []float64) float64
	Gradient func(x float64, p []float64, grad []float64)
}

type Options struct {
	MaxIter int
	Ftol    float64 // relative reduction of the cost
	Xtol    float64 // relative step size
	Lambda0 float64
	Logger  *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxIter: 500,
		Ftol:    1.49012e-8,
		Xtol:    1.49012e-8,
		Lambda0: 1e-3,
	}
}

type Result struct {
	Params     []float64
	Cost       float64 // sum of squared residuals
	Iterations int
}

const (
	lambdaMin = 1e-12
	lambdaMax = 1e16
)

type solver struct {
	model  Model
	xs, ys []float64
	opts   Options
	sys    *matrix.System
	logger *slog.Logger
}

// CurveFit finds parameters minimizing sum (ys[i] - model(xs[i], p))^2
// starting from p0.
func CurveFit(model Model, xs, ys, p0 []float64, opts Options) (Result, error) {
	if len(xs) != len(ys) {
		return Result{}, errors.Errorf("fit %s: length mismatch (%d != %d)", model.Name, len(xs), len(ys))
	}
	if len(xs) < len(p0) {
		return Result{}, errors.Wrapf(ErrNotEnoughData, "fit %s: %d points for %d parameters", model.Name, len(xs), len(p0))
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultOptions().MaxIter
	}
	if opts.Lambda0 <= 0 {
		opts.Lambda0 = DefaultOptions().Lambda0
	}

	sys, err := matrix.NewSystem(len(p0))
	if err != nil {
		return Result{}, errors.Wrapf(err, "fit %s", model.Name)
	}
	defer sys.Destroy()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &solver{model: model, xs: xs, ys: ys, opts: opts, sys: sys, logger: logger}
	return s.run(p0)
}

func (s *solver) run(p0 []float64) (Result, error) {
	n := len(p0)
	params := append([]float64(nil), p0...)
	cost := s.cost(params)
	if !isFinite(cost) {
		return Result{}, errors.Wrapf(ErrDivergence, "fit %s: non-finite cost at initial guess %v", s.model.Name, p0)
	}

	if cost == 0 {
		return s.result(params, cost, 0)
	}

	lambda := s.opts.Lambda0
	jtj := make([]float64, n*n)
	jtr := make([]float64, n)
	smallSteps := 0

	for iter := range s.opts.MaxIter {
		s.normalEquations(params, jtj, jtr)

		for {
			delta, err := s.solveStep(jtj, jtr, lambda)
			if err == nil {
				trial := make([]float64, n)
				for i := range trial {
					trial[i] = params[i] + delta[i]
				}
				trialCost := s.cost(trial)

				if isFinite(trialCost) && trialCost <= cost {
					improvement := cost - trialCost
					stepSmall := true
					for i := range delta {
						if math.Abs(delta[i]) > s.opts.Xtol*(math.Abs(params[i])+s.opts.Xtol) {
							stepSmall = false
							break
						}
					}

					if improvement <= s.opts.Ftol*cost {
						smallSteps++
					} else {
						smallSteps = 0
					}

					params, cost = trial, trialCost
					lambda = math.Max(lambda/10, lambdaMin)

					s.logger.Debug("fit iteration",
						slog.String("model", s.model.Name),
						slog.Int("iteration", iter),
						slog.Float64("cost", cost),
						slog.Float64("lambda", lambda))

					if cost == 0 || (smallSteps > 0 && stepSmall) || smallSteps > 1 {
						return s.result(params, cost, iter+1)
					}
					break
				}
			}

			lambda *= 10
			if lambda > lambdaMax {
				if iter == 0 {
					return Result{}, errors.Wrapf(ErrDivergence, "fit %s: no step improves the initial guess %v", s.model.Name, p0)
				}
				// No damped step reduces the cost: stationary point.
				return s.result(params, cost, iter+1)
			}
		}
	}

	return Result{}, errors.Wrapf(ErrDivergence, "fit %s: failed to converge in %d iterations", s.model.Name, s.opts.MaxIter)
}

func (s *solver) result(params []float64, cost float64, iterations int) (Result, error) {
	for _, p := range params {
		if !isFinite(p) {
			return Result{}, errors.Wrapf(ErrDivergence, "fit %s: non-finite parameters %v", s.model.Name, params)
		}
	}
	return Result{Params: params, Cost: cost, Iterations: iterations}, nil
}

func (s *solver) cost(params []float64) float64 {
	var sum float64
	for i, x := range s.xs {
		r := s.ys[i] - s.model.Eval(x, params)
		sum += r * r
	}
	return sum
}

// normalEquations fills J^T J and J^T r for the current parameters.
func (s *solver) normalEquations(params, jtj, jtr []float64) {
	n := len(params)
	for i := range jtj {
		jtj[i] = 0
	}
	for i := range jtr {
		jtr[i] = 0
	}

	grad := make([]float64, n)
	for k, x := range s.xs {
		s.gradient(x, params, grad)
		r := s.ys[k] - s.model.Eval(x, params)
		for i := 0; i < n; i++ {
			jtr[i] += grad[i] * r
			for j := 0; j < n; j++ {
				jtj[i*n+j] += grad[i] * grad[j]
			}
		}
	}
}

func (s *solver) gradient(x float64, params, grad []float64) {
	if s.model.Gradient != nil {
		s.model.Gradient(x, params, grad)
		return
	}

	f0 := s.model.Eval(x, params)
	shifted := append([]float64(nil), params...)
	for i := range params {
		h := math.Sqrt(2.220446049250313e-16) * math.Abs(params[i])
		if h == 0 {
			h = math.Sqrt(2.220446049250313e-16)
		}
		shifted[i] = params[i] + h
		grad[i] = (s.model.Eval(x, shifted) - f0) / h
		shifted[i] = params[i]
	}
}

// solveStep solves (J^T J + lambda diag(J^T J)) delta = J^T r.
func (s *solver) solveStep(jtj, jtr []float64, lambda float64) ([]float64, error) {
	n := len(jtr)
	sys := s.sys
	sys.Clear()

	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if err := sys.AddElement(i, j, jtj[(i-1)*n+(j-1)]); err != nil {
				return nil, err
			}
		}
		if err := sys.AddRHS(i, jtr[i-1]); err != nil {
			return nil, err
		}
	}
	sys.ScaleDiagonal(lambda)

	if err := sys.Solve(); err != nil {
		return nil, err
	}

	sol := sys.Solution()
	delta := make([]float64, n)
	for i := range delta {
		delta[i] = sol[i+1]
		if !isFinite(delta[i]) {
			return nil, errors.Errorf("non-finite step %v", delta)
		}
	}
	return delta, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
