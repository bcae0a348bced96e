// Package aespca computes adaptive elastic-net sparse principal components
// (AES-PCA) of a samples x features matrix.
//
// Decompose starts from the leading eigenvectors of the Gram matrix XᵀX and
// alternates between a sparse solve for every component and an orthogonal
// Procrustes realignment of the sparse loadings to the Gram matrix, until the
// normalized loadings stop moving or the iteration budget runs out. If the
// sparse solver fails for any component the whole call falls back to the
// plain SVD directions.
package aespca

import (
	"fmt"
	"math"

	"github.com/bioc/pathwayPCA/lib/lars"
	"github.com/bioc/pathwayPCA/lib/normalize"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/bioc/pathwayPCA/lib/svd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// SolveRequest is what the decomposer asks of a Solver for one component.
type SolveRequest = lars.Request

// A Solver returns a sparse coefficient vector approximating req.Direction.
// Implementations must not keep state between calls.
type Solver interface {
	Solve(req SolveRequest) (*mat.VecDense, error)
}

// Decomposer runs AES-PCA. It holds no per-call state and may be shared
// between goroutines as long as its Solver may be.
type Decomposer struct {
	solver Solver
	// align realigns the directions to G·B; svd.Procrustes when nil.
	align  func(m mat.Matrix) (*mat.Dense, error)
	logger zerolog.Logger
}

// NewDecomposer returns a decomposer that uses the least angle regression
// solver configured by the settings of each call.
func NewDecomposer(logger zerolog.Logger) *Decomposer {
	return &Decomposer{logger: logger}
}

// NewDefaultDecomposer logs to the global zerolog logger.
func NewDefaultDecomposer() *Decomposer {
	return NewDecomposer(log.Logger)
}

// WithSolver returns a copy of d that uses solver for every component.
func (d *Decomposer) WithSolver(solver Solver) *Decomposer {
	return &Decomposer{solver: solver, align: d.align, logger: d.logger}
}

func (d *Decomposer) realign(m mat.Matrix) (*mat.Dense, error) {
	if d.align != nil {
		return d.align(m)
	}
	return svd.Procrustes(m)
}

func (d *Decomposer) solverFor(cfg settings.AESSettings) Solver {
	if d.solver != nil {
		return d.solver
	}
	return lars.NewSolver(cfg.Lars)
}

// Decompose computes cfg.Components sparse components of the n x p matrix x.
// features names the columns of x; nil means V1..Vp.
//
// Decompose never fails: structural problems (bad shapes, non-finite data, a
// Gram matrix that cannot be eigendecomposed) give a result with
// StatusUnusable and NaN-filled matrices. Check Usable before reading it.
func (d *Decomposer) Decompose(x mat.Matrix, features []string, cfg settings.AESSettings) (result *Result) {
	if x == nil {
		return newUnusable(0, 0, cfg.Components, features)
	}
	n, p := x.Dims()
	k := cfg.Components
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("decomposition aborted")
			result = newUnusable(n, p, k, features)
		}
	}()

	if err := checkInput(n, p, features, cfg); err != nil {
		d.logger.Debug().Err(err).Msg("cannot decompose")
		return newUnusable(n, p, k, features)
	}

	gram := svd.Gram(x)
	if !normalize.AllFinite(gram) {
		d.logger.Debug().Msg("gram matrix has non-finite entries")
		return newUnusable(n, p, k, features)
	}
	tsvd := &svd.TruncatedSVD{K: k}
	if err := tsvd.Fit(gram); err != nil {
		d.logger.Debug().Err(err).Msg("cannot decompose gram matrix")
		return newUnusable(n, p, k, features)
	}
	a0 := tsvd.Components

	a := mat.DenseCopyOf(a0)
	b := mat.DenseCopyOf(a0)
	previous := mat.DenseCopyOf(a0)
	solver := d.solverFor(cfg)

	iteration := 0
	diff := 1.0
	var failed []int
	var firstErr error
	for iteration < cfg.MaxIter && diff > cfg.EpsConv {
		iteration++
		failed = failed[:0]
		firstErr = nil

		for i := 0; i < k; i++ {
			req := SolveRequest{
				Gram:      gram,
				Direction: a.ColView(i),
				N:         n,
				Adaptive:  cfg.Adaptive,
				Penalty:   settings.PENALTY_LASSO,
			}
			if cfg.Para != nil {
				para := cfg.Para[i]
				req.Para = &para
			}
			coef, err := solveComponent(solver, req, p)
			if err != nil {
				d.logger.Debug().Err(err).Int("component", i).Int("iteration", iteration).
					Msg("sparse solve failed")
				if firstErr == nil {
					firstErr = err
				}
				failed = append(failed, i)
				continue
			}
			for j := 0; j < p; j++ {
				b.Set(j, i, coef.AtVec(j))
			}
		}
		if len(failed) > 0 {
			break
		}

		normalize.NormalizeColumns(b)
		diff = normalize.MaxAbsDiff(b, previous)
		previous.Copy(b)

		var target mat.Dense
		target.Mul(gram, b)
		rotation, err := d.realign(&target)
		if err != nil {
			firstErr = err
			for i := 0; i < k; i++ {
				failed = append(failed, i)
			}
			break
		}
		a = rotation
		d.logger.Debug().Int("iteration", iteration).Float64("diff", diff).Msg("aes round done")
	}

	result = &Result{
		FeatureNames:   featureNames(features, p),
		ComponentNames: componentNames(k),
		Samples:        n,
		Iterations:     iteration,
		Diff:           diff,
		SVDLoadings:    a0,
	}
	switch {
	case len(failed) > 0:
		d.logger.Warn().Err(firstErr).Ints("components", failed).Int("iteration", iteration).
			Msg("sparse solver failed, substituting SVD loadings")
		b = mat.DenseCopyOf(a0)
		result.Status = StatusFallback
		result.FailedComponents = append([]int(nil), failed...)
	case iteration > 0 && diff <= cfg.EpsConv:
		result.Status = StatusConverged
	default:
		result.Status = StatusIterationLimit
	}

	// The SVD directions are unit norm already and are returned unchanged.
	if result.Status != StatusFallback && iteration > 0 {
		normalize.NormalizeColumns(b)
	}
	svdScores, err := tsvd.Transform(x)
	if err != nil {
		d.logger.Debug().Err(err).Msg("cannot project onto svd directions")
		return newUnusable(n, p, k, features)
	}
	result.Loadings = b
	result.Scores = mat.NewDense(n, k, nil)
	result.Scores.Mul(x, b)
	result.SVDScores = svdScores
	return result
}

func checkInput(n, p int, features []string, cfg settings.AESSettings) error {
	if n < 1 || p < 1 {
		return fmt.Errorf("need at least one sample and one feature, got %d x %d", n, p)
	}
	if features != nil && len(features) != p {
		return fmt.Errorf("%d feature names for %d features", len(features), p)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Components > p {
		return fmt.Errorf("cannot extract %d components from %d features", cfg.Components, p)
	}
	return nil
}

// solveComponent runs one solve and rejects output the decomposer cannot
// use. A panicking solver counts as a failed solve.
func solveComponent(solver Solver, req SolveRequest, p int) (coef *mat.VecDense, err error) {
	defer func() {
		if r := recover(); r != nil {
			coef, err = nil, fmt.Errorf("solver panicked: %v", r)
		}
	}()
	coef, err = solver.Solve(req)
	if err != nil {
		return nil, err
	}
	if coef == nil || coef.Len() != p {
		return nil, fmt.Errorf("solver returned %d coefficients for %d features", lenOf(coef), p)
	}
	for i := 0; i < p; i++ {
		if v := coef.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("solver returned non-finite coefficient %f at %d", v, i)
		}
	}
	return coef, nil
}

func lenOf(v *mat.VecDense) int {
	if v == nil {
		return 0
	}
	return v.Len()
}
