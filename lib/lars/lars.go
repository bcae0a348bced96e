// Package lars computes sparse approximations of a direction vector under a
// covariance metric. Given a Gram matrix Σ and a direction b it follows the
// least angle regression path of
//
//	min_β (b - β)ᵀ Σ (b - β) + λ‖β‖₁
//
// and picks one point of that path, either by an information criterion or
// at a requested penalty level λ. With adaptive weighting the penalty on
// every coefficient is scaled by 1/|b_j|.
package lars

import (
	"errors"
	"fmt"
	"math"

	"github.com/bioc/pathwayPCA/lib/settings"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNotConverged      = errors.New("lars path did not converge")
)

// A SolveError reports the path step at which the solver gave up.
type SolveError struct {
	Step   int
	Reason string
}

func (e SolveError) Error() string {
	return fmt.Sprintf("lars step %d: %s", e.Step, e.Reason)
}

func (e SolveError) Unwrap() error {
	return ErrNotConverged
}

// Request is one sparse solve.
type Request struct {
	// Gram is the p x p covariance-like matrix.
	Gram mat.Symmetric

	// Direction is the length-p vector to approximate.
	Direction mat.Vector

	// N is the number of samples behind Gram, used by BIC.
	N int

	Adaptive bool

	// Penalty is settings.PENALTY_LASSO or settings.PENALTY_LAR.
	// Empty means lasso.
	Penalty string

	// Para, if set, is the penalty level at which to read the path.
	Para *float64
}

// Path holds every knot of a solution path.
type Path struct {
	// Beta[k] is the coefficient vector at knot k, on the scale of the
	// original direction. Beta[0] is all zeros.
	Beta [][]float64

	// Lambda[k] is the penalty level at knot k. It never increases.
	Lambda []float64

	RSS []float64
	Df  []int
	AIC []float64
	BIC []float64
}

// A Solver computes LARS / LASSO paths on Gram matrices and picks one point
// of each path. It keeps no state between calls.
type Solver struct {
	config settings.LarsSettings
}

func NewSolver(config settings.LarsSettings) *Solver {
	return &Solver{config: config}
}

func (s *Solver) eps() float64 {
	if s.config.Eps > 0 {
		return s.config.Eps
	}
	return 1e-10
}

func (s *Solver) maxCondition() float64 {
	if s.config.MaxCondition > 0 {
		return s.config.MaxCondition
	}
	return 1e12
}

// Solve returns the selected sparse coefficient vector for req.
func (s *Solver) Solve(req Request) (*mat.VecDense, error) {
	if req.Para != nil && (*req.Para < 0 || math.IsNaN(*req.Para)) {
		return nil, fmt.Errorf("penalty parameter must be a non-negative number, got %f", *req.Para)
	}
	path, err := s.Path(req)
	if err != nil {
		return nil, err
	}
	var beta []float64
	if req.Para != nil {
		beta = path.AtLambda(*req.Para)
	} else {
		beta = path.Select(s.config.Criterion)
	}
	if !allFinite(beta) {
		return nil, SolveError{Step: len(path.Beta) - 1, Reason: "selected coefficients are not finite"}
	}
	return mat.NewVecDense(len(beta), beta), nil
}

// Path runs least angle regression on req and returns all knots.
func (s *Solver) Path(req Request) (*Path, error) {
	if req.Gram == nil || req.Direction == nil {
		return nil, fmt.Errorf("%w: gram matrix and direction are required", ErrDimensionMismatch)
	}
	m := req.Gram.SymmetricDim()
	if req.Direction.Len() != m {
		return nil, fmt.Errorf("%w: direction has length %d but gram matrix is %d x %d",
			ErrDimensionMismatch, req.Direction.Len(), m, m)
	}
	if req.N < 1 {
		return nil, fmt.Errorf("sample size must be positive, got %d", req.N)
	}
	lasso := true
	switch req.Penalty {
	case "", settings.PENALTY_LASSO:
	case settings.PENALTY_LAR:
		lasso = false
	default:
		return nil, fmt.Errorf("unsupported penalty %q", req.Penalty)
	}

	b0 := make([]float64, m)
	for i := range b0 {
		b0[i] = req.Direction.AtVec(i)
	}
	if !allFinite(b0) {
		return nil, SolveError{Step: 0, Reason: "direction is not finite"}
	}

	// Adaptive weighting rescales the problem to Σ' = DΣD, b' = sign(b)
	// with D = diag(|b|).
	sigma := mat.NewSymDense(m, nil)
	b := make([]float64, m)
	for i := 0; i < m; i++ {
		b[i] = b0[i]
		if req.Adaptive {
			b[i] = sign(b0[i])
		}
		for j := i; j < m; j++ {
			g := req.Gram.At(i, j)
			if math.IsNaN(g) || math.IsInf(g, 0) {
				return nil, SolveError{Step: 0, Reason: "gram matrix is not finite"}
			}
			if req.Adaptive {
				g *= math.Abs(b0[i]) * math.Abs(b0[j])
			}
			sigma.SetSym(i, j, g)
		}
	}

	betas, lambdas, err := s.walk(sigma, b, lasso)
	if err != nil {
		return nil, err
	}

	path := &Path{
		Beta:   betas,
		Lambda: lambdas,
		RSS:    make([]float64, len(betas)),
		Df:     make([]int, len(betas)),
		AIC:    make([]float64, len(betas)),
		BIC:    make([]float64, len(betas)),
	}
	eps := s.eps()
	logN := math.Log(float64(req.N))
	resid := mat.NewVecDense(m, nil)
	for k, beta := range betas {
		for i := 0; i < m; i++ {
			resid.SetVec(i, b[i]-beta[i])
		}
		path.RSS[k] = mat.Inner(resid, sigma, resid)
		if req.Adaptive {
			for i := range beta {
				beta[i] *= math.Abs(b0[i])
			}
		}
		for _, v := range beta {
			if math.Abs(v) > eps {
				path.Df[k]++
			}
		}
		path.AIC[k] = path.RSS[k] + 2*float64(path.Df[k])
		path.BIC[k] = path.RSS[k] + logN*float64(path.Df[k])
	}
	return path, nil
}

// walk follows the path for Σ and b. The coefficients are on the scale of b.
func (s *Solver) walk(sigma *mat.SymDense, b []float64, lasso bool) ([][]float64, []float64, error) {
	m := sigma.SymmetricDim()
	eps := s.eps()
	maxSteps := s.config.MaxSteps
	if maxSteps == 0 {
		maxSteps = 8 * m
	}

	cvecDense := mat.NewVecDense(m, nil)
	cvecDense.MulVec(sigma, mat.NewVecDense(m, b))
	cvec := cvecDense.RawVector().Data

	beta := make([]float64, m)
	isActive := make([]bool, m)
	ignored := make([]bool, m)
	var active []int
	var signs []float64
	nIgnored := 0
	dropped := false

	lambda0 := 0.0
	for _, c := range cvec {
		lambda0 = math.Max(lambda0, math.Abs(c))
	}
	betas := [][]float64{append([]float64(nil), beta...)}
	lambdas := []float64{lambda0}

	for k := 0; k < maxSteps && len(active)+nIgnored < m; k++ {
		inactive := inactiveSet(isActive, ignored)
		cmax := 0.0
		for j, c := range cvec {
			if !ignored[j] {
				cmax = math.Max(cmax, math.Abs(c))
			}
		}
		if cmax <= eps {
			break
		}

		// A variable that just left the active set is not readmitted in the
		// same step.
		if !dropped || len(active) == 0 {
			for _, j := range inactive {
				if math.Abs(cvec[j]) < cmax-eps {
					continue
				}
				candidate := append(append([]int(nil), active...), j)
				if _, ok := s.factorize(sigma, candidate); !ok {
					ignored[j] = true
					nIgnored++
					continue
				}
				active = candidate
				signs = append(signs, sign(cvec[j]))
				isActive[j] = true
			}
		}
		dropped = false
		if len(active) == 0 {
			break
		}

		chol, ok := s.factorize(sigma, active)
		if !ok {
			return nil, nil, SolveError{Step: k, Reason: "active set gram block is singular"}
		}
		gi1 := mat.NewVecDense(len(active), nil)
		if err := chol.SolveVecTo(gi1, mat.NewVecDense(len(signs), append([]float64(nil), signs...))); err != nil {
			return nil, nil, SolveError{Step: k, Reason: fmt.Sprintf("equiangular solve failed: %v", err)}
		}
		sdot := floats.Dot(gi1.RawVector().Data, signs)
		if !(sdot > 0) || math.IsInf(sdot, 0) {
			return nil, nil, SolveError{Step: k, Reason: "equiangular direction has no positive norm"}
		}
		aa := 1 / math.Sqrt(sdot)
		w := make([]float64, len(active))
		floats.ScaleTo(w, aa, gi1.RawVector().Data)

		gamhat := cmax / aa
		for _, j := range inactiveSet(isActive, ignored) {
			a := 0.0
			for l, i := range active {
				a += w[l] * sigma.At(i, j)
			}
			for _, g := range [2]float64{(cmax - cvec[j]) / (aa - a), (cmax + cvec[j]) / (aa + a)} {
				if g > eps && g < gamhat {
					gamhat = g
				}
			}
		}

		var drops []int
		if lasso {
			zmin := gamhat
			z := make([]float64, len(active))
			for l, i := range active {
				z[l] = -beta[i] / w[l]
				if z[l] > eps && z[l] < zmin {
					zmin = z[l]
				}
			}
			if zmin < gamhat {
				gamhat = zmin
				for l := range active {
					if z[l] == zmin {
						drops = append(drops, l)
					}
				}
			}
		}

		for l, i := range active {
			beta[i] += gamhat * w[l]
		}
		for i := 0; i < m; i++ {
			step := 0.0
			for l, j := range active {
				step += sigma.At(i, j) * w[l]
			}
			cvec[i] -= gamhat * step
		}

		for d := len(drops) - 1; d >= 0; d-- {
			l := drops[d]
			i := active[l]
			beta[i] = 0
			isActive[i] = false
			active = append(active[:l], active[l+1:]...)
			signs = append(signs[:l], signs[l+1:]...)
			dropped = true
		}

		if !allFinite(beta) {
			return nil, nil, SolveError{Step: k, Reason: "coefficients are not finite"}
		}
		betas = append(betas, append([]float64(nil), beta...))
		lambdas = append(lambdas, math.Max(cmax-gamhat*aa, 0))
	}
	return betas, lambdas, nil
}

// factorize returns the Cholesky factor of the Σ block indexed by idx, or
// false if the block is singular or too badly conditioned.
func (s *Solver) factorize(sigma *mat.SymDense, idx []int) (*mat.Cholesky, bool) {
	block := mat.NewSymDense(len(idx), nil)
	for a, i := range idx {
		for c := a; c < len(idx); c++ {
			block.SetSym(a, c, sigma.At(i, idx[c]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(block); !ok {
		return nil, false
	}
	if chol.Cond() > s.maxCondition() {
		return nil, false
	}
	return &chol, true
}

// Select returns the knot minimizing the criterion (settings.CRITERION_BIC
// or settings.CRITERION_AIC, BIC if empty).
func (p *Path) Select(criterion string) []float64 {
	scores := p.BIC
	if criterion == settings.CRITERION_AIC {
		scores = p.AIC
	}
	best := 0
	for k, v := range scores {
		if v < scores[best] {
			best = k
		}
	}
	return append([]float64(nil), p.Beta[best]...)
}

// AtLambda interpolates the path at penalty level lambda. Levels at or
// above the first knot give the zero vector; levels below the last knot
// give the last knot.
func (p *Path) AtLambda(lambda float64) []float64 {
	last := len(p.Beta) - 1
	if lambda >= p.Lambda[0] {
		return append([]float64(nil), p.Beta[0]...)
	}
	for k := 1; k <= last; k++ {
		if p.Lambda[k] > lambda {
			continue
		}
		span := p.Lambda[k-1] - p.Lambda[k]
		if span <= 0 {
			return append([]float64(nil), p.Beta[k]...)
		}
		t := (p.Lambda[k-1] - lambda) / span
		ret := make([]float64, len(p.Beta[k]))
		for i := range ret {
			ret[i] = (1-t)*p.Beta[k-1][i] + t*p.Beta[k][i]
		}
		return ret
	}
	return append([]float64(nil), p.Beta[last]...)
}

func inactiveSet(isActive, ignored []bool) []int {
	ret := make([]int, 0, len(isActive))
	for j := range isActive {
		if !isActive[j] && !ignored[j] {
			ret = append(ret, j)
		}
	}
	return ret
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func allFinite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
