// Package metropolis provides a Metropolis MCMC sampler with Gaussian proposals.
package metropolis

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-metropolis/sampler"
)

// Covariance shapes the Gaussian proposal distribution. One-dimensional
// problems take a scalar variance, all others a full covariance matrix.
type Covariance struct {
	variance float64
	matrix   mat.Symmetric
}

// Variance returns the proposal covariance of a one-dimensional problem.
func Variance(v float64) Covariance {
	return Covariance{variance: v}
}

// Matrix returns a full proposal covariance. The matrix is not copied.
func Matrix(m mat.Symmetric) Covariance {
	return Covariance{matrix: m}
}

// Sampler implements the Metropolis algorithm with a symmetric Gaussian
// proposal centred on the current position:
// - isotropic univariate normal perturbation when the dimension is 1
// - multivariate normal perturbation with a fixed covariance otherwise
// - acceptance with probability min(1, exp(Δ ln p)), evaluated in log-space
//
// The embedded sampler.Sampler provides Run, Sample, Reset and the chain
// accessors.
type Sampler struct {
	*sampler.Sampler

	cov   Covariance
	sigma float64    // proposal standard deviation, dimension 1
	root  *mat.Dense // root·rootᵀ = covariance, dimension > 1
}

// New creates a Metropolis sampler for a dim-dimensional target. The
// covariance shape must match dim. A covariance matrix may be singular; it
// is rejected only when it has a clearly negative eigenvalue. A negative
// scalar variance is not checked.
func New(dim int, cov Covariance, lnprob sampler.LogProbFunc, options ...sampler.Option) (*Sampler, error) {
	m := &Sampler{cov: cov}

	base, err := sampler.New(dim, lnprob, m, options...)
	if err != nil {
		return nil, err
	}
	m.Sampler = base

	if dim == 1 {
		if cov.matrix != nil {
			return nil, errors.New("metropolis: one-dimensional problems take a scalar variance")
		}
		m.sigma = math.Sqrt(cov.variance)
		return m, nil
	}

	if cov.matrix == nil {
		return nil, errors.Errorf("metropolis: %d-dimensional problem needs a covariance matrix", dim)
	}
	if n := cov.matrix.SymmetricDim(); n != dim {
		return nil, errors.Errorf("metropolis: covariance is %d×%d, want %d×%d", n, n, dim, dim)
	}
	root, err := covarianceRoot(cov.matrix)
	if err != nil {
		return nil, err
	}
	m.root = root

	return m, nil
}

// covarianceRoot returns V·sqrt(Λ) for the eigendecomposition V·Λ·Vᵀ of a
// positive semi-definite matrix. Eigenvalues within rounding of zero are
// treated as zero.
func covarianceRoot(sym mat.Symmetric) (*mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.New("metropolis: eigendecomposition of the covariance matrix failed")
	}
	values := eig.Values(nil)

	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	tol := 1e-10 * maxAbs

	var root mat.Dense
	eig.VectorsTo(&root)
	n := len(values)
	for j, v := range values {
		if v < -tol {
			return nil, errors.Errorf("metropolis: covariance matrix has negative eigenvalue %g", v)
		}
		scale := 0.0
		if v > tol {
			scale = math.Sqrt(v)
		}
		for i := 0; i < n; i++ {
			root.Set(i, j, root.At(i, j)*scale)
		}
	}
	return &root, nil
}

// Covariance returns the proposal covariance.
func (m *Sampler) Covariance() Covariance { return m.cov }

// Step proposes a move from cur and applies the Metropolis acceptance rule.
// It consumes one proposal draw per call and one uniform draw only when the
// proposal lowers the log-probability.
func (m *Sampler) Step(cur sampler.State) (sampler.State, bool, error) {
	q := m.propose(cur.Position)

	lnprob, err := m.LogProb(q)
	if err != nil {
		return sampler.State{}, false, err
	}

	if !m.accept(lnprob - cur.LnProb) {
		return cur, false, nil
	}
	return sampler.State{Position: q, LnProb: lnprob}, true, nil
}

// propose draws a candidate around p. The proposal is symmetric, so no
// Hastings correction is needed.
func (m *Sampler) propose(p []float64) []float64 {
	if m.root == nil {
		n := distuv.Normal{Mu: p[0], Sigma: m.sigma, Src: m.Source()}
		return []float64{n.Rand()}
	}
	n := len(p)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: m.Source()}
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, noise.Rand())
	}

	q := make([]float64, n)
	mat.NewVecDense(n, q).MulVec(m.root, z)
	floats.Add(q, p)
	return q
}

// accept decides a move given delta = ln p(candidate) - ln p(current).
func (m *Sampler) accept(delta float64) bool {
	switch {
	case delta >= 0:
		return true
	case delta < 0:
		u := distuv.Uniform{Min: 0, Max: 1, Src: m.Source()}
		return u.Rand() < math.Exp(delta)
	default:
		// NaN, e.g. both log-probabilities are -Inf.
		return false
	}
}
