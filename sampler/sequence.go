package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type sampleConfig struct {
	lnprob     *float64
	rstate     RandomState
	thin       int
	store      bool
	iterations int
}

// SampleOption configures a call to Sample or Run
type SampleOption func(*sampleConfig)

// WithLnProb supplies the log-probability at the start position so it is not
// recomputed.
func WithLnProb(lnprob float64) SampleOption {
	return func(c *sampleConfig) {
		c.lnprob = &lnprob
	}
}

// WithRandomState restores the generator before the first step. A snapshot
// that cannot be restored is ignored.
func WithRandomState(state RandomState) SampleOption {
	return func(c *sampleConfig) {
		c.rstate = state
	}
}

// WithThin stores only every k-th step in the chain
func WithThin(k int) SampleOption {
	return func(c *sampleConfig) {
		c.thin = k
	}
}

// WithStoreChain controls whether steps are written to the chain
func WithStoreChain(store bool) SampleOption {
	return func(c *sampleConfig) {
		c.store = store
	}
}

// WithIterations sets the number of steps to take
func WithIterations(n int) SampleOption {
	return func(c *sampleConfig) {
		c.iterations = n
	}
}

// Sequence advances a chain one step at a time. It is not safe for
// concurrent use and may be abandoned at any point: rows written so far stay
// valid.
type Sequence struct {
	s   *Sampler
	cur State
	gen uint64

	n     int // steps to take
	i     int // steps taken
	thin  int
	store bool
	base  int // first chain row owned by this sequence
	rows  int // rows reserved for this sequence

	err error
}

// Sample prepares a sequence of steps starting at p0. The random state is
// restored, the start log-probability computed when not supplied, and when
// the chain is stored it is extended by floor(n/k) rows for n iterations and
// thinning k. Nothing is stepped until Next is called.
func (s *Sampler) Sample(p0 []float64, opts ...SampleOption) (*Sequence, error) {
	cfg := sampleConfig{thin: 1, store: true, iterations: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(p0) != s.dim {
		return nil, errors.Errorf("sampler: start position has length %d, want %d", len(p0), s.dim)
	}
	if cfg.thin < 1 {
		return nil, errors.Errorf("sampler: thinning must be positive, got %d", cfg.thin)
	}
	if cfg.iterations < 0 {
		return nil, errors.Errorf("sampler: iteration count must not be negative, got %d", cfg.iterations)
	}

	s.SetRandomState(cfg.rstate)

	p := append([]float64(nil), p0...)
	var lnprob float64
	if cfg.lnprob != nil {
		lnprob = *cfg.lnprob
	} else {
		var err error
		if lnprob, err = s.LogProb(p); err != nil {
			return nil, err
		}
	}

	seq := &Sequence{
		s:     s,
		cur:   State{Position: p, LnProb: lnprob, RandomState: s.RandomState()},
		gen:   s.generation,
		n:     cfg.iterations,
		thin:  cfg.thin,
		store: cfg.store,
		base:  s.Len(),
	}
	if cfg.store {
		seq.rows = cfg.iterations / cfg.thin
		s.chain = append(s.chain, make([]float64, seq.rows*s.dim)...)
		s.lnprobs = append(s.lnprobs, make([]float64, seq.rows)...)
	}
	return seq, nil
}

// Next takes one step and reports whether it did. It returns false once all
// steps are taken, when the log-probability function failed, or when the
// sampler was reset or loaded after the sequence started.
func (q *Sequence) Next() bool {
	s := q.s
	if q.err != nil || q.i >= q.n || q.gen != s.generation {
		return false
	}

	s.iterations++
	next, accepted, err := s.strategy.Step(State{Position: q.cur.Position, LnProb: q.cur.LnProb})
	if err != nil {
		q.err = err
		return false
	}
	if accepted {
		q.cur.Position = next.Position
		q.cur.LnProb = next.LnProb
		s.accepted++
	}

	// Placement is relative to the start of this call, not to the lifetime
	// iteration counter.
	if q.store && q.i%q.thin == 0 {
		if row := q.i / q.thin; row < q.rows {
			copy(s.chain[(q.base+row)*s.dim:(q.base+row+1)*s.dim], q.cur.Position)
			s.lnprobs[q.base+row] = q.cur.LnProb
		}
	}

	q.cur.RandomState = s.RandomState()
	q.i++
	return true
}

// State returns the state after the most recent step, or the start state
// before the first one.
func (q *Sequence) State() State { return q.cur.clone() }

// Err returns the error that stopped the sequence, if any.
func (q *Sequence) Err() error { return q.err }

// Chain returns a copy of the stored positions, one row per retained step.
func (s *Sampler) Chain() [][]float64 {
	rows := make([][]float64, s.Len())
	for i := range rows {
		rows[i] = append([]float64(nil), s.chain[i*s.dim:(i+1)*s.dim]...)
	}
	return rows
}

// ChainMatrix returns a copy of the chain as a Len()×Dim() matrix, or nil
// when the chain is empty.
func (s *Sampler) ChainMatrix() *mat.Dense {
	if s.Len() == 0 {
		return nil
	}
	data := append([]float64(nil), s.chain...)
	return mat.NewDense(s.Len(), s.dim, data)
}

// LnProbability returns a copy of the log-probabilities of the stored
// positions.
func (s *Sampler) LnProbability() []float64 {
	return append([]float64{}, s.lnprobs...)
}
