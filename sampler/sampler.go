// Package sampler implements the bookkeeping shared by MCMC samplers: the
// problem definition, custody of the random number generator, the chain and
// log-probability buffers, acceptance counters and the checkpoint used to
// resume a run. The proposal and acceptance rule are supplied by a Strategy.
package sampler

import (
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
)

// LogProbFunc returns the natural logarithm of the (unnormalized) target
// density at p. It may return math.Inf(-1). args are the fixed auxiliary
// arguments given at construction.
type LogProbFunc func(p []float64, args ...any) (float64, error)

// RandomState is an opaque snapshot of the sampler's random number generator.
type RandomState []byte

// State is the position of the chain after a step.
type State struct {
	Position    []float64
	LnProb      float64
	RandomState RandomState
}

// Strategy produces the next state of the chain from the current one.
// Implementations draw randomness from the sampler's Source and report
// whether the proposed state was accepted. When it was not, next is ignored.
type Strategy interface {
	Step(cur State) (next State, accepted bool, err error)
}

// ErrNoCheckpoint is returned by Run when no start position is given and Run
// has never completed before.
var ErrNoCheckpoint = errors.New("sampler: cannot run without a start position before Run has been called")

// Sampler holds the state of a single Markov chain.
type Sampler struct {
	dim      int         // dimension of the parameter space
	lnprob   LogProbFunc // target log-density
	args     []any       // fixed arguments passed to lnprob
	strategy Strategy    // proposal and acceptance rule

	src *rand.PCG // owned exclusively by the sampler

	chain      []float64 // row-major, len(lnprobs) rows of dim values
	lnprobs    []float64
	iterations int
	accepted   int
	lastRun    *State

	// generation is bumped by Reset and Load; outstanding sequences stop
	// stepping once it changes.
	generation uint64
}

// Option defines a functional option for configuring a Sampler
type Option func(*Sampler)

// WithArgs sets the fixed arguments passed to every log-probability call
func WithArgs(args ...any) Option {
	return func(s *Sampler) {
		s.args = append([]any{}, args...)
	}
}

// WithRandomSeed seeds the random number generator for reproducibility.
// A zero seed falls back to a time-based seed.
func WithRandomSeed(seed uint64) Option {
	return func(s *Sampler) {
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		s.src = rand.NewPCG(seed, seed)
	}
}

// WithSource hands an existing generator to the sampler. The sampler takes
// ownership of src.
func WithSource(src *rand.PCG) Option {
	return func(s *Sampler) {
		if src != nil {
			s.src = src
		}
	}
}

// New creates a sampler for a dim-dimensional target whose steps are produced
// by strategy.
func New(dim int, lnprob LogProbFunc, strategy Strategy, options ...Option) (*Sampler, error) {
	if dim <= 0 {
		return nil, errors.Errorf("sampler: dimension must be positive, got %d", dim)
	}
	if lnprob == nil {
		return nil, errors.New("sampler: log-probability function is required")
	}
	if strategy == nil {
		return nil, errors.New("sampler: strategy is required")
	}

	s := &Sampler{
		dim:      dim,
		lnprob:   lnprob,
		args:     []any{},
		strategy: strategy,
		src:      rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()),
	}

	for _, opt := range options {
		opt(s)
	}

	s.Reset()
	return s, nil
}

// Reset clears the chain, the log-probabilities, the counters and the
// checkpoint. The random number generator keeps its state.
func (s *Sampler) Reset() {
	s.chain = []float64{}
	s.lnprobs = []float64{}
	s.iterations = 0
	s.accepted = 0
	s.lastRun = nil
	s.generation++
}

// Dim returns the dimension of the parameter space.
func (s *Sampler) Dim() int { return s.dim }

// LogProb evaluates the target log-density at p. Errors from the
// log-probability function are returned unchanged.
func (s *Sampler) LogProb(p []float64) (float64, error) {
	return s.lnprob(p, s.args...)
}

// Source returns the generator strategies must draw from.
func (s *Sampler) Source() rand.Source { return s.src }

// RandomState returns a snapshot of the random number generator.
func (s *Sampler) RandomState() RandomState {
	state, err := s.src.MarshalBinary()
	if err != nil {
		// PCG marshaling cannot fail.
		panic(err)
	}
	return state
}

// SetRandomState restores the random number generator from a snapshot taken
// by RandomState and reports whether it did. An absent, malformed or
// incompatible snapshot leaves the generator untouched; this is not an error.
func (s *Sampler) SetRandomState(state RandomState) bool {
	if len(state) == 0 {
		return false
	}
	return s.src.UnmarshalBinary(state) == nil
}

// Iterations returns the number of proposals evaluated since the last Reset.
func (s *Sampler) Iterations() int { return s.iterations }

// Accepted returns the number of accepted proposals since the last Reset.
func (s *Sampler) Accepted() int { return s.accepted }

// AcceptanceFraction returns the fraction of proposals that were accepted.
// It requires Iterations() > 0 and is NaN otherwise.
func (s *Sampler) AcceptanceFraction() float64 {
	return float64(s.accepted) / float64(s.iterations)
}

// Len returns the number of rows in the chain.
func (s *Sampler) Len() int { return len(s.lnprobs) }

// Checkpoint returns the final state of the last Run, if any.
func (s *Sampler) Checkpoint() (State, bool) {
	if s.lastRun == nil {
		return State{}, false
	}
	return s.lastRun.clone(), true
}

func (st State) clone() State {
	return State{
		Position:    append([]float64(nil), st.Position...),
		LnProb:      st.LnProb,
		RandomState: append(RandomState(nil), st.RandomState...),
	}
}

// Run advances the chain n steps and returns the final state, which also
// becomes the checkpoint for the next Run. When p0 is nil the position, the
// log-probability and the random state default to the checkpoint; options
// given explicitly take precedence. Any iteration count in opts is replaced
// by n.
func (s *Sampler) Run(p0 []float64, n int, opts ...SampleOption) (State, error) {
	if n < 1 {
		return State{}, errors.Errorf("sampler: iteration count must be positive, got %d", n)
	}
	if p0 == nil {
		if s.lastRun == nil {
			return State{}, ErrNoCheckpoint
		}
		p0 = s.lastRun.Position
		defaults := []SampleOption{
			WithLnProb(s.lastRun.LnProb),
			WithRandomState(s.lastRun.RandomState),
		}
		opts = append(defaults, opts...)
	}
	opts = append(opts, WithIterations(n))

	seq, err := s.Sample(p0, opts...)
	if err != nil {
		return State{}, err
	}
	for seq.Next() {
	}
	if err := seq.Err(); err != nil {
		return State{}, err
	}

	final := seq.State()
	s.lastRun = &final
	return final.clone(), nil
}
