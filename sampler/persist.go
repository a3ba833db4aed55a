package sampler

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

const stateVersion = 1

// SamplerState represents the serializable state of a Sampler
type SamplerState struct {
	Version     int       `gob:"version"`
	Dim         int       `gob:"dim"`
	Chain       []float64 `gob:"chain"`
	LnProb      []float64 `gob:"lnprob"`
	Iterations  int       `gob:"iterations"`
	Accepted    int       `gob:"accepted"`
	RandomState []byte    `gob:"random_state"`

	HasLastRun      bool      `gob:"has_last_run"`
	LastPosition    []float64 `gob:"last_position"`
	LastLnProb      float64   `gob:"last_lnprob"`
	LastRandomState []byte    `gob:"last_random_state"`
}

// Save serializes the chain, counters, checkpoint and generator state to gob
// format. The log-probability function and its arguments are not saved.
func (s *Sampler) Save(w io.Writer) error {
	state := SamplerState{
		Version:     stateVersion,
		Dim:         s.dim,
		Chain:       append([]float64{}, s.chain...),
		LnProb:      append([]float64{}, s.lnprobs...),
		Iterations:  s.iterations,
		Accepted:    s.accepted,
		RandomState: s.RandomState(),
	}
	if s.lastRun != nil {
		state.HasLastRun = true
		state.LastPosition = append([]float64{}, s.lastRun.Position...)
		state.LastLnProb = s.lastRun.LnProb
		state.LastRandomState = append([]byte{}, s.lastRun.RandomState...)
	}

	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return errors.Wrap(err, "sampler: encode state")
	}
	return nil
}

// Load replaces the sampler's chain, counters, checkpoint and generator state
// with a snapshot written by Save. The snapshot must have the sampler's
// dimension. On error the sampler is left unchanged.
func (s *Sampler) Load(r io.Reader) error {
	var state SamplerState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return errors.Wrap(err, "sampler: decode state")
	}

	if state.Version != stateVersion {
		return errors.Errorf("sampler: unsupported state version %d", state.Version)
	}
	if state.Dim != s.dim {
		return errors.Errorf("sampler: state has dimension %d, want %d", state.Dim, s.dim)
	}
	if len(state.Chain) != len(state.LnProb)*state.Dim {
		return errors.New("sampler: invalid chain data length")
	}
	if state.Accepted < 0 || state.Accepted > state.Iterations {
		return errors.New("sampler: invalid counters")
	}
	if state.HasLastRun && len(state.LastPosition) != state.Dim {
		return errors.New("sampler: invalid checkpoint position length")
	}

	// Validate the generator state on a scratch source first.
	var src = *s.src
	if err := src.UnmarshalBinary(state.RandomState); err != nil {
		return errors.Wrap(err, "sampler: restore random state")
	}

	*s.src = src
	s.chain = append([]float64{}, state.Chain...)
	s.lnprobs = append([]float64{}, state.LnProb...)
	s.iterations = state.Iterations
	s.accepted = state.Accepted
	s.lastRun = nil
	if state.HasLastRun {
		s.lastRun = &State{
			Position:    append([]float64(nil), state.LastPosition...),
			LnProb:      state.LastLnProb,
			RandomState: append(RandomState(nil), state.LastRandomState...),
		}
	}
	s.generation++
	return nil
}
