package chainstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-metropolis/metropolis"
	"github.com/n0madic/go-metropolis/sampler"
)

type fakeChain struct {
	dim                  int
	chain                [][]float64
	lnprob               []float64
	iterations, accepted int
}

func (f fakeChain) Dim() int                 { return f.dim }
func (f fakeChain) Chain() [][]float64       { return f.chain }
func (f fakeChain) LnProbability() []float64 { return f.lnprob }
func (f fakeChain) Iterations() int          { return f.iterations }
func (f fakeChain) Accepted() int            { return f.accepted }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "chains.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSaveLoadRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	src := fakeChain{
		dim:        2,
		chain:      [][]float64{{0.5, -1}, {0.75, -1.25}, {0.75, -1.25}},
		lnprob:     []float64{-1.5, math.Inf(-1), math.NaN()},
		iterations: 3,
		accepted:   1,
	}
	require.NoError(t, store.SaveRun(ctx, "first", src))

	run, err := store.LoadRun(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", run.Name)
	assert.Equal(t, 2, run.Dim)
	assert.Equal(t, 3, run.Iterations)
	assert.Equal(t, 1, run.Accepted)
	assert.Equal(t, src.chain, run.Chain)
	require.Len(t, run.LnProb, 3)
	assert.Equal(t, -1.5, run.LnProb[0])
	assert.True(t, math.IsInf(run.LnProb[1], -1))
	assert.True(t, math.IsNaN(run.LnProb[2]))
}

func TestSaveLoadNonFinitePositions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	src := fakeChain{
		dim:        3,
		chain:      [][]float64{{math.Inf(1), math.Inf(-1), math.NaN()}, {0, math.Copysign(0, -1), math.MaxFloat64}},
		lnprob:     []float64{math.Inf(-1), 0},
		iterations: 2,
	}
	require.NoError(t, store.SaveRun(ctx, "edges", src))

	run, err := store.LoadRun(ctx, "edges")
	require.NoError(t, err)
	require.Len(t, run.Chain, 2)
	assert.True(t, math.IsInf(run.Chain[0][0], 1))
	assert.True(t, math.IsInf(run.Chain[0][1], -1))
	assert.True(t, math.IsNaN(run.Chain[0][2]))
	assert.True(t, math.Signbit(run.Chain[1][1]))
	assert.Equal(t, math.MaxFloat64, run.Chain[1][2])
}

func TestSaveRunReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, "run", fakeChain{
		dim: 1, chain: [][]float64{{1}, {2}, {3}}, lnprob: []float64{0, 0, 0}, iterations: 3, accepted: 2,
	}))
	require.NoError(t, store.SaveRun(ctx, "run", fakeChain{
		dim: 1, chain: [][]float64{{9}}, lnprob: []float64{-2}, iterations: 1, accepted: 0,
	}))

	run, err := store.LoadRun(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{9}}, run.Chain)
	assert.Equal(t, []float64{-2}, run.LnProb)
	assert.Equal(t, 1, run.Iterations)
	assert.Zero(t, run.Accepted)
}

func TestSaveRunValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.SaveRun(ctx, "", fakeChain{dim: 1}))
	assert.Error(t, store.SaveRun(ctx, "mismatch", fakeChain{
		dim: 1, chain: [][]float64{{1}}, lnprob: []float64{},
	}))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.SaveRun(canceled, "canceled", fakeChain{dim: 1}), context.Canceled)

	_, err := store.LoadRun(ctx, "mismatch")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLoadRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveSamplerRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m, err := metropolis.New(1, metropolis.Variance(1), func(p []float64, args ...any) (float64, error) {
		return distuv.UnitNormal.LogProb(p[0]), nil
	}, sampler.WithRandomSeed(42))
	require.NoError(t, err)
	_, err = m.Run([]float64{0}, 300, sampler.WithThin(3))
	require.NoError(t, err)

	require.NoError(t, store.SaveRun(ctx, "normal", m))

	run, err := store.LoadRun(ctx, "normal")
	require.NoError(t, err)
	assert.Equal(t, m.Chain(), run.Chain)
	assert.Equal(t, m.LnProbability(), run.LnProb)
	assert.Equal(t, 300, run.Iterations)
	assert.Equal(t, m.Accepted(), run.Accepted)
}
