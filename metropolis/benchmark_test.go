package metropolis

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/n0madic/go-metropolis/sampler"
)

// BenchmarkMetropolis measures stepping cost across dimensions
func BenchmarkMetropolis(b *testing.B) {
	dimensions := []int{1, 5, 50}

	for _, d := range dimensions {
		b.Run(fmt.Sprintf("Run_d%d", d), func(b *testing.B) {
			benchmarkRun(b, d, true)
		})

		b.Run(fmt.Sprintf("RunNoStore_d%d", d), func(b *testing.B) {
			benchmarkRun(b, d, false)
		})
	}
}

func benchmarkRun(b *testing.B, d int, store bool) {
	cov := Variance(1)
	if d > 1 {
		cov = Matrix(identity(d, 1.0/float64(d)))
	}
	gaussian := func(p []float64, args ...any) (float64, error) {
		return -0.5 * floats.Dot(p, p), nil
	}

	m, err := New(d, cov, gaussian, sampler.WithRandomSeed(42))
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	if _, err := m.Run(make([]float64, d), 1, sampler.WithStoreChain(store)); err != nil {
		b.Fatalf("Run() error = %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	if _, err := m.Run(nil, b.N, sampler.WithStoreChain(store)); err != nil {
		b.Fatalf("Run() error = %v", err)
	}
}
