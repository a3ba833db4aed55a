// Package utilities holds helpers for setting up sampler runs.
package utilities

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Ball returns size points scattered around p0, each coordinate perturbed by
// independent Gaussian noise with standard deviation sigma. A nil src uses
// the global generator.
func Ball(p0 []float64, sigma float64, size int, src rand.Source) [][]float64 {
	if size < 0 {
		size = 0
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}

	balls := make([][]float64, size)
	for i := range balls {
		p := make([]float64, len(p0))
		for j := range p {
			p[j] = p0[j] + noise.Rand()
		}
		balls[i] = p
	}
	return balls
}
