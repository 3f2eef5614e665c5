package bo

import (
	"fmt"
	"math/rand"
)

// maxDesignTries bounds the uniform draws spent on each initial point.
const maxDesignTries = 1000

// initialDesign returns n feasible points drawn with method. Every random
// number comes from rng.
func initialDesign(method InitMethod, domain *Domain, n int, rng *rand.Rand) ([][]float64, error) {
	switch method {
	case InitLHS:
		return latinHypercube(domain, n, rng)
	case InitUniform:
		return uniformDesign(domain, n, rng)
	default:
		return nil, fmt.Errorf("%w: unknown init method %q", ErrInvalidConfiguration, method)
	}
}

// uniformDesign draws n points uniformly, redrawing the infeasible ones.
func uniformDesign(domain *Domain, n int, rng *rand.Rand) ([][]float64, error) {
	points := make([][]float64, 0, n)

	for len(points) < n {
		x, err := feasibleUniform(domain, rng)
		if err != nil {
			return nil, err
		}

		points = append(points, x)
	}

	return points, nil
}

// latinHypercube splits every axis into n strata, places one point per
// stratum at a random offset and pairs the strata of different axes through
// independent shuffles. Infeasible points are replaced by uniform feasible
// draws.
func latinHypercube(domain *Domain, n int, rng *rand.Rand) ([][]float64, error) {
	d := domain.Dim()

	units := make([][]float64, n)
	for i := range units {
		units[i] = make([]float64, d)
	}

	for j := 0; j < d; j++ {
		perm := rng.Perm(n)

		for i := 0; i < n; i++ {
			units[i][j] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}

	points := make([][]float64, n)

	for i, u := range units {
		x := domain.FromUnit(u)

		if !domain.IsFeasible(x) {
			var err error
			if x, err = feasibleUniform(domain, rng); err != nil {
				return nil, err
			}
		}

		points[i] = x
	}

	return points, nil
}

// feasibleUniform draws uniform points until one is feasible, giving up after
// maxDesignTries draws.
func feasibleUniform(domain *Domain, rng *rand.Rand) ([]float64, error) {
	for try := 0; try < maxDesignTries; try++ {
		if x := domain.SampleUniform(rng); domain.IsFeasible(x) {
			return x, nil
		}
	}

	return nil, fmt.Errorf("%w: no feasible initial point in %d draws", ErrAcquisitionSearchExhausted, maxDesignTries)
}
