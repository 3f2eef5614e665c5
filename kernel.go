package bo

import (
	"fmt"
	"math"
)

//////
// Const, vars, types.
//////

// kernel is a stationary correlation function with one length-scale per
// dimension. The signal variance is applied by the surrogate, so
// Correlation(x, x, ·) is always 1.
type kernel interface {
	// Correlation returns the correlation between a and b, which live in the
	// unit cube and must have the same length as lengthScales.
	Correlation(a, b, lengthScales []float64) float64
}

// maternARD5 implements the Matérn 5/2 kernel.
//
// Mathematical formula:
//
//	r = sqrt(sum(((a_i - b_i) / l_i)^2))
//	k(a, b) = (1 + sqrt(5) r + 5/3 r^2) exp(-sqrt(5) r)
type maternARD5 struct{}

// seARD implements the squared exponential (RBF) kernel.
//
// Mathematical formula:
//
//	k(a, b) = exp(-sum(((a_i - b_i) / l_i)^2) / 2)
//
// Important notes:
// - Returns 1.0 for identical points
// - Returns values close to 0.0 for distant points
// - Produces worse-conditioned covariance matrices than the Matérn kernel
type seARD struct{}

//////
// Methods.
//////

// Correlation implements kernel.
func (maternARD5) Correlation(a, b, lengthScales []float64) float64 {
	r := math.Sqrt(scaledSquaredDistance(a, b, lengthScales))

	return (1 + math.Sqrt(5)*r + 5.0/3.0*r*r) * math.Exp(-math.Sqrt(5)*r)
}

// Correlation implements kernel.
func (seARD) Correlation(a, b, lengthScales []float64) float64 {
	return math.Exp(-scaledSquaredDistance(a, b, lengthScales) / 2)
}

//////
// Factory.
//////

// newKernel returns the kernel for kind.
func newKernel(kind KernelKind) (kernel, error) {
	switch kind {
	case KernelMaternARD5:
		return maternARD5{}, nil
	case KernelSEARD:
		return seARD{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kernel %q", ErrInvalidConfiguration, kind)
	}
}

// scaledSquaredDistance returns sum(((a_i - b_i) / l_i)^2).
func scaledSquaredDistance(a, b, lengthScales []float64) float64 {
	if len(a) != len(b) || len(a) != len(lengthScales) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range a {
		diff := (a[i] - b[i]) / lengthScales[i]

		sum += diff * diff
	}

	return sum
}
