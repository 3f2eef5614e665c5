package bo

import (
	"fmt"
	"math/rand"
)

//////
// Const, vars, types.
//////

// Domain is a bounded, axis-aligned search box with an optional reachability
// predicate carving out a non-box feasible region. A Domain is immutable.
//
// Usage example:
//
//	domain, err := NewDomain(
//	    []float64{-5, -5},
//	    []float64{5, 5},
//	    WithReachability(func(x []float64) bool {
//	        return x[0]*x[0]+x[1]*x[1] <= 25 // Disk of radius 5.
//	    }),
//	)
type Domain struct {
	lower []float64
	upper []float64

	// reachable is never nil, it defaults to "always true".
	reachable func(x []float64) bool
}

// DomainOption configures a Domain.
type DomainOption func(*Domain)

//////
// Factory.
//////

// WithReachability sets the reachability predicate. A nil predicate keeps the
// default, which accepts every point of the box.
func WithReachability(reachable func(x []float64) bool) DomainOption {
	return func(d *Domain) {
		if reachable != nil {
			d.reachable = reachable
		}
	}
}

// NewDomain validates the bounds and returns the Domain. It fails with
// ErrInvalidDomain when the bounds are empty, of different lengths, not
// finite, or when any lower[i] > upper[i]. lower[i] == upper[i] is allowed and
// pins that coordinate.
func NewDomain(lower, upper []float64, opts ...DomainOption) (*Domain, error) {
	if len(lower) == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidDomain)
	}

	if len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: %d lower bounds, %d upper bounds", ErrInvalidDomain, len(lower), len(upper))
	}

	if !allFinite(lower) || !allFinite(upper) {
		return nil, fmt.Errorf("%w: bounds must be finite", ErrInvalidDomain)
	}

	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: lower[%d]=%v > upper[%d]=%v", ErrInvalidDomain, i, lower[i], i, upper[i])
		}
	}

	d := &Domain{
		lower:     cloneVector(lower),
		upper:     cloneVector(upper),
		reachable: func([]float64) bool { return true },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

//////
// Methods.
//////

// Dim returns the number of dimensions.
func (d *Domain) Dim() int { return len(d.lower) }

// Lower returns a copy of the lower bounds.
func (d *Domain) Lower() []float64 { return cloneVector(d.lower) }

// Upper returns a copy of the upper bounds.
func (d *Domain) Upper() []float64 { return cloneVector(d.upper) }

// Contains reports whether x lies inside the box (bounds included). Points of
// the wrong dimension or with NaN coordinates are never contained.
func (d *Domain) Contains(x []float64) bool {
	if len(x) != len(d.lower) {
		return false
	}

	for i, v := range x {
		// NaN fails both comparisons.
		if !(v >= d.lower[i] && v <= d.upper[i]) {
			return false
		}
	}

	return true
}

// IsFeasible reports whether x is inside the box and accepted by the
// reachability predicate. The predicate is only consulted for points of the
// box.
func (d *Domain) IsFeasible(x []float64) bool {
	return d.Contains(x) && d.reachable(x)
}

// SampleUniform draws a point uniformly inside the box. It consumes exactly
// one rng.Float64 per dimension, so the draw is deterministic given the state
// of rng.
func (d *Domain) SampleUniform(rng *rand.Rand) []float64 {
	x := make([]float64, len(d.lower))

	for i := range x {
		x[i] = d.fromUnitAxis(i, rng.Float64())
	}

	return x
}

// Centroid returns the center of the box.
func (d *Domain) Centroid() []float64 {
	c := make([]float64, len(d.lower))

	for i := range c {
		c[i] = d.lower[i] + (d.upper[i]-d.lower[i])/2
	}

	return c
}

// Clamp returns a copy of x projected onto the box.
func (d *Domain) Clamp(x []float64) []float64 {
	out := make([]float64, len(x))

	for i, v := range x {
		out[i] = clamp(v, d.lower[i], d.upper[i])
	}

	return out
}

// ToUnit maps x affinely from the box to the unit cube. Pinned coordinates
// (lower == upper) map to 0.5.
func (d *Domain) ToUnit(x []float64) []float64 {
	u := make([]float64, len(x))

	for i, v := range x {
		width := d.upper[i] - d.lower[i]
		if width == 0 {
			u[i] = 0.5

			continue
		}

		u[i] = (v - d.lower[i]) / width
	}

	return u
}

// FromUnit maps u from the unit cube back to the box. Pinned coordinates map
// to their bound.
func (d *Domain) FromUnit(u []float64) []float64 {
	x := make([]float64, len(u))

	for i, v := range u {
		x[i] = d.fromUnitAxis(i, v)
	}

	return x
}

// fromUnitAxis maps a unit coordinate on axis i, keeping the result inside
// [lower, upper] despite rounding.
func (d *Domain) fromUnitAxis(i int, v float64) float64 {
	lo, hi := d.lower[i], d.upper[i]
	if lo == hi {
		return lo
	}

	return clamp(lo+v*(hi-lo), lo, hi)
}

// isDegenerate reports whether every coordinate is pinned, which leaves a
// single point as the whole box.
func (d *Domain) isDegenerate() bool {
	for i := range d.lower {
		if d.lower[i] != d.upper[i] {
			return false
		}
	}

	return true
}
