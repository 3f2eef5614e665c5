package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thalesfsp/bo"
)

// demoObjective is a built-in test function with its natural search box.
type demoObjective struct {
	objective bo.Objective
	lower     []float64
	upper     []float64
}

var demoObjectives = map[string]demoObjective{
	// |c1 x - c2| on [1, 10], minimum near x = 3.
	"abs": {
		objective: bo.ObjectiveFunc(func(x []float64) float64 {
			return math.Abs(1.21056e-09/7.0*x[0] - 5.1881e-10)
		}),
		lower: []float64{1},
		upper: []float64{10},
	},

	// Six-hump camel, two global minima of about -1.0316.
	"camelback": {
		objective: bo.ObjectiveFunc(func(x []float64) float64 {
			x1, x2 := x[0], x[1]

			return (4-2.1*x1*x1+x1*x1*x1*x1/3)*x1*x1 + x1*x2 + (-4+4*x2*x2)*x2*x2
		}),
		lower: []float64{-3, -2},
		upper: []float64{3, 2},
	},

	// Branin restricted to the disk of radius 7.5 around (2.5, 7.5).
	"branin-disk": {
		objective: bo.Constrained(
			func(x []float64) float64 {
				a, b, c := 1.0, 5.1/(4*math.Pi*math.Pi), 5/math.Pi
				r, s, t := 6.0, 10.0, 1/(8*math.Pi)
				y := x[1] - b*x[0]*x[0] + c*x[0] - r

				return a*y*y + s*(1-t)*math.Cos(x[0]) + s
			},
			func(x []float64) bool {
				dx, dy := x[0]-2.5, x[1]-7.5

				return dx*dx+dy*dy <= 7.5*7.5
			},
		),
		lower: []float64{-5, 0},
		upper: []float64{10, 15},
	},
}

func lookupObjective(name string) (demoObjective, error) {
	demo, ok := demoObjectives[name]
	if !ok {
		return demoObjective{}, fmt.Errorf("unknown objective %q (available: %s)", name, strings.Join(objectiveNames(), ", "))
	}

	return demo, nil
}

func objectiveNames() []string {
	names := make([]string, 0, len(demoObjectives))
	for name := range demoObjectives {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
