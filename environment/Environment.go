// Package environment outlines the interfaces needed to implement
// concrete environments that workers can collect experience from
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/timestep"
)

// Cardinality indicates whether the associated type is continuous or
// discrete
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// Spec tells the shape and bounds of an action or observation. For
// discrete actions enumerated from 0, the upper bound is the largest
// legal action.
type Spec struct {
	Shape      mat.Vector
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec returns a new Spec with the given shape and bounds
func NewSpec(shape, lowerBound, upperBound mat.Vector,
	c Cardinality) Spec {
	return Spec{shape, lowerBound, upperBound, c}
}

// Environment implements a simulated environment. Environments start
// ready to use and are reset between episodes with Reset.
//
// Environments own a seedable random number path used both for start
// state generation and for SampleAction, so that a worker seeded from
// its rank reproduces the same interaction trajectory on every run.
type Environment interface {
	// Reset resets the environment between episodes and returns the
	// starting timestep
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step given an action and returns
	// the resulting timestep
	Step(action mat.Vector) (timestep.TimeStep, error)

	// Seed reseeds the environment's random number path
	Seed(seed uint64)

	// SampleAction returns an action drawn uniformly at random from
	// the environment's action space
	SampleAction() mat.Vector

	ActionSpec() Spec
	ObservationSpec() Spec
}
