// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TimeStep packages together a single timestep in an environment: the
// observation the environment produced, the reward for reaching it,
// whether it ended the episode, and its index within the episode.
type TimeStep struct {
	Observation mat.Vector
	Reward      float64
	Done        bool
	Number      int
}

// New returns a new TimeStep with the given data
func New(o mat.Vector, r float64, done bool, n int) TimeStep {
	return TimeStep{o, r, done, n}
}

func (t TimeStep) String() string {
	str := "TimeStep | Reward:  %.2f  |  Done: %v  |  Step Number:  %v"
	return fmt.Sprintf(str, t.Reward, t.Done, t.Number)
}

// Transition packages together a single (s, a, r, s', done) tuple of
// the agent-environment interaction. Transitions are immutable once
// created.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	NextState mat.Vector
	Done      bool
}

// NewTransition constructs a Transition from the timestep at which an
// action was taken and the timestep that taking the action led to.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Done:      nextStep.Done,
	}
}
