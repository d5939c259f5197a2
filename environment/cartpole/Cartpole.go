// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	env "github.com/offpolicy/harvest/environment"
	ts "github.com/offpolicy/harvest/timestep"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnitude of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Episode failure thresholds
	PositionBound float64 = 2.4
	AngleBound    float64 = 12.0 * 2.0 * math.Pi / 360.0

	// Bound (+/-) on the uniform start state distribution
	StartBound float64 = 0.05

	// Discrete actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 1

	// Episode step cap
	MaxEpisodeSteps int = 500

	ObservationDims int = 4
)

// Cartpole implements the classic control environment Cartpole. A pole
// is attached to a cart which can move horizontally. Episodes end when
// the pole falls past a fixed angle, the cart leaves the track, or the
// step cap is reached.
//
// The state features are continuous and consist of the cart's x
// position and velocity, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity.
//
// Actions are discrete:
//
//	Action	Meaning
//	  0		Push cart left
//	  1		Push cart right
type Cartpole struct {
	lastStep ts.TimeStep
	rng      *rand.Rand
	start    distuv.Uniform
}

// New constructs a new Cartpole environment with the given seed
func New(seed uint64) *Cartpole {
	c := &Cartpole{}
	c.Seed(seed)
	c.lastStep = ts.New(c.startState(), 0, false, 0)
	return c
}

// Seed reseeds the environment's random number path. Both the start
// state distribution and the action sampler draw from this path.
func (c *Cartpole) Seed(seed uint64) {
	source := rand.NewSource(seed)
	c.rng = rand.New(source)
	c.start = distuv.Uniform{Min: -StartBound, Max: StartBound, Src: source}
}

// startState draws a start state from the environment's start state
// distribution
func (c *Cartpole) startState() *mat.VecDense {
	state := mat.NewVecDense(ObservationDims, nil)
	for i := 0; i < ObservationDims; i++ {
		state.SetVec(i, c.start.Rand())
	}
	return state
}

// Reset resets the environment and returns a starting timestep drawn
// from the start state distribution
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	startStep := ts.New(c.startState(), 0, false, 0)
	c.lastStep = startStep
	return startStep, nil
}

// SampleAction returns an action drawn uniformly at random from the
// environment's discrete action space
func (c *Cartpole) SampleAction() mat.Vector {
	numActions := MaxDiscreteAction - MinDiscreteAction + 1
	action := c.rng.Intn(numActions) + MinDiscreteAction
	return mat.NewVecDense(1, []float64{float64(action)})
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, lowerBound, upperBound, env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	lower := []float64{-PositionBound, math.Inf(-1), -AngleBound,
		math.Inf(-1)}
	lowerBound := mat.NewVecDense(ObservationDims, lower)

	upper := []float64{PositionBound, math.Inf(1), AngleBound,
		math.Inf(1)}
	upperBound := mat.NewVecDense(ObservationDims, upper)

	return env.NewSpec(shape, lowerBound, upperBound, env.Continuous)
}

// Step takes one environmental step given action a and returns the
// resulting timestep
func (c *Cartpole) Step(a mat.Vector) (ts.TimeStep, error) {
	intAction := int(a.AtVec(0))
	if intAction < MinDiscreteAction || intAction > MaxDiscreteAction {
		return ts.TimeStep{}, fmt.Errorf("step: illegal action %v ∉ [%v, %v]",
			intAction, MinDiscreteAction, MaxDiscreteAction)
	}

	// Get state variables
	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	// Magnify the action force in the appropriate direction
	force := ForceMag
	if intAction == MinDiscreteAction {
		force = -ForceMag
	}

	// Calculate physical variables to determine the next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	xDot += Dt * xAcc
	th += Dt * thDot
	thDot += Dt * thAcc

	newState := mat.NewVecDense(ObservationDims,
		[]float64{x, xDot, th, thDot})

	number := c.lastStep.Number + 1
	failed := math.Abs(x) > PositionBound || math.Abs(th) > AngleBound
	done := failed || number >= MaxEpisodeSteps

	nextStep := ts.New(newState, 1.0, done, number)
	c.lastStep = nextStep
	return nextStep, nil
}

func (c *Cartpole) String() string {
	msg := "Cartpole  |  Position: %v  |  Velocity: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"

	state := c.lastStep.Observation
	position, velocity := state.AtVec(0), state.AtVec(1)
	angle, angularVelocity := state.AtVec(2), state.AtVec(3)

	return fmt.Sprintf(msg, position, velocity, angle, angularVelocity)
}
