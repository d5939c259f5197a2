package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/utils/floatutils"
)

// ActionSampler draws actions uniformly at random from an action
// space. Environments satisfy this interface.
type ActionSampler interface {
	SampleAction() mat.Vector
}

// Schedule holds the linear epsilon decay schedule of an EGreedy
// policy. After every action selection, epsilon is decremented by
// (MaxEpsilon - MinEpsilon) * EpsilonDecay and floored at MinEpsilon.
// Epsilon never increases for the life of the policy.
type Schedule struct {
	MaxEpsilon   float64
	MinEpsilon   float64
	EpsilonDecay float64
}

// Validate checks that the Schedule is well formed
func (s Schedule) Validate() error {
	if s.MaxEpsilon < 0 || s.MaxEpsilon > 1 {
		return fmt.Errorf("validate: max epsilon must be in [0, 1] "+
			"\n\thave(%v)", s.MaxEpsilon)
	}
	if s.MinEpsilon < 0 || s.MinEpsilon > s.MaxEpsilon {
		return fmt.Errorf("validate: min epsilon must be in [0, max "+
			"epsilon] \n\thave(%v)", s.MinEpsilon)
	}
	if s.EpsilonDecay < 0 {
		return fmt.Errorf("validate: epsilon decay must be non-negative "+
			"\n\thave(%v)", s.EpsilonDecay)
	}
	return nil
}

// EGreedy implements an ε-greedy action selector over a ValueFunction.
// With probability ε an action is sampled uniformly from the action
// space; otherwise the arg-max action is taken, with ties broken
// uniformly at random. Epsilon decays linearly after every selection.
type EGreedy struct {
	vf       ValueFunction
	sampler  ActionSampler
	schedule Schedule
	epsilon  float64
	rng      *rand.Rand
}

// NewEGreedy returns a new EGreedy selector. The seed determines the
// full exploration trajectory: two selectors with the same seed,
// schedule, value function, and sampler choose identical action
// sequences.
func NewEGreedy(vf ValueFunction, sampler ActionSampler, schedule Schedule,
	seed uint64) (*EGreedy, error) {
	if vf == nil {
		return nil, fmt.Errorf("newegreedy: no value function given")
	}
	if sampler == nil {
		return nil, fmt.Errorf("newegreedy: no action sampler given")
	}
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("newegreedy: %v", err)
	}

	return &EGreedy{
		vf:       vf,
		sampler:  sampler,
		schedule: schedule,
		epsilon:  schedule.MaxEpsilon,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Epsilon returns the current value of epsilon
func (e *EGreedy) Epsilon() float64 {
	return e.epsilon
}

// SelectAction selects an action for the given state and then decays
// epsilon. Exploring and exploiting selections both decay.
func (e *EGreedy) SelectAction(state mat.Vector) (mat.Vector, error) {
	defer e.decay()

	if e.rng.Float64() < e.epsilon {
		return e.sampler.SampleAction(), nil
	}

	values, err := e.vf.ActionValues(state)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}

	// If multiple actions have max value, choose one of them at random
	_, maxIndices := floatutils.MaxSlice(values.RawVector().Data)
	action := maxIndices[e.rng.Intn(len(maxIndices))]

	return mat.NewVecDense(1, []float64{float64(action)}), nil
}

// decay applies one step of the linear epsilon schedule
func (e *EGreedy) decay() {
	step := (e.schedule.MaxEpsilon - e.schedule.MinEpsilon) *
		e.schedule.EpsilonDecay
	e.epsilon = floatutils.Max(e.epsilon-step, e.schedule.MinEpsilon)
}
