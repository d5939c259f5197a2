// Package worker implements the collection workers of a distributed
// off-policy learning setup. Each worker drives its own environment
// interaction loop, folds transitions into training-ready experience,
// and periodically resynchronizes its parameters from a central
// learner.
package worker

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/timestep"
)

// Worker is the contract every concrete worker satisfies. A worker
// cycles through three states: idle, collecting, and emitting. Run
// drives the cycle until its context is cancelled or an unrecoverable
// error occurs; partially filled buffers at shutdown are discarded.
//
// Network and communication initialization happen at construction
// time: a type that cannot be built into a Worker fails its
// constructor, not its first cycle.
type Worker interface {
	// SelectAction selects an action for the given state under the
	// worker's behaviour policy. One call is the minimal
	// non-interruptible unit with respect to parameter content:
	// synchronization never lands mid-selection.
	SelectAction(state mat.Vector) (mat.Vector, error)

	// Step takes an action in the worker's environment
	Step(action mat.Vector) (timestep.TimeStep, error)

	// CollectData fills the local buffer across as many episodes as
	// needed and returns it frozen at exactly the configured size
	CollectData(ctx context.Context) (*buffer.Batch, error)

	// Synchronize replaces the worker's policy parameters wholesale
	Synchronize(params []policy.Tensor) error

	// Run drives the collect, prioritize, emit cycle until the
	// context is cancelled
	Run(ctx context.Context) error
}

// Config holds the hyperparameters of a collection worker
type Config struct {
	// NStep is the n-step window size; 1 disables n-step folding
	NStep int

	// Gamma is the discount factor used for n-step returns and the
	// priority loss
	Gamma float64

	// Epsilon schedule for the behaviour policy
	MaxEpsilon   float64
	MinEpsilon   float64
	EpsilonDecay float64

	// PerEps is the strictly positive floor added to every priority
	PerEps float64

	// LocalBufferMaxSize is the number of transitions collected per
	// cycle
	LocalBufferMaxSize int

	// Device is the logical compute target the worker is pinned to.
	// Opaque to the collection loop; carried for placement and logs.
	Device string
}

// Validate checks the Config, failing fast on malformed
// hyperparameters
func (c Config) Validate() error {
	if c.NStep < 1 {
		return fmt.Errorf("validate: n-step must be positive "+
			"\n\thave(%v)", c.NStep)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] "+
			"\n\thave(%v)", c.Gamma)
	}
	if c.PerEps <= 0 {
		return fmt.Errorf("validate: per eps must be strictly positive "+
			"\n\thave(%v)", c.PerEps)
	}
	if c.LocalBufferMaxSize < 1 {
		return fmt.Errorf("validate: local buffer max size must be "+
			"positive \n\thave(%v)", c.LocalBufferMaxSize)
	}

	schedule := c.Schedule()
	if err := schedule.Validate(); err != nil {
		return err
	}
	return nil
}

// Schedule returns the epsilon decay schedule described by the Config
func (c Config) Schedule() policy.Schedule {
	return policy.Schedule{
		MaxEpsilon:   c.MaxEpsilon,
		MinEpsilon:   c.MinEpsilon,
		EpsilonDecay: c.EpsilonDecay,
	}
}
