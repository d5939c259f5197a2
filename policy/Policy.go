// Package policy defines the value function and parameter contracts
// that workers use to select actions and to synchronize with a central
// learner
package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ValueFunction is the inference contract a worker needs from its
// decision-making function: a mapping from a state observation to one
// value per discrete action.
type ValueFunction interface {
	// ActionValues returns the estimated value of every action in the
	// given state
	ActionValues(state mat.Vector) (*mat.VecDense, error)

	// NumActions returns the number of actions the value function
	// predicts values for
	NumActions() int
}

// Tensor is the wire form of a single parameter tensor. The order in
// which tensors are enumerated is the synchronization protocol: sender
// and receiver must agree on parameter count, order, and shapes out of
// band.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Size returns the number of elements described by the Tensor's shape
func (t Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// Validate checks that the Tensor's data matches its shape
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("validate: tensor has no shape")
	}
	if size := t.Size(); size != len(t.Data) {
		return fmt.Errorf("validate: shape describes %v elements but "+
			"tensor holds %v", size, len(t.Data))
	}
	return nil
}

// Network is a value function whose parameters a worker can replace
// wholesale during synchronization
type Network interface {
	ValueFunction
	Synchronizable
}

// Synchronizable is a value function whose parameters can be replaced
// wholesale by a parameter set broadcast from a learner.
//
// SetParameters copies content in place: the receiving value function
// keeps its identity, so any code holding a reference to it observes
// the update without re-acquisition. A count or shape mismatch is a
// protocol violation; implementations must reject the whole set
// without applying any of it.
type Synchronizable interface {
	// Parameters returns a snapshot of every parameter tensor in the
	// fixed enumeration order
	Parameters() []Tensor

	// SetParameters overwrites every parameter tensor's content, in
	// the same order Parameters enumerates them
	SetParameters(params []Tensor) error
}
