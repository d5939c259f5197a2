package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Linear implements a linear action-value function: one weight row per
// action, one column per state feature. It satisfies both
// ValueFunction and Synchronizable, and is the reference
// implementation used by tests and in-process deployments.
type Linear struct {
	weights  *mat.Dense
	actions  int
	features int
}

// NewLinear returns a zero-initialized linear value function over the
// given numbers of actions and state features
func NewLinear(actions, features int) (*Linear, error) {
	if actions < 1 || features < 1 {
		return nil, fmt.Errorf("newlinear: actions and features must be "+
			"positive \n\thave actions(%v) features(%v)", actions, features)
	}

	return &Linear{
		weights:  mat.NewDense(actions, features, nil),
		actions:  actions,
		features: features,
	}, nil
}

// NewUniformLinear returns a linear value function with weights drawn
// uniformly from [-bound, bound] using the given seed
func NewUniformLinear(actions, features int, bound float64,
	seed uint64) (*Linear, error) {
	l, err := NewLinear(actions, features)
	if err != nil {
		return nil, err
	}

	dist := distuv.Uniform{Min: -bound, Max: bound, Src: rand.NewSource(seed)}
	backing := l.weights.RawMatrix().Data
	for i := range backing {
		backing[i] = dist.Rand()
	}
	return l, nil
}

// NumActions returns the number of actions the value function predicts
// values for
func (l *Linear) NumActions() int {
	return l.actions
}

// ActionValues returns the estimated value of every action in the
// given state
func (l *Linear) ActionValues(state mat.Vector) (*mat.VecDense, error) {
	if state.Len() != l.features {
		return nil, fmt.Errorf("actionvalues: invalid state size "+
			"\n\twant(%v)\n\thave(%v)", l.features, state.Len())
	}

	values := mat.NewVecDense(l.actions, nil)
	values.MulVec(l.weights, state)
	return values, nil
}

// Parameters returns a snapshot of the value function's single weight
// tensor
func (l *Linear) Parameters() []Tensor {
	raw := l.weights.RawMatrix()
	data := make([]float64, len(raw.Data))
	copy(data, raw.Data)

	return []Tensor{{Shape: []int{l.actions, l.features}, Data: data}}
}

// SetParameters overwrites the weight tensor's content in place. The
// weight matrix keeps its identity, so references held across the
// synchronization boundary observe the new content.
func (l *Linear) SetParameters(params []Tensor) error {
	if len(params) != 1 {
		return fmt.Errorf("setparameters: invalid parameter count "+
			"\n\twant(1)\n\thave(%v)", len(params))
	}
	if err := params[0].Validate(); err != nil {
		return fmt.Errorf("setparameters: %v", err)
	}

	shape := params[0].Shape
	if len(shape) != 2 || shape[0] != l.actions || shape[1] != l.features {
		return fmt.Errorf("setparameters: invalid parameter shape "+
			"\n\twant(%v)\n\thave(%v)", []int{l.actions, l.features}, shape)
	}

	copy(l.weights.RawMatrix().Data, params[0].Data)
	return nil
}
