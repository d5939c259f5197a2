package buffer

import (
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Batch is a frozen view over one collection cycle's buffer: every
// field holds exactly N rows in collection order. Batches are what
// workers emit to the consumer alongside their priority vector.
type Batch struct {
	N       int `json:"n"`
	ObsSize int `json:"obs_size"`
	ActSize int `json:"act_size"`

	States     []float64 `json:"states"`
	Actions    []float64 `json:"actions"`
	Rewards    []float64 `json:"rewards"`
	NextStates []float64 `json:"next_states"`
	Dones      []float64 `json:"dones"`
}

// State returns row i of the state field as a vector sharing the
// batch's backing data
func (b *Batch) State(i int) mat.Vector {
	return mat.NewVecDense(b.ObsSize, b.States[i*b.ObsSize:(i+1)*b.ObsSize])
}

// NextState returns row i of the next-state field as a vector sharing
// the batch's backing data
func (b *Batch) NextState(i int) mat.Vector {
	return mat.NewVecDense(b.ObsSize,
		b.NextStates[i*b.ObsSize:(i+1)*b.ObsSize])
}

// Action returns row i of the action field as a vector sharing the
// batch's backing data
func (b *Batch) Action(i int) mat.Vector {
	return mat.NewVecDense(b.ActSize, b.Actions[i*b.ActSize:(i+1)*b.ActSize])
}

// StateTensor returns the state field as an (N, ObsSize) tensor
// sharing the batch's backing data
func (b *Batch) StateTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.N, b.ObsSize),
		tensor.WithBacking(b.States))
}

// NextStateTensor returns the next-state field as an (N, ObsSize)
// tensor sharing the batch's backing data
func (b *Batch) NextStateTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.N, b.ObsSize),
		tensor.WithBacking(b.NextStates))
}

// ActionTensor returns the action field as an (N, ActSize) tensor
// sharing the batch's backing data
func (b *Batch) ActionTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.N, b.ActSize),
		tensor.WithBacking(b.Actions))
}

// RewardTensor returns the reward field as a length-N tensor sharing
// the batch's backing data
func (b *Batch) RewardTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.N), tensor.WithBacking(b.Rewards))
}

// DoneTensor returns the done field as a length-N tensor sharing the
// batch's backing data
func (b *Batch) DoneTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.N), tensor.WithBacking(b.Dones))
}
