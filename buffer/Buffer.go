// Package buffer implements the local experience buffer a worker
// fills during one collection cycle
package buffer

import (
	"fmt"

	"github.com/offpolicy/harvest/timestep"
)

// Buffer accumulates transitions as a struct of arrays. Each field is
// a flat []float64: states and next states have one row of obsSize
// values per transition, actions one row of actSize values, rewards
// and dones one value (dones stored as 0/1).
//
// All fields grow by exactly one row per Add through a single append
// path, keeping the field sequences in lock-step: at any time every
// field holds the same number of rows in the same order.
type Buffer struct {
	obsSize int
	actSize int
	maxSize int
	rows    int

	states     []float64
	actions    []float64
	rewards    []float64
	nextStates []float64
	dones      []float64
}

// New returns an empty Buffer for transitions with obsSize state
// features and actSize action dimensions. The buffer is growable;
// maxSize is the collection threshold used by Full and Freeze, not a
// hard capacity: the final episode of a cycle may overshoot it.
func New(obsSize, actSize, maxSize int) (*Buffer, error) {
	if obsSize < 1 || actSize < 1 {
		return nil, fmt.Errorf("new: obs and action sizes must be "+
			"positive \n\thave obs(%v) action(%v)", obsSize, actSize)
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("new: max size must be positive "+
			"\n\thave(%v)", maxSize)
	}

	return &Buffer{
		obsSize:    obsSize,
		actSize:    actSize,
		maxSize:    maxSize,
		states:     make([]float64, 0, maxSize*obsSize),
		actions:    make([]float64, 0, maxSize*actSize),
		rewards:    make([]float64, 0, maxSize),
		nextStates: make([]float64, 0, maxSize*obsSize),
		dones:      make([]float64, 0, maxSize),
	}, nil
}

// Len returns the number of transitions held. Since fields are kept in
// lock-step, any one field's row count is the buffer length.
func (b *Buffer) Len() int {
	return b.rows
}

// Full returns whether the buffer has reached its collection threshold
func (b *Buffer) Full() bool {
	return b.rows >= b.maxSize
}

// MaxSize returns the collection threshold
func (b *Buffer) MaxSize() int {
	return b.maxSize
}

// Reset empties the buffer for the next collection cycle
func (b *Buffer) Reset() {
	b.rows = 0
	b.states = b.states[:0]
	b.actions = b.actions[:0]
	b.rewards = b.rewards[:0]
	b.nextStates = b.nextStates[:0]
	b.dones = b.dones[:0]
}

// Add appends one transition's five fields to the buffer
func (b *Buffer) Add(t timestep.Transition) error {
	if t.State.Len() != b.obsSize || t.NextState.Len() != b.obsSize {
		return fmt.Errorf("add: invalid state size \n\twant(%v)"+
			"\n\thave(%v, %v)", b.obsSize, t.State.Len(), t.NextState.Len())
	}
	if t.Action.Len() != b.actSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", b.actSize, t.Action.Len())
	}

	for i := 0; i < b.obsSize; i++ {
		b.states = append(b.states, t.State.AtVec(i))
		b.nextStates = append(b.nextStates, t.NextState.AtVec(i))
	}
	for i := 0; i < b.actSize; i++ {
		b.actions = append(b.actions, t.Action.AtVec(i))
	}
	b.rewards = append(b.rewards, t.Reward)

	done := 0.0
	if t.Done {
		done = 1.0
	}
	b.dones = append(b.dones, done)

	b.rows++
	return nil
}

// Freeze copies the first maxSize rows of every field into a
// fixed-size Batch. Episodes always run to completion during
// collection, so the buffer may overshoot the threshold; Freeze
// truncates so that every emission holds exactly maxSize rows.
func (b *Buffer) Freeze() (*Batch, error) {
	if b.rows < b.maxSize {
		return nil, fmt.Errorf("freeze: buffer below threshold "+
			"\n\twant(%v)\n\thave(%v)", b.maxSize, b.rows)
	}

	n := b.maxSize
	batch := &Batch{
		N:       n,
		ObsSize: b.obsSize,
		ActSize: b.actSize,

		States:     make([]float64, n*b.obsSize),
		Actions:    make([]float64, n*b.actSize),
		Rewards:    make([]float64, n),
		NextStates: make([]float64, n*b.obsSize),
		Dones:      make([]float64, n),
	}

	copy(batch.States, b.states[:n*b.obsSize])
	copy(batch.Actions, b.actions[:n*b.actSize])
	copy(batch.Rewards, b.rewards[:n])
	copy(batch.NextStates, b.nextStates[:n*b.obsSize])
	copy(batch.Dones, b.dones[:n])

	return batch, nil
}
