// Package nstep folds consecutive transitions into n-step transitions
// with geometrically discounted rewards
package nstep

import (
	"fmt"

	"github.com/offpolicy/harvest/timestep"
)

// Window maintains a bounded FIFO window over the most recent N
// transitions and folds them into a single n-step transition whenever
// the window is full.
//
// The window is sliding, not batching: it is never cleared after a
// fold, so once warm it produces one folded transition per push,
// re-using overlapping transitions across successive folds.
type Window struct {
	transitions []timestep.Transition
	gamma       float64
	next        int // ring index of the oldest element once full
	size        int
}

// New returns a Window of capacity n with discount factor gamma
func New(n int, gamma float64) (*Window, error) {
	if n < 1 {
		return nil, fmt.Errorf("new: window size must be positive "+
			"\n\thave(%v)", n)
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: discount must be in [0, 1] "+
			"\n\thave(%v)", gamma)
	}

	return &Window{
		transitions: make([]timestep.Transition, n),
		gamma:       gamma,
	}, nil
}

// Cap returns the window's capacity N
func (w *Window) Cap() int {
	return len(w.transitions)
}

// Len returns the number of transitions currently held
func (w *Window) Len() int {
	return w.size
}

// Reset empties the window
func (w *Window) Reset() {
	w.next = 0
	w.size = 0
}

// Push adds a transition, evicting the oldest when full, and returns
// the folded n-step transition. The second return value is false while
// the window is still warming up.
//
// The folded transition's reward is the discounted sum over the
// window, its next state is the newest member's next state, and it is
// done if any member was done.
func (w *Window) Push(t timestep.Transition) (timestep.Transition, bool) {
	w.transitions[w.next] = t
	w.next = (w.next + 1) % len(w.transitions)
	if w.size < len(w.transitions) {
		w.size++
	}

	if w.size < len(w.transitions) {
		return timestep.Transition{}, false
	}
	return w.fold(), true
}

// fold computes the n-step transition over the full window
func (w *Window) fold() timestep.Transition {
	n := len(w.transitions)

	// w.next points at the oldest element once the window is full
	oldest := w.transitions[w.next]
	newest := w.transitions[(w.next+n-1)%n]

	reward := 0.0
	done := false
	discount := 1.0
	for i := 0; i < n; i++ {
		t := w.transitions[(w.next+i)%n]
		reward += discount * t.Reward
		done = done || t.Done
		discount *= w.gamma
	}

	return timestep.Transition{
		State:     oldest.State,
		Action:    oldest.Action,
		Reward:    reward,
		NextState: newest.NextState,
		Done:      done,
	}
}
