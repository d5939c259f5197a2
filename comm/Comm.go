// Package comm defines the contracts between workers and the
// learner-side consumer: batch emission in one direction and parameter
// broadcasts in the other
package comm

import (
	"context"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/policy"
)

// Emission is one worker's output for one collection cycle: a frozen
// batch and its priority vector, indexed in the same order.
type Emission struct {
	Rank       int           `json:"rank"`
	Batch      *buffer.Batch `json:"batch"`
	Priorities []float64     `json:"priorities"`
}

// Emitter hands emissions to the consumer. Emit blocks while the
// consumer's intake is backpressured rather than dropping data, and
// returns the context's error if the worker is cancelled while
// blocked.
type Emitter interface {
	Emit(ctx context.Context, e Emission) error
}

// ParameterSource supplies parameter sets broadcast by the learner.
// Poll never blocks: it returns the newest unseen parameter set, or
// false when no new set has arrived since the last poll. Workers that
// see false proceed with their current parameters.
type ParameterSource interface {
	Poll() ([]policy.Tensor, bool)
}
