// Package priority computes initial importance-sampling priorities for
// collected experience
package priority

import (
	"fmt"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/policy"
)

// LossFn computes an element-wise loss over a frozen batch, one value
// per transition. Loss functions are pluggable per algorithm and must
// be pure: the same batch and the same parameters always produce the
// same losses.
type LossFn func(online, target policy.ValueFunction, batch *buffer.Batch,
	gamma float64) ([]float64, error)

// Estimator turns element-wise losses into priorities used to seed a
// prioritized replay buffer on the consumer side. PerEps is a strictly
// positive floor added to every loss so that no transition ever loses
// its sampling probability downstream.
type Estimator struct {
	online policy.ValueFunction
	target policy.ValueFunction
	loss   LossFn
	gamma  float64
	perEps float64
}

// NewEstimator returns an Estimator over the given value functions.
// The target value function may equal the online one.
func NewEstimator(online, target policy.ValueFunction, loss LossFn,
	gamma, perEps float64) (*Estimator, error) {
	if online == nil || target == nil {
		return nil, fmt.Errorf("newestimator: no value function given")
	}
	if loss == nil {
		return nil, fmt.Errorf("newestimator: no loss function given")
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("newestimator: discount must be in [0, 1] "+
			"\n\thave(%v)", gamma)
	}
	if perEps <= 0 {
		return nil, fmt.Errorf("newestimator: per eps must be strictly "+
			"positive \n\thave(%v)", perEps)
	}

	return &Estimator{
		online: online,
		target: target,
		loss:   loss,
		gamma:  gamma,
		perEps: perEps,
	}, nil
}

// Compute returns one priority per batch row, in row order. Every
// priority is strictly positive, even where the loss is zero.
func (e *Estimator) Compute(batch *buffer.Batch) ([]float64, error) {
	losses, err := e.loss(e.online, e.target, batch, e.gamma)
	if err != nil {
		return nil, fmt.Errorf("compute: %v", err)
	}
	if len(losses) != batch.N {
		return nil, fmt.Errorf("compute: loss function returned %v "+
			"elements for a batch of %v", len(losses), batch.N)
	}

	priorities := make([]float64, len(losses))
	for i, loss := range losses {
		priorities[i] = loss + e.perEps
	}
	return priorities, nil
}
