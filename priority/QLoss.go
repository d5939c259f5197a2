package priority

import (
	"fmt"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/utils/floatutils"
)

// QLoss is the default LossFn: the element-wise squared TD error of
// Q-learning,
//
//	(r + γ * (1 - done) * max_a' Qt(s', a') - Q(s, a))²
//
// where Q is the online value function and Qt the target one. Actions
// are expected as 1-dimensional action indices, as produced by an
// ε-greedy selector over a discrete action space.
func QLoss(online, target policy.ValueFunction, batch *buffer.Batch,
	gamma float64) ([]float64, error) {
	if batch.ActSize != 1 {
		return nil, fmt.Errorf("qloss: actions must be 1-dimensional "+
			"indices \n\thave(%v)", batch.ActSize)
	}

	losses := make([]float64, batch.N)
	for i := 0; i < batch.N; i++ {
		action := int(batch.Action(i).AtVec(0))
		if action < 0 || action >= online.NumActions() {
			return nil, fmt.Errorf("qloss: row %v holds illegal action %v",
				i, action)
		}

		values, err := online.ActionValues(batch.State(i))
		if err != nil {
			return nil, fmt.Errorf("qloss: %v", err)
		}

		nextValues, err := target.ActionValues(batch.NextState(i))
		if err != nil {
			return nil, fmt.Errorf("qloss: %v", err)
		}

		nextMax, _ := floatutils.MaxSlice(nextValues.RawVector().Data)
		tdTarget := batch.Rewards[i] +
			gamma*(1.0-batch.Dones[i])*nextMax

		tdError := tdTarget - values.AtVec(action)
		losses[i] = tdError * tdError
	}

	return losses, nil
}
