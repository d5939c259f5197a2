package priority_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/priority"
	"github.com/offpolicy/harvest/timestep"
)

// zeroLoss reports no surprise at all, the worst case for priority
// positivity
func zeroLoss(_, _ policy.ValueFunction, batch *buffer.Batch,
	_ float64) ([]float64, error) {
	return make([]float64, batch.N), nil
}

func testBatch(t *testing.T, n int) *buffer.Batch {
	t.Helper()
	b, err := buffer.New(2, 1, n)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		tr := timestep.Transition{
			State:     mat.NewVecDense(2, []float64{float64(i), 1}),
			Action:    mat.NewVecDense(1, []float64{float64(i % 2)}),
			Reward:    1.0,
			NextState: mat.NewVecDense(2, []float64{float64(i + 1), 1}),
			Done:      i == n-1,
		}
		require.NoError(t, b.Add(tr))
	}

	batch, err := b.Freeze()
	require.NoError(t, err)
	return batch
}

func TestNewEstimatorValidation(t *testing.T) {
	vf, err := policy.NewLinear(2, 2)
	require.NoError(t, err)

	_, err = priority.NewEstimator(nil, vf, zeroLoss, 0.9, 1e-6)
	assert.Error(t, err)

	_, err = priority.NewEstimator(vf, vf, nil, 0.9, 1e-6)
	assert.Error(t, err)

	_, err = priority.NewEstimator(vf, vf, zeroLoss, 1.5, 1e-6)
	assert.Error(t, err)

	// per eps must be strictly positive
	_, err = priority.NewEstimator(vf, vf, zeroLoss, 0.9, 0)
	assert.Error(t, err)

	_, err = priority.NewEstimator(vf, vf, zeroLoss, 0.9, 1e-6)
	assert.NoError(t, err)
}

func TestPrioritiesStrictlyPositiveOnZeroLoss(t *testing.T) {
	vf, err := policy.NewLinear(2, 2)
	require.NoError(t, err)

	perEps := 1e-6
	est, err := priority.NewEstimator(vf, vf, zeroLoss, 0.9, perEps)
	require.NoError(t, err)

	priorities, err := est.Compute(testBatch(t, 5))
	require.NoError(t, err)
	require.Len(t, priorities, 5)

	for _, p := range priorities {
		assert.Greater(t, p, 0.0)
		assert.Equal(t, perEps, p)
	}
}

func TestComputeIsPure(t *testing.T) {
	vf, err := policy.NewUniformLinear(2, 2, 0.5, 3)
	require.NoError(t, err)

	est, err := priority.NewEstimator(vf, vf, priority.QLoss, 0.9, 1e-6)
	require.NoError(t, err)

	batch := testBatch(t, 4)
	first, err := est.Compute(batch)
	require.NoError(t, err)
	second, err := est.Compute(batch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQLossTDError(t *testing.T) {
	// Online values: Q(s, a) = w_a · s with distinct rows, target
	// identical, so the TD error is computable by hand
	vf, err := policy.NewLinear(2, 2)
	require.NoError(t, err)
	require.NoError(t, vf.SetParameters([]policy.Tensor{{
		Shape: []int{2, 2},
		Data:  []float64{1, 0, 0, 1},
	}}))

	gamma := 0.5
	b, err := buffer.New(2, 1, 2)
	require.NoError(t, err)

	// Row 0: s=(2,3) a=0 r=1 s'=(4,5) not done
	//   Q(s,0)=2, max Q(s')=5, target=1+0.5*5=3.5, err=1.5
	require.NoError(t, b.Add(timestep.Transition{
		State:     mat.NewVecDense(2, []float64{2, 3}),
		Action:    mat.NewVecDense(1, []float64{0}),
		Reward:    1,
		NextState: mat.NewVecDense(2, []float64{4, 5}),
		Done:      false,
	}))
	// Row 1: terminal, so the bootstrap term vanishes
	//   Q(s,1)=3, target=1, err=-2
	require.NoError(t, b.Add(timestep.Transition{
		State:     mat.NewVecDense(2, []float64{2, 3}),
		Action:    mat.NewVecDense(1, []float64{1}),
		Reward:    1,
		NextState: mat.NewVecDense(2, []float64{4, 5}),
		Done:      true,
	}))

	batch, err := b.Freeze()
	require.NoError(t, err)

	losses, err := priority.QLoss(vf, vf, batch, gamma)
	require.NoError(t, err)
	require.Len(t, losses, 2)
	assert.InDelta(t, 1.5*1.5, losses[0], 1e-12)
	assert.InDelta(t, 4.0, losses[1], 1e-12)
}

func TestQLossRejectsIllegalActions(t *testing.T) {
	vf, err := policy.NewLinear(2, 2)
	require.NoError(t, err)

	b, err := buffer.New(2, 1, 1)
	require.NoError(t, err)
	require.NoError(t, b.Add(timestep.Transition{
		State:     mat.NewVecDense(2, nil),
		Action:    mat.NewVecDense(1, []float64{5}),
		Reward:    0,
		NextState: mat.NewVecDense(2, nil),
		Done:      false,
	}))

	batch, err := b.Freeze()
	require.NoError(t, err)

	_, err = priority.QLoss(vf, vf, batch, 0.9)
	assert.Error(t, err)
}
