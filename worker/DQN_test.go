package worker_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/comm/pipe"
	"github.com/offpolicy/harvest/environment"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/priority"
	"github.com/offpolicy/harvest/timestep"
	"github.com/offpolicy/harvest/worker"
)

// scriptedEnv is a deterministic environment with fixed-length episodes.
// Observations encode the episode and step counters so tests can check
// exactly which transitions ended up where.
type scriptedEnv struct {
	episodeLen int
	rng        *rand.Rand
	episode    int
	step       int
}

func newScriptedEnv(episodeLen int) *scriptedEnv {
	return &scriptedEnv{
		episodeLen: episodeLen,
		rng:        rand.New(rand.NewSource(0)),
	}
}

func (e *scriptedEnv) Seed(seed uint64) {
	e.rng = rand.New(rand.NewSource(seed))
}

func (e *scriptedEnv) observation() mat.Vector {
	return mat.NewVecDense(2, []float64{
		float64(e.episode),
		float64(e.step),
	})
}

func (e *scriptedEnv) Reset() (timestep.TimeStep, error) {
	e.episode++
	e.step = 0
	return timestep.New(e.observation(), 0, false, 0), nil
}

func (e *scriptedEnv) Step(_ mat.Vector) (timestep.TimeStep, error) {
	e.step++
	done := e.step >= e.episodeLen
	return timestep.New(e.observation(), 1.0, done, e.step), nil
}

func (e *scriptedEnv) SampleAction() mat.Vector {
	return mat.NewVecDense(1, []float64{float64(e.rng.Intn(2))})
}

func (e *scriptedEnv) ActionSpec() environment.Spec {
	return environment.NewSpec(
		mat.NewVecDense(1, nil),
		mat.NewVecDense(1, []float64{0}),
		mat.NewVecDense(1, []float64{1}),
		environment.Discrete,
	)
}

func (e *scriptedEnv) ObservationSpec() environment.Spec {
	return environment.NewSpec(
		mat.NewVecDense(2, nil),
		nil,
		nil,
		environment.Continuous,
	)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() worker.Config {
	return worker.Config{
		NStep:              1,
		Gamma:              0.99,
		MaxEpsilon:         1.0,
		MinEpsilon:         0.01,
		EpsilonDecay:       0.0001,
		PerEps:             1e-6,
		LocalBufferMaxSize: 10,
		Device:             "cpu",
	}
}

func testNet(t *testing.T) policy.Network {
	t.Helper()
	net, err := policy.NewUniformLinear(2, 2, 0.5, 13)
	require.NoError(t, err)
	return net
}

func newTestWorker(t *testing.T, rank int, config worker.Config,
	params *pipe.Mailbox) (*worker.DQN, *pipe.Pipe) {
	t.Helper()

	p, err := pipe.New(1)
	require.NoError(t, err)

	d, err := worker.NewDQN(rank, config, newScriptedEnv(7), testNet(t),
		priority.QLoss, p, paramSource(params), quietLogger())
	require.NoError(t, err)
	return d, p
}

// paramSource keeps a nil *pipe.Mailbox from becoming a non-nil
// interface value inside the worker
func paramSource(m *pipe.Mailbox) comm.ParameterSource {
	if m == nil {
		return nil
	}
	return m
}

func TestConfigValidate(t *testing.T) {
	config := testConfig()
	assert.NoError(t, config.Validate())

	config = testConfig()
	config.NStep = 0
	assert.Error(t, config.Validate())

	config = testConfig()
	config.Gamma = 1.1
	assert.Error(t, config.Validate())

	config = testConfig()
	config.PerEps = 0
	assert.Error(t, config.Validate())

	config = testConfig()
	config.LocalBufferMaxSize = 0
	assert.Error(t, config.Validate())

	config = testConfig()
	config.MinEpsilon = 2.0
	assert.Error(t, config.Validate())
}

func TestNewDQNValidation(t *testing.T) {
	p, err := pipe.New(1)
	require.NoError(t, err)

	_, err = worker.NewDQN(0, testConfig(), newScriptedEnv(7), nil,
		priority.QLoss, p, nil, quietLogger())
	assert.Error(t, err)

	_, err = worker.NewDQN(0, testConfig(), newScriptedEnv(7), testNet(t),
		priority.QLoss, nil, nil, quietLogger())
	assert.Error(t, err)

	_, err = worker.NewDQN(-1, testConfig(), newScriptedEnv(7), testNet(t),
		priority.QLoss, p, nil, quietLogger())
	assert.Error(t, err)

	bad := testConfig()
	bad.Gamma = -1
	_, err = worker.NewDQN(0, bad, newScriptedEnv(7), testNet(t),
		priority.QLoss, p, nil, quietLogger())
	assert.Error(t, err)
}

func TestCollectDataReturnsExactlyMaxSize(t *testing.T) {
	// Episodes of 7 never divide the threshold evenly, so the final
	// episode overshoots and the freeze must truncate
	config := testConfig()
	config.LocalBufferMaxSize = 100

	d, _ := newTestWorker(t, 0, config, nil)

	batch, err := d.CollectData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, batch.N)
	assert.Len(t, batch.States, 100*2)
	assert.Len(t, batch.Actions, 100)
	assert.Len(t, batch.Rewards, 100)
	assert.Len(t, batch.NextStates, 100*2)
	assert.Len(t, batch.Dones, 100)

	// The first row is the first transition of the first episode
	assert.Equal(t, 1.0, batch.State(0).AtVec(0))
	assert.Equal(t, 0.0, batch.State(0).AtVec(1))
}

func TestCollectDataIsRankDeterministic(t *testing.T) {
	collect := func() ([]float64, []float64) {
		d, _ := newTestWorker(t, 7, testConfig(), nil)
		batch, err := d.CollectData(context.Background())
		require.NoError(t, err)
		return batch.Actions, batch.States
	}

	firstActions, firstStates := collect()
	secondActions, secondStates := collect()
	assert.Equal(t, firstActions, secondActions)
	assert.Equal(t, firstStates, secondStates)
}

func TestCollectDataDiffersAcrossRanks(t *testing.T) {
	// Epsilon pinned at 1 so every action comes from the rank-seeded
	// environment sampler
	config := testConfig()
	config.MaxEpsilon = 1.0
	config.MinEpsilon = 1.0
	config.EpsilonDecay = 0
	config.LocalBufferMaxSize = 50

	collect := func(rank int) []float64 {
		d, _ := newTestWorker(t, rank, config, nil)
		batch, err := d.CollectData(context.Background())
		require.NoError(t, err)
		return batch.Actions
	}

	assert.NotEqual(t, collect(1), collect(2))
}

func TestCollectDataHonoursCancellation(t *testing.T) {
	d, _ := newTestWorker(t, 0, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.CollectData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectDataFoldsNStepReturns(t *testing.T) {
	config := testConfig()
	config.NStep = 3
	config.Gamma = 0.5
	config.LocalBufferMaxSize = 10

	d, _ := newTestWorker(t, 0, config, nil)

	batch, err := d.CollectData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, batch.N)

	// Every step pays 1, so the first folded reward is the plain
	// discounted sum 1 + γ + γ²
	assert.InDelta(t, 1.75, batch.Rewards[0], 1e-12)

	// The fold keeps the oldest member's state and the newest member's
	// next state
	assert.Equal(t, 1.0, batch.State(0).AtVec(0))
	assert.Equal(t, 0.0, batch.State(0).AtVec(1))
	assert.Equal(t, 3.0, batch.NextState(0).AtVec(1))

	// Mid-episode folds are not terminal
	assert.Equal(t, 0.0, batch.Dones[0])
}

func TestCollectDataAppliesPendingParameters(t *testing.T) {
	mailbox := pipe.NewMailbox()
	d, _ := newTestWorker(t, 0, testConfig(), mailbox)

	published := []policy.Tensor{{
		Shape: []int{2, 2},
		Data:  []float64{1, 2, 3, 4},
	}}
	mailbox.Publish(published)

	_, err := d.CollectData(context.Background())
	require.NoError(t, err)

	got := d.Parameters()
	require.Len(t, got, 1)
	assert.Equal(t, published[0].Data, got[0].Data)

	// The set was consumed
	_, ok := mailbox.Poll()
	assert.False(t, ok)
}

func TestSynchronizeRejectsMismatchedParameters(t *testing.T) {
	d, _ := newTestWorker(t, 0, testConfig(), nil)

	err := d.Synchronize([]policy.Tensor{{
		Shape: []int{3, 3},
		Data:  make([]float64, 9),
	}})
	assert.Error(t, err)
}

func TestRunEmitsPrioritizedBatches(t *testing.T) {
	config := testConfig()
	config.LocalBufferMaxSize = 10

	d, p := newTestWorker(t, 4, config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- d.Run(ctx)
	}()

	select {
	case emission := <-p.Emissions():
		assert.Equal(t, 4, emission.Rank)
		require.NotNil(t, emission.Batch)
		assert.Equal(t, 10, emission.Batch.N)
		require.Len(t, emission.Priorities, 10)
		for _, pr := range emission.Priorities {
			assert.Greater(t, pr, 0.0)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker should emit a batch")
	}

	cancel()
	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), context.Canceled.Error())
	case <-time.After(5 * time.Second):
		t.Fatal("worker should stop on cancellation")
	}
}
