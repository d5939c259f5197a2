package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/offpolicy/harvest/buffer"
	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/environment"
	"github.com/offpolicy/harvest/nstep"
	"github.com/offpolicy/harvest/policy"
	"github.com/offpolicy/harvest/priority"
	ts "github.com/offpolicy/harvest/timestep"
)

// DQN is a value-based collection worker. It selects actions with an
// ε-greedy policy over a synchronizable Q-network, folds transitions
// into n-step experience, and emits prioritized batches to the
// consumer.
type DQN struct {
	*Base
	config Config

	net       policy.Network
	selector  *policy.EGreedy
	estimator *priority.Estimator

	buffer *buffer.Buffer
	window *nstep.Window // nil when n-step folding is disabled

	emitter comm.Emitter
	params  comm.ParameterSource
}

// Compile-time check of the worker contract
var _ Worker = (*DQN)(nil)

// NewDQN builds a DQN worker. The loss function seeds the priority
// estimator; the same network serves as online and target since
// workers never take gradient steps. The parameter source may be nil,
// in which case the worker runs on its initial parameters forever.
func NewDQN(rank int, config Config, env environment.Environment,
	net policy.Network, loss priority.LossFn, emitter comm.Emitter,
	params comm.ParameterSource, logger *logrus.Logger) (*DQN, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newdqn: %v", err)
	}
	if net == nil {
		return nil, fmt.Errorf("newdqn: no network given")
	}
	if emitter == nil {
		return nil, fmt.Errorf("newdqn: no emitter given")
	}

	base, err := NewBase(rank, config.Device, env, logger)
	if err != nil {
		return nil, fmt.Errorf("newdqn: %v", err)
	}

	selector, err := policy.NewEGreedy(net, env, config.Schedule(),
		uint64(rank))
	if err != nil {
		return nil, fmt.Errorf("newdqn: %v", err)
	}

	estimator, err := priority.NewEstimator(net, net, loss, config.Gamma,
		config.PerEps)
	if err != nil {
		return nil, fmt.Errorf("newdqn: %v", err)
	}

	obsSize := env.ObservationSpec().Shape.Len()
	actSize := env.ActionSpec().Shape.Len()
	buf, err := buffer.New(obsSize, actSize, config.LocalBufferMaxSize)
	if err != nil {
		return nil, fmt.Errorf("newdqn: %v", err)
	}

	var window *nstep.Window
	if config.NStep > 1 {
		window, err = nstep.New(config.NStep, config.Gamma)
		if err != nil {
			return nil, fmt.Errorf("newdqn: %v", err)
		}
	}

	return &DQN{
		Base:      base,
		config:    config,
		net:       net,
		selector:  selector,
		estimator: estimator,
		buffer:    buf,
		window:    window,
		emitter:   emitter,
		params:    params,
	}, nil
}

// Epsilon returns the behaviour policy's current epsilon
func (d *DQN) Epsilon() float64 {
	return d.selector.Epsilon()
}

// SelectAction selects an action under the ε-greedy behaviour policy
// and decays epsilon
func (d *DQN) SelectAction(state mat.Vector) (mat.Vector, error) {
	return d.selector.SelectAction(state)
}

// Step takes an action in the worker's environment
func (d *DQN) Step(action mat.Vector) (ts.TimeStep, error) {
	return d.Env().Step(action)
}

// Parameters returns a snapshot of the network's current parameters
func (d *DQN) Parameters() []policy.Tensor {
	return d.net.Parameters()
}

// Synchronize replaces the network's parameters wholesale, in place.
// References to the network held by the selector and estimator observe
// the new content immediately.
func (d *DQN) Synchronize(params []policy.Tensor) error {
	if err := d.net.SetParameters(params); err != nil {
		return fmt.Errorf("synchronize: %v", err)
	}
	return nil
}

// maybeSynchronize applies the newest pending parameter set, if any.
// Called only between episodes and between cycles, never mid-episode,
// so a single action selection always runs under one parameter set.
func (d *DQN) maybeSynchronize() error {
	if d.params == nil {
		return nil
	}
	params, ok := d.params.Poll()
	if !ok {
		return nil
	}

	if err := d.Synchronize(params); err != nil {
		return err
	}
	d.Log().Debug("synchronized parameters")
	return nil
}

// record routes one transition into the local buffer, through the
// n-step window when folding is enabled
func (d *DQN) record(t ts.Transition) error {
	if d.window != nil {
		folded, ok := d.window.Push(t)
		if !ok {
			return nil
		}
		return d.buffer.Add(folded)
	}
	return d.buffer.Add(t)
}

// runEpisode drives a single episode, recording every transition.
// Environment errors propagate; the worker does not attempt
// partial-episode recovery.
func (d *DQN) runEpisode() error {
	step, err := d.Env().Reset()
	if err != nil {
		return fmt.Errorf("runepisode: %v", err)
	}

	score := 0.0
	numSteps := 0
	for !step.Done {
		numSteps++

		action, err := d.SelectAction(step.Observation)
		if err != nil {
			return fmt.Errorf("runepisode: %v", err)
		}

		nextStep, err := d.Step(action)
		if err != nil {
			return fmt.Errorf("runepisode: %v", err)
		}

		if err := d.record(ts.NewTransition(step, action,
			nextStep)); err != nil {
			return fmt.Errorf("runepisode: %v", err)
		}

		step = nextStep
		score += nextStep.Reward
	}

	d.Log().WithFields(logrus.Fields{
		"score":   score,
		"steps":   numSteps,
		"epsilon": d.selector.Epsilon(),
	}).Info("episode finished")

	return nil
}

// CollectData fills the local buffer across as many episodes as
// needed and returns it frozen at exactly LocalBufferMaxSize rows.
// Episodes always run to completion: the threshold is checked between
// episodes and the final episode's overshoot is truncated by the
// freeze. Pending parameter sets are applied between episodes.
func (d *DQN) CollectData(ctx context.Context) (*buffer.Batch, error) {
	d.buffer.Reset()
	if d.window != nil {
		d.window.Reset()
	}

	for !d.buffer.Full() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := d.maybeSynchronize(); err != nil {
			return nil, fmt.Errorf("collectdata: %v", err)
		}
		if err := d.runEpisode(); err != nil {
			return nil, fmt.Errorf("collectdata: %v", err)
		}
	}

	batch, err := d.buffer.Freeze()
	if err != nil {
		return nil, fmt.Errorf("collectdata: %v", err)
	}
	return batch, nil
}

// Run drives the perpetual collect, prioritize, emit cycle. It returns
// the context's error on cancellation, discarding any partially filled
// buffer, and propagates unrecoverable errors from the environment or
// the consumer.
func (d *DQN) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := d.maybeSynchronize(); err != nil {
			return fmt.Errorf("run: %v", err)
		}

		batch, err := d.CollectData(ctx)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		priorities, err := d.estimator.Compute(batch)
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		err = d.emitter.Emit(ctx, comm.Emission{
			Rank:       d.Rank(),
			Batch:      batch,
			Priorities: priorities,
		})
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}

		d.Log().WithField("size", batch.N).Debug("emitted batch")
	}
}
