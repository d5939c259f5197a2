// Package pipe implements in-process worker/consumer communication
// over channels, for single-process deployments and tests
package pipe

import (
	"context"
	"fmt"
	"sync"

	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/policy"
)

// Pipe carries emissions from workers to an in-process consumer over a
// buffered channel. A full channel is backpressure: Emit blocks until
// the consumer drains or the worker's context is cancelled.
type Pipe struct {
	emissions chan comm.Emission
}

// New returns a Pipe whose intake holds up to capacity pending
// emissions
func New(capacity int) (*Pipe, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be positive "+
			"\n\thave(%v)", capacity)
	}
	return &Pipe{emissions: make(chan comm.Emission, capacity)}, nil
}

// Emit hands an emission to the consumer, blocking under backpressure
func (p *Pipe) Emit(ctx context.Context, e comm.Emission) error {
	select {
	case p.emissions <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emissions returns the consumer side of the pipe
func (p *Pipe) Emissions() <-chan comm.Emission {
	return p.emissions
}

// Mailbox is a latest-wins parameter slot for a single worker. The
// learner publishes whole parameter sets; the worker polls without
// blocking. If several sets arrive between polls, only the newest is
// seen, so delivery stays monotonic per worker.
type Mailbox struct {
	mu     sync.Mutex
	params []policy.Tensor
	fresh  bool
}

// NewMailbox returns an empty Mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish replaces the mailbox's pending parameter set
func (m *Mailbox) Publish(params []policy.Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	m.fresh = true
}

// Poll returns the newest unseen parameter set, or false when nothing
// new has been published since the last poll
func (m *Mailbox) Poll() ([]policy.Tensor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.fresh {
		return nil, false
	}
	m.fresh = false
	return m.params, true
}

// Broadcaster fans one published parameter set out to a fixed group of
// mailboxes, one per worker
type Broadcaster struct {
	mailboxes []*Mailbox
}

// NewBroadcaster returns a Broadcaster over n fresh mailboxes
func NewBroadcaster(n int) (*Broadcaster, error) {
	if n < 1 {
		return nil, fmt.Errorf("newbroadcaster: need at least one "+
			"mailbox \n\thave(%v)", n)
	}

	mailboxes := make([]*Mailbox, n)
	for i := range mailboxes {
		mailboxes[i] = NewMailbox()
	}
	return &Broadcaster{mailboxes: mailboxes}, nil
}

// Mailbox returns worker i's mailbox
func (b *Broadcaster) Mailbox(i int) *Mailbox {
	return b.mailboxes[i]
}

// Publish delivers a parameter set to every mailbox
func (b *Broadcaster) Publish(params []policy.Tensor) {
	for _, m := range b.mailboxes {
		m.Publish(params)
	}
}
