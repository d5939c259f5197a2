// Package ws implements worker/learner communication over websockets
// for multi-process deployments. Workers dial the learner's hub, send
// emission frames, and receive parameter broadcasts on the same
// connection.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/offpolicy/harvest/comm"
	"github.com/offpolicy/harvest/comm/pipe"
	"github.com/offpolicy/harvest/policy"
)

// messageType discriminates frames on the worker/learner connection
const (
	emissionMessage = "emission"
	paramsMessage   = "params"
)

// message is the envelope for every frame exchanged between a worker
// and the hub
type message struct {
	Type     string          `json:"type"`
	Emission *comm.Emission  `json:"emission,omitempty"`
	Params   []policy.Tensor `json:"params,omitempty"`
}

// Client is a worker-side connection to the learner's hub. It
// satisfies both comm.Emitter and comm.ParameterSource: emissions go
// out as frames, inbound parameter broadcasts land in a latest-wins
// mailbox that the worker polls between episodes.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	mailbox *pipe.Mailbox

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a hub at the given websocket URL
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %v", err)
	}

	c := &Client{
		conn:    conn,
		mailbox: pipe.NewMailbox(),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop feeds inbound parameter broadcasts into the mailbox until
// the connection dies
func (c *Client) readLoop() {
	defer c.Close()
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == paramsMessage {
			c.mailbox.Publish(msg.Params)
		}
	}
}

// Emit sends one emission frame to the hub. The write blocks while the
// hub's intake is backpressured; a cancelled context aborts before the
// write starts.
func (c *Client) Emit(ctx context.Context, e comm.Emission) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("emit: connection closed")
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(message{Type: emissionMessage,
		Emission: &e}); err != nil {
		return fmt.Errorf("emit: %v", err)
	}
	return nil
}

// Poll returns the newest unseen parameter broadcast, or false when
// none has arrived since the last poll
func (c *Client) Poll() ([]policy.Tensor, bool) {
	return c.mailbox.Poll()
}

// Close tears down the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
