package dap

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/go-dap"
)

// Conn exchanges decoded protocol messages with a client over a Transport.
// WriteMessage and NextSeq are safe for concurrent use; ReadMessage must be
// called from a single goroutine.
type Conn struct {
	transport Transport
	seq       atomic.Int64
}

// NewConn creates a Conn over t.
func NewConn(t Transport) *Conn {
	return &Conn{transport: t}
}

// NextSeq returns the sequence number for the next outgoing message.
func (c *Conn) NextSeq() int {
	return int(c.seq.Add(1))
}

// ReadMessage reads and decodes the next client message. Custom requests
// decode to *QueueInputRequest and *DeliverSourceRequest. A message that
// arrives intact but does not decode is reported as a *DecodeError; any
// other error means the transport is unusable.
func (c *Conn) ReadMessage() (dap.Message, error) {
	m, err := c.transport.Receive()
	if err != nil {
		return nil, err
	}
	return decode(m.Content)
}

func decode(content []byte) (dap.Message, error) {
	var env struct {
		Seq     int    `json:"seq"`
		Type    string `json:"type"`
		Command string `json:"command"`
	}
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if env.Type == "request" {
		var custom dap.Message
		switch env.Command {
		case CommandQueueInput:
			custom = &QueueInputRequest{}
		case CommandDeliverSource:
			custom = &DeliverSourceRequest{}
		}
		if custom != nil {
			if err := json.Unmarshal(content, custom); err != nil {
				return nil, &DecodeError{Seq: env.Seq, Command: env.Command, Err: err}
			}
			return custom, nil
		}
	}

	msg, err := dap.DecodeProtocolMessage(content)
	if err != nil {
		return nil, &DecodeError{Seq: env.Seq, Command: env.Command, Err: err}
	}
	return msg, nil
}

// WriteMessage encodes msg and sends it.
func (c *Conn) WriteMessage(msg dap.Message) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", msg, err)
	}
	return c.transport.Send(NewMessage(content))
}

// Close closes the transport.
func (c *Conn) Close() error {
	return c.transport.Close()
}
