package proc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/mipsdap/internal/dap"
)

// DefaultRequestTimeout bounds a single engine request.
const DefaultRequestTimeout = 10 * time.Second

// client correlates requests with responses over a transport.
type client struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.SugaredLogger

	seq       int64
	pending   map[int]*pendingRequest
	pendingMu sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.RWMutex
}

// Transport is the framed message transport to the engine process.
type Transport = dap.Transport

// pendingRequest tracks a request awaiting its response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *response
	err       error
}

func (p *pendingRequest) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func newClient(t Transport, timeout time.Duration, logger *zap.SugaredLogger) *client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	c := &client{
		transport: t,
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[int]*pendingRequest),
		done:      make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func (c *client) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

func (c *client) receiveErr() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *client) receiveLoop() {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.done:
				err = ErrEngineExited
			default:
				c.logger.Warnw("engine connection lost", "error", err)
				err = fmt.Errorf("%w: %v", ErrEngineExited, err)
			}

			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()

			c.pendingMu.Lock()
			for _, req := range c.pending {
				req.err = err
				req.close()
			}
			c.pending = make(map[int]*pendingRequest)
			c.pendingMu.Unlock()
			return
		}

		var resp response
		if err := json.Unmarshal(msg.Content, &resp); err != nil {
			c.logger.Warnw("undecodable engine message", "error", err)
			continue
		}
		if resp.Type != "" && resp.Type != "response" {
			c.logger.Debugw("ignoring engine message", "type", resp.Type)
			continue
		}

		c.pendingMu.Lock()
		req, ok := c.pending[resp.RequestSeq]
		if ok {
			delete(c.pending, resp.RequestSeq)
		}
		c.pendingMu.Unlock()

		if ok {
			req.response = &resp
			req.close()
		}
	}
}

// call sends command and decodes the response body into out when out is
// non-nil. An absent body leaves out untouched.
func (c *client) call(ctx context.Context, command string, args, out any) error {
	if err := c.receiveErr(); err != nil {
		return err
	}

	seq := int(atomic.AddInt64(&c.seq, 1))

	var argsJSON json.RawMessage
	if args != nil {
		var err error
		argsJSON, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal %s arguments: %w", command, err)
		}
	}

	content, err := json.Marshal(request{
		Seq:       seq,
		Type:      "request",
		Command:   command,
		Arguments: argsJSON,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", command, err)
	}

	pending := &pendingRequest{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}

	if err := c.transport.Send(dap.NewMessage(content)); err != nil {
		forget()
		return fmt.Errorf("send %s: %w", command, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-timer.C:
		forget()
		return fmt.Errorf("%w: %s", ErrTimeout, command)
	case <-pending.done:
	}

	if pending.err != nil {
		return pending.err
	}
	resp := pending.response
	if !resp.Success {
		return &RemoteError{Command: command, Message: resp.Message}
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("decode %s body: %w", command, err)
		}
	}
	return nil
}
