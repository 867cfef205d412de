package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

// maxMessageSize bounds a single newline-delimited JSON-RPC message.
const maxMessageSize = 10 * 1024 * 1024

// conn implements newline-delimited JSON-RPC framing and request/response
// correlation over a reader/writer pair. The tool process does not
// multiplex, but correlation by ID keeps late responses from being
// delivered to a caller that has already timed out.
type conn struct {
	w   io.Writer
	wmu sync.Mutex

	mu      sync.Mutex
	pending map[transport.RequestID]chan *transport.Response
	failure error

	nextID    int64
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(r io.Reader, w io.Writer) *conn {
	c := &conn{
		w:       w,
		pending: make(map[transport.RequestID]chan *transport.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *conn) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp transport.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			logger.KV(xlog.WARNING,
				"status", "invalid_message",
				"err", err.Error(),
			)
			continue
		}

		c.mu.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if ch != nil {
			ch <- &resp
		}
	}
	c.fail(transport.NewError(tools.ErrProcessUnavailable, "tool process closed its output"))
}

// fail terminates the connection with the given reason. All in-flight
// and future requests observe the failure. Idempotent.
func (c *conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.failure = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *conn) failErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	return transport.NewError(tools.ErrProcessUnavailable, "connection closed")
}

func (c *conn) close() {
	c.fail(transport.NewError(tools.ErrProcessUnavailable, "connection closed"))
}

// request sends one JSON-RPC request and waits for its response, the
// context, or connection failure, whichever comes first. Once the caller
// gives up, the pending entry is removed so a late response is dropped.
func (c *conn) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, c.failErr()
	default:
	}

	id := transport.RequestID(atomic.AddInt64(&c.nextID, 1))
	req, err := transport.NewRequest(id, method, params)
	if err != nil {
		return nil, transport.WrapError(tools.ErrInvalidArguments, err, "failed to marshal request")
	}
	bs, err := json.Marshal(req)
	if err != nil {
		return nil, transport.WrapError(tools.ErrInvalidArguments, err, "failed to marshal request")
	}

	ch := make(chan *transport.Response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	_, err = c.w.Write(append(bs, '\n'))
	c.wmu.Unlock()
	if err != nil {
		return nil, transport.WrapError(tools.ErrProcessUnavailable, err, "failed to write request")
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, transport.NewToolError(resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, transport.WrapError(tools.ErrTimeout, ctx.Err(), "call deadline exceeded")
		}
		return nil, transport.WrapError(tools.ErrTransportUnavailable, ctx.Err(), "call canceled")
	case <-c.done:
		return nil, c.failErr()
	}
}
