// Package stdio implements the local process transport: it owns a child
// tool process and speaks newline-delimited JSON-RPC over the process's
// stdin and stdout. A crashed or non-responding process surfaces as a
// ProcessUnavailable error; the restart decision belongs to the session
// manager, not to the transport.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter/transport", "stdio")

// Config describes how to launch the tool process.
type Config struct {
	Command string
	Args    []string
	// Env entries are appended to the current environment as KEY=VALUE.
	Env map[string]string
	Dir string
}

// Transport launches and owns one tool subprocess.
type Transport struct {
	id  string
	cfg Config

	mu   sync.Mutex
	cmd  *exec.Cmd
	conn *conn
}

var _ transport.Transport = (*Transport)(nil)

// New creates a stdio transport; the process is launched by Connect.
func New(id string, cfg Config) *Transport {
	return &Transport{
		id:  id,
		cfg: cfg,
	}
}

// ID implements transport.Transport.
func (t *Transport) ID() string {
	return t.id
}

// Kind implements transport.Transport.
func (t *Transport) Kind() transport.Kind {
	return transport.KindStdio
}

// Multiplexing implements transport.Transport. The stdio protocol is
// request/response per process, so concurrent calls are serialized by
// the session layer.
func (t *Transport) Multiplexing() bool {
	return false
}

// Connect launches the tool process and starts the reader.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.closeLocked()
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.WithMessage(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return transport.WrapError(tools.ErrProcessUnavailable, err, "failed to start tool process")
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"transport", t.id,
		"status", "process_started",
		"command", t.cfg.Command,
		"pid", cmd.Process.Pid,
	)

	conn := newConn(stdout, stdin)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.KV(xlog.DEBUG,
				"transport", t.id,
				"stderr", scanner.Text(),
			)
		}
	}()
	go func() {
		err := cmd.Wait()
		if err != nil {
			conn.fail(transport.WrapError(tools.ErrProcessUnavailable, err, "tool process exited"))
		} else {
			conn.fail(transport.NewError(tools.ErrProcessUnavailable, "tool process exited"))
		}
	}()

	t.cmd = cmd
	t.conn = conn
	return nil
}

func (t *Transport) current() (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, transport.NewError(tools.ErrProcessUnavailable, "not connected")
	}
	return t.conn, nil
}

// ListTools implements transport.Transport.
func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	c, err := t.current()
	if err != nil {
		return nil, err
	}
	raw, err := c.request(ctx, transport.MethodListTools, nil)
	if err != nil {
		return nil, err
	}
	var res transport.ListToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal tool list")
	}
	return transport.Descriptors(t.id, res.Tools), nil
}

// Call implements transport.Transport.
func (t *Transport) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	c, err := t.current()
	if err != nil {
		return nil, err
	}
	return c.request(ctx, transport.MethodCallTool, &transport.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Close terminates the tool process and releases its pipes. Safe to
// call more than once and on a transport that never connected.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transport) closeLocked() {
	if t.conn != nil {
		t.conn.close()
		t.conn = nil
	}
	if t.cmd != nil && t.cmd.Process != nil {
		// The reaper goroutine collects the exit status.
		_ = t.cmd.Process.Kill()
	}
	t.cmd = nil
}
