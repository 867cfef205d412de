// Package streamhttp implements the remote service transport: a
// persistent HTTP(S) client posting one JSON-RPC request per call to an
// authenticated endpoint. Failures distinguish Unauthorized from
// NetworkUnavailable from Timeout so the dispatcher can classify
// retryability. The transport never retries on its own.
package streamhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter/transport", "streamhttp")

// maxResponseSize bounds a single response body.
const maxResponseSize = 10 * 1024 * 1024

// Config describes the remote endpoint.
type Config struct {
	BaseURL string
	// APIKey is sent as a bearer credential. It is supplied by the
	// configuration layer, never hardcoded.
	APIKey string
}

// Transport holds a persistent authenticated HTTP connection to one
// remote tool service.
type Transport struct {
	id     string
	cfg    Config
	client *http.Client
	nextID int64
}

var _ transport.Transport = (*Transport)(nil)

// New creates a streamable HTTP transport.
func New(id string, cfg Config) *Transport {
	return &Transport{
		id:     id,
		cfg:    cfg,
		client: &http.Client{},
	}
}

// WithHTTPClient overrides the HTTP client, for custom transports or tests.
func (t *Transport) WithHTTPClient(client *http.Client) *Transport {
	t.client = client
	return t
}

// ID implements transport.Transport.
func (t *Transport) ID() string {
	return t.id
}

// Kind implements transport.Transport.
func (t *Transport) Kind() transport.Kind {
	return transport.KindStreamableHTTP
}

// Multiplexing implements transport.Transport. The remote service
// accepts concurrent in-flight calls; the session layer caps them.
func (t *Transport) Multiplexing() bool {
	return true
}

// Connect verifies the endpoint is reachable and the credential is
// accepted by issuing a listTools round-trip.
func (t *Transport) Connect(ctx context.Context) error {
	_, err := t.do(ctx, transport.MethodListTools, nil)
	if err != nil {
		return err
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"transport", t.id,
		"status", "connected",
		"url", t.cfg.BaseURL,
	)
	return nil
}

// ListTools implements transport.Transport.
func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	raw, err := t.do(ctx, transport.MethodListTools, nil)
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
	return t.do(ctx, transport.MethodCallTool, &transport.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *Transport) do(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := transport.RequestID(atomic.AddInt64(&t.nextID, 1))
	rpcReq, err := transport.NewRequest(id, method, params)
	if err != nil {
		return nil, transport.WrapError(tools.ErrInvalidArguments, err, "failed to marshal request")
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, transport.WrapError(tools.ErrInvalidArguments, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, transport.WrapError(tools.ErrNetworkUnavailable, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	started := time.Now()
	httpResp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, transport.WrapError(tools.ErrTimeout, err, "call deadline exceeded")
		}
		if errors.Is(err, context.Canceled) {
			return nil, transport.WrapError(tools.ErrTransportUnavailable, err, "call canceled")
		}
		return nil, transport.WrapError(tools.ErrNetworkUnavailable, err, "request failed")
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	logger.ContextKV(ctx, xlog.DEBUG,
		"transport", t.id,
		"method", method,
		"status", httpResp.StatusCode,
		"elapsed", time.Since(started).String(),
	)

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, transport.NewError(tools.ErrUnauthorized, "server rejected credential: %s", httpResp.Status)
	case httpResp.StatusCode != http.StatusOK:
		return nil, transport.NewError(tools.ErrNetworkUnavailable, "server returned %s", httpResp.Status)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, transport.WrapError(tools.ErrNetworkUnavailable, err, "failed to read response body")
	}

	var rpcResp transport.Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, transport.WrapError(tools.ErrNetworkUnavailable, err, "received invalid response")
	}
	if rpcResp.Error != nil {
		return nil, transport.NewToolError(rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
