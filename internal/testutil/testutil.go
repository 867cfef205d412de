// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
)

// FakeTransport is an in-memory transport.Transport for tests.
type FakeTransport struct {
	TransportID   string
	TransportKind transport.Kind
	Multiplex     bool

	// ConnectErr, when set, fails Connect.
	ConnectErr error
	// Tools is returned by ListTools.
	Tools []tools.Descriptor
	// ListErr, when set, fails ListTools.
	ListErr error
	// CallFunc handles Call; a nil CallFunc echoes the arguments.
	CallFunc func(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)

	mu       sync.Mutex
	calls    []string
	connects int
	closes   int
}

// NewFakeTransport creates a fake stdio-kind transport with the given
// id and tool descriptors owned by it.
func NewFakeTransport(id string, descriptors ...tools.Descriptor) *FakeTransport {
	for i := range descriptors {
		descriptors[i].TransportID = id
	}
	return &FakeTransport{
		TransportID:   id,
		TransportKind: transport.KindStdio,
		Tools:         descriptors,
	}
}

func (f *FakeTransport) ID() string { return f.TransportID }

func (f *FakeTransport) Kind() transport.Kind { return f.TransportKind }

func (f *FakeTransport) Multiplexing() bool { return f.Multiplex }

func (f *FakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return f.ConnectErr
}

func (f *FakeTransport) ListTools(_ context.Context) ([]tools.Descriptor, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Tools, nil
}

func (f *FakeTransport) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.CallFunc != nil {
		return f.CallFunc(ctx, name, args)
	}
	return json.Marshal(args)
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

// Calls returns the tool names called so far, in call order.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns the number of Call invocations.
func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CloseCount returns the number of Close invocations.
func (f *FakeTransport) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// ConnectCount returns the number of Connect invocations.
func (f *FakeTransport) ConnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

var _ transport.Transport = (*FakeTransport)(nil)
