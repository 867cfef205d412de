package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/internal/testutil"
	"github.com/effective-security/toolrouter/session"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Start(t *testing.T) {
	math := testutil.NewFakeTransport("math", tools.Descriptor{Name: "add"})
	expense := testutil.NewFakeTransport("expense")

	mgr := session.NewManager(session.Config{})
	sessions, err := mgr.Start(context.Background(), []transport.Transport{math, expense})
	require.NoError(t, err)
	defer mgr.Shutdown()

	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, session.StateReady, s.State())
	}

	ids := make([]string, 0, 2)
	for _, s := range mgr.Sessions() {
		ids = append(ids, s.TransportID())
	}
	assert.Equal(t, []string{"math", "expense"}, ids)
}

func TestManager_StartFailFast(t *testing.T) {
	good := testutil.NewFakeTransport("good")
	bad := testutil.NewFakeTransport("bad")
	bad.ConnectErr = errors.New("executable not found")

	mgr := session.NewManager(session.Config{})
	_, err := mgr.Start(context.Background(), []transport.Transport{good, bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrStartup))
	assert.Contains(t, err.Error(), `transport "bad"`)

	// the already-started session is torn down, nothing leaks
	assert.Equal(t, 1, good.CloseCount())
	assert.Equal(t, 1, bad.CloseCount())
}

func TestManager_StartDuplicateID(t *testing.T) {
	a := testutil.NewFakeTransport("same")
	b := testutil.NewFakeTransport("same")

	mgr := session.NewManager(session.Config{})
	_, err := mgr.Start(context.Background(), []transport.Transport{a, b})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrStartup))
	assert.Contains(t, err.Error(), "duplicate transport id")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	tr := testutil.NewFakeTransport("math")
	mgr := session.NewManager(session.Config{})
	_, err := mgr.Start(context.Background(), []transport.Transport{tr})
	require.NoError(t, err)

	require.NoError(t, mgr.Shutdown())
	require.NoError(t, mgr.Shutdown())
	assert.Equal(t, 1, tr.CloseCount())

	s, ok := mgr.Get("math")
	require.True(t, ok)
	assert.Equal(t, session.StateClosed, s.State())

	_, err = s.ListTools(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrClosed))

	_, err = s.Call(context.Background(), "add", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrClosed))
}

func TestSession_SerializesNonMultiplexing(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	tr := testutil.NewFakeTransport("math", tools.Descriptor{Name: "add"})
	tr.CallFunc = func(_ context.Context, _ string, _ map[string]any) (json.RawMessage, error) {
		cur := inflight.Add(1)
		for {
			prev := maxInflight.Load()
			if cur <= prev || maxInflight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return json.RawMessage(`1`), nil
	}

	mgr := session.NewManager(session.Config{})
	_, err := mgr.Start(context.Background(), []transport.Transport{tr})
	require.NoError(t, err)
	defer mgr.Shutdown()

	s, _ := mgr.Get("math")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Call(context.Background(), "add", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// a stdio transport never sees overlapping calls
	assert.EqualValues(t, 1, maxInflight.Load())
	assert.Equal(t, session.StateReady, s.State())
}

func TestSession_CapsMultiplexing(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	tr := testutil.NewFakeTransport("expense")
	tr.Multiplex = true
	tr.CallFunc = func(_ context.Context, _ string, _ map[string]any) (json.RawMessage, error) {
		cur := inflight.Add(1)
		for {
			prev := maxInflight.Load()
			if cur <= prev || maxInflight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return json.RawMessage(`1`), nil
	}

	mgr := session.NewManager(session.Config{MaxConcurrentCalls: 2})
	_, err := mgr.Start(context.Background(), []transport.Transport{tr})
	require.NoError(t, err)
	defer mgr.Shutdown()

	s, _ := mgr.Get("expense")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Call(context.Background(), "trackExpense", nil)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInflight.Load(), int32(2))
	assert.Greater(t, tr.CallCount(), 0)
}

func TestSession_FailureThreshold(t *testing.T) {
	tr := testutil.NewFakeTransport("flaky")
	mgr := session.NewManager(session.Config{FailureThreshold: 3})
	_, err := mgr.Start(context.Background(), []transport.Transport{tr})
	require.NoError(t, err)
	defer mgr.Shutdown()

	s, _ := mgr.Get("flaky")
	assert.False(t, s.RecordFailure())
	assert.False(t, s.RecordFailure())

	// a success resets the consecutive count
	s.RecordSuccess()
	assert.False(t, s.RecordFailure())
	assert.False(t, s.RecordFailure())
	assert.Equal(t, session.StateReady, s.State())

	assert.True(t, s.RecordFailure())
	assert.Equal(t, session.StateError, s.State())

	_, err = s.Call(context.Background(), "ping", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotReady))
}

func TestManager_Reconnect(t *testing.T) {
	math := testutil.NewFakeTransport("math")
	other := testutil.NewFakeTransport("other")
	mgr := session.NewManager(session.Config{FailureThreshold: 1})
	_, err := mgr.Start(context.Background(), []transport.Transport{math, other})
	require.NoError(t, err)
	defer mgr.Shutdown()

	s, _ := mgr.Get("math")
	require.True(t, s.RecordFailure())
	require.Equal(t, session.StateError, s.State())

	require.NoError(t, mgr.Reconnect(context.Background(), "math"))
	assert.Equal(t, session.StateReady, s.State())
	assert.Equal(t, 2, math.ConnectCount())

	t.Run("failure is isolated", func(t *testing.T) {
		math.ConnectErr = errors.New("spawn failed")
		require.Error(t, mgr.Reconnect(context.Background(), "math"))
		assert.Equal(t, session.StateError, s.State())

		o, _ := mgr.Get("other")
		assert.Equal(t, session.StateReady, o.State())
	})

	t.Run("unknown transport", func(t *testing.T) {
		err := mgr.Reconnect(context.Background(), "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown transport")
	})
}

func TestManager_ReconnectWithDrainingCall(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	tr := testutil.NewFakeTransport("math", tools.Descriptor{Name: "add"})
	tr.CallFunc = func(ctx context.Context, _ string, _ map[string]any) (json.RawMessage, error) {
		close(started)
		select {
		case <-block:
			return json.RawMessage(`1`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	mgr := session.NewManager(session.Config{})
	_, err := mgr.Start(context.Background(), []transport.Transport{tr})
	require.NoError(t, err)
	defer mgr.Shutdown()

	s, _ := mgr.Get("math")
	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), "add", nil)
		done <- err
	}()
	<-started
	require.Equal(t, session.StateBusy, s.State())

	require.NoError(t, mgr.Reconnect(context.Background(), "math"))
	assert.Equal(t, session.StateBusy, s.State())

	// the old call drains and the session settles back to Ready
	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, session.StateReady, s.State())
}
