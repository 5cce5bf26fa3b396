package sync

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// fakeConn is an in-memory push channel fed by the test.
type fakeConn struct {
	in   chan model.Envelope
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	emitted []model.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan model.Envelope, 64),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Read() (model.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	case <-c.done:
		return model.Envelope{}, io.EOF
	}
}

func (c *fakeConn) Emit(event string, payload any) error {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	env, err := model.NewEnvelope(event, payload)
	require.NoError(t, err)
	c.in <- env
}

func (c *fakeConn) emittedEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.emitted))
	for _, env := range c.emitted {
		out = append(out, env.Event)
	}
	return out
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fakeDialer hands out a scripted sequence of connections, then blocks until
// the supervisor is stopped.
type fakeDialer struct {
	mu    sync.Mutex
	queue []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, session Session) (Conn, error) {
	d.mu.Lock()
	d.dials++
	if len(d.queue) > 0 {
		conn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		return conn, nil
	}
	d.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// failDialer always fails.
type failDialer struct{}

func (failDialer) Dial(ctx context.Context, session Session) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}

func fastOptions() SupervisorOptions {
	return SupervisorOptions{
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		RetryBudget: 3,
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

func TestStartRequiresToken(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(&fakeDialer{}, router, fastOptions(), nil)
	t.Cleanup(sup.Stop)

	require.ErrorIs(t, sup.Start(Session{}), ErrNotAuthenticated)
	require.Equal(t, StatusClosed, sup.Status())
}

func TestStartOpensAndDispatches(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	router, store, _, _ := newTestRouter(t)

	opts := fastOptions()
	var ready bool
	var mu sync.Mutex
	opts.OnReady = func() { mu.Lock(); ready = true; mu.Unlock() }

	sup := NewConnectionSupervisor(dialer, router, opts, nil)
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start(Session{Token: "tok"}))
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "never opened")
	eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return ready }, "ready never fired")

	conn.deliver(t, model.EventNewMessage, msg("m1", "c1", "u1", "hello", 100))
	eventually(t, func() bool { return len(store.Messages("c1")) == 1 }, "message never applied")

	cursor, ok := sup.LastSeen("c1")
	require.True(t, ok)
	require.Equal(t, "m1", cursor)
}

func TestStopIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(dialer, router, fastOptions(), nil)

	require.NoError(t, sup.Start(Session{Token: "tok"}))
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "never opened")

	sup.Stop()
	sup.Stop() // second call is a no-op
	require.Equal(t, StatusClosed, sup.Status())
	require.True(t, conn.closed())
}

func TestStartSameSessionIsNoop(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(dialer, router, fastOptions(), nil)
	t.Cleanup(sup.Stop)

	session := Session{Token: "tok"}
	require.NoError(t, sup.Start(session))
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "never opened")

	require.NoError(t, sup.Start(session))
	require.Equal(t, 1, dialer.dialCount())
	require.False(t, conn.closed())
}

func TestStartDifferentSessionRestarts(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn1, conn2}}
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(dialer, router, fastOptions(), nil)
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start(Session{Token: "alice"}))
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "first session never opened")

	require.NoError(t, sup.Start(Session{Token: "bob"}))
	eventually(t, func() bool { return conn1.closed() }, "previous connection never torn down")
	eventually(t, func() bool { return dialer.dialCount() == 2 && sup.Status() == StatusOpen },
		"second session never opened")
}

func TestReconnectSignalsResumed(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn1, conn2}}
	router, store, _, _ := newTestRouter(t)

	opts := fastOptions()
	var mu sync.Mutex
	readyCount, resumedCount := 0, 0
	opts.OnReady = func() { mu.Lock(); readyCount++; mu.Unlock() }
	opts.OnResumed = func() { mu.Lock(); resumedCount++; mu.Unlock() }

	sup := NewConnectionSupervisor(dialer, router, opts, nil)
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start(Session{Token: "tok"}))
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "never opened")

	conn1.deliver(t, model.EventNewMessage, msg("m1", "c1", "u1", "hello", 100))
	eventually(t, func() bool { return len(store.Messages("c1")) == 1 }, "message never applied")

	// Transport drop: the supervisor must reconnect and signal resumed.
	conn1.Close()
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return resumedCount == 1
	}, "resumed never fired")
	eventually(t, func() bool { return sup.Status() == StatusOpen }, "never reopened")

	mu.Lock()
	require.Equal(t, 1, readyCount)
	mu.Unlock()

	// The server covers the gap by redelivering; idempotence absorbs it.
	conn2.deliver(t, model.EventNewMessage, msg("m1", "c1", "u1", "hello", 100))
	conn2.deliver(t, model.EventNewMessage, msg("m2", "c1", "u1", "again", 200))
	eventually(t, func() bool { return len(store.Messages("c1")) == 2 }, "redelivery not absorbed")
}

func TestDegradedAfterRetryBudget(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	opts := fastOptions()
	var mu sync.Mutex
	var degraded []error
	opts.OnDegraded = func(err error) { mu.Lock(); degraded = append(degraded, err); mu.Unlock() }

	sup := NewConnectionSupervisor(failDialer{}, router, opts, nil)
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start(Session{Token: "tok"}))
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(degraded) == 1
	}, "degraded never reported")

	mu.Lock()
	require.ErrorIs(t, degraded[0], ErrConnectionUnavailable)
	mu.Unlock()

	// Still retrying, not crashed.
	require.NotEqual(t, StatusClosed, sup.Status())
}

func TestTenantSubscriptionEmittedOnOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(dialer, router, fastOptions(), nil)
	t.Cleanup(sup.Stop)

	require.NoError(t, sup.Start(Session{Token: "tok", TenantID: "tenant-7"}))
	eventually(t, func() bool {
		events := conn.emittedEvents()
		return len(events) == 1 && events[0] == model.EventSubscribeTenant
	}, "tenant subscription never emitted")
}

func TestEmitWithoutConnection(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	sup := NewConnectionSupervisor(&fakeDialer{}, router, fastOptions(), nil)

	err := sup.Emit(model.EventTyping, model.TypingPayload{ConversationID: "c1"})
	require.ErrorIs(t, err, ErrNotConnected)
}
