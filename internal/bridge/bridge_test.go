package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/caiframework/cai-console/internal/events"
	"github.com/caiframework/cai-console/internal/models"
)

// fakeConn is an in-process push channel the tests drive directly.
type fakeConn struct {
	frames chan []byte

	mu     sync.Mutex
	writes []interface{}
	closed bool
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return 1, data, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.writes = append(c.writes, v)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drop simulates the server side going away unexpectedly.
func (c *fakeConn) drop() {
	c.Close()
}

func (c *fakeConn) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case c.frames <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("fake connection frame buffer full")
	}
}

func (c *fakeConn) writtenPayloads() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.writes))
	copy(out, c.writes)
	return out
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fail  bool
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fail {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func newTestBridge(t *testing.T, policy ReconnectPolicy) (*Bridge, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	b := New("ws://backend", WithDialer(dialer), WithReconnectPolicy(policy))
	t.Cleanup(b.Shutdown)
	return b, dialer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectIdempotent(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("repeat connect: %v", err)
	}

	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if dialer.urls[0] != "ws://backend/ws/sess-a" {
		t.Fatalf("unexpected dial URL %s", dialer.urls[0])
	}
}

func TestSessionSwitchTearsDownFirst(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	if err := b.Connect(context.Background(), "sess-b"); err != nil {
		t.Fatalf("connect b: %v", err)
	}

	if !dialer.conn(0).isClosed() {
		t.Fatal("session A's connection was not closed before opening B")
	}
	if dialer.conn(1).isClosed() {
		t.Fatal("session B's connection should be open")
	}
	if got := b.SessionID(); got != "sess-b" {
		t.Fatalf("expected binding sess-b, got %q", got)
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("expected 2 dials, got %d", dialer.dialCount())
	}
}

func TestConnectFailureLeavesIdle(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())
	dialer.setFail(true)

	if err := b.Connect(context.Background(), "sess-a"); err == nil {
		t.Fatal("expected dial error")
	}
	if b.State() != StateIdle {
		t.Fatalf("expected idle after failed connect, got %s", b.State())
	}
	if b.SessionID() != "" {
		t.Fatal("failed connect should not leave a session bound")
	}
}

func TestSendRequiresOpen(t *testing.T) {
	b, _ := newTestBridge(t, DefaultReconnectPolicy())

	if err := b.Send(map[string]string{"type": "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := b.Send(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("send while open: %v", err)
	}

	b.Disconnect()
	if err := b.Send(map[string]string{"type": "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestSendReachesTransport(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())
	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	payload := map[string]string{"type": "ping"}
	if err := b.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "payload write", func() bool {
		return len(dialer.conn(0).writtenPayloads()) == 1
	})
}

func TestFrameDispatchTypedAndWildcard(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())
	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var mu sync.Mutex
	var typed []models.Event
	wild := 0
	b.Dispatcher().Subscribe(models.EventMessageAdded, func(payload interface{}) {
		mu.Lock()
		defer mu.Unlock()
		typed = append(typed, payload.(models.Event))
	})
	b.Dispatcher().Subscribe(events.Wildcard, func(interface{}) {
		mu.Lock()
		defer mu.Unlock()
		wild++
	})

	dialer.conn(0).push(t, `{"type":"message_added","message":{"id":"m1","role":"assistant","content":"hi","timestamp":"2026-08-29T10:00:00","tools_used":[]}}`)
	dialer.conn(0).push(t, `{"type":"unknown_future_event","data":1}`)

	waitFor(t, "typed and wildcard delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(typed) == 1 && wild >= 2
	})

	added := typed[0].(models.MessageAdded)
	if added.Message.ID != "m1" || added.Message.Content != "hi" {
		t.Fatalf("unexpected decoded message: %+v", added.Message)
	}
}

func TestMalformedFrameDoesNotKillChannel(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())
	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var mu sync.Mutex
	received := 0
	b.Dispatcher().Subscribe(models.EventTaskCreated, func(interface{}) {
		mu.Lock()
		defer mu.Unlock()
		received++
	})

	dialer.conn(0).push(t, `{not json at all`)
	dialer.conn(0).push(t, `{"no_type_field":true}`)
	dialer.conn(0).push(t, `{"type":"task_created","task":{"id":"t1","session_id":"sess-a","message":"scan","status":"pending","tools_used":[]}}`)

	waitFor(t, "well-formed frame after malformed ones", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 1
	})

	if got := b.ParseErrors(); got != 2 {
		t.Fatalf("expected 2 parse errors recorded, got %d", got)
	}
	if b.State() != StateOpen {
		t.Fatalf("malformed frames must not close the channel, state=%s", b.State())
	}
}

func TestReconnectAfterUnexpectedDrop(t *testing.T) {
	policy := ReconnectPolicy{Delay: 20 * time.Millisecond, Multiplier: 1}
	b, dialer := newTestBridge(t, policy)

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.conn(0).drop()

	waitFor(t, "reconnect dial", func() bool {
		return dialer.dialCount() == 2 && b.State() == StateOpen
	})

	if dialer.urls[1] != "ws://backend/ws/sess-a" {
		t.Fatalf("reconnect targeted %s, want the still-bound session", dialer.urls[1])
	}
	if b.SessionID() != "sess-a" {
		t.Fatalf("binding lost across reconnect: %q", b.SessionID())
	}
}

func TestReconnectRetriesUntilSuccess(t *testing.T) {
	policy := ReconnectPolicy{Delay: 10 * time.Millisecond, Multiplier: 1}
	b, dialer := newTestBridge(t, policy)

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.setFail(true)
	dialer.conn(0).drop()

	waitFor(t, "several failed retries", func() bool {
		return dialer.dialCount() >= 3
	})

	dialer.setFail(false)
	waitFor(t, "eventual reconnect", func() bool {
		return b.State() == StateOpen
	})
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	policy := ReconnectPolicy{Delay: 80 * time.Millisecond, Multiplier: 1}
	b, dialer := newTestBridge(t, policy)

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.conn(0).drop()
	waitFor(t, "reconnecting state", func() bool {
		return b.State() == StateReconnecting
	})

	b.Disconnect()

	time.Sleep(200 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("disconnect did not cancel the reconnect timer: %d dials", got)
	}
	if b.State() != StateIdle {
		t.Fatalf("expected idle after disconnect, got %s", b.State())
	}
	if b.SessionID() != "" {
		t.Fatal("disconnect must clear the session binding")
	}
}

func TestReconnectAttemptCap(t *testing.T) {
	policy := ReconnectPolicy{Delay: 10 * time.Millisecond, Multiplier: 1, MaxAttempts: 2}
	b, dialer := newTestBridge(t, policy)

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.setFail(true)
	dialer.conn(0).drop()

	waitFor(t, "retries exhausted", func() bool {
		return b.State() == StateIdle
	})

	// Initial dial plus exactly MaxAttempts retries.
	if got := dialer.dialCount(); got != 3 {
		t.Fatalf("expected 3 dials total, got %d", got)
	}
}

func TestStateChangesPublished(t *testing.T) {
	b, dialer := newTestBridge(t, DefaultReconnectPolicy())

	var mu sync.Mutex
	var seen []string
	b.Dispatcher().Subscribe(EventConnectionState, func(payload interface{}) {
		change := payload.(StateChange)
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, fmt.Sprintf("%s→%s", change.From, change.To))
	})

	if err := b.Connect(context.Background(), "sess-a"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "open transition", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range seen {
			if s == "connecting→open" {
				return true
			}
		}
		return false
	})
	_ = dialer
}
