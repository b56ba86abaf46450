// Package bridge owns the single push-channel connection to the CAI
// backend. It binds the connection to at most one session at a time,
// recovers from unexpected drops, and feeds every inbound frame to the
// event dispatcher.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/caiframework/cai-console/internal/events"
	"github.com/caiframework/cai-console/internal/models"
)

// ErrNotConnected is returned by Send when the channel is not open.
var ErrNotConnected = errors.New("not connected")

// ErrSendBufferFull is returned by Send when the outbound queue is
// saturated. The push channel is best-effort; callers needing reliable
// delivery use the request/response API instead.
var ErrSendBufferFull = errors.New("send buffer full")

// EventConnectionState is the local dispatcher type under which state
// transitions are published, so wildcard subscribers can observe the
// connection lifecycle alongside server traffic.
const EventConnectionState = "connection_state"

// StateChange is the payload published under EventConnectionState.
type StateChange struct {
	From      State
	To        State
	SessionID string
}

func (s StateChange) EventType() string { return EventConnectionState }

// ReconnectPolicy tunes recovery from unexpected connection drops.
type ReconnectPolicy struct {
	// Delay before the first reconnect attempt.
	Delay time.Duration
	// Multiplier grows the delay after each failed attempt. Values
	// at or below 1 keep the delay flat.
	Multiplier float64
	// MaxDelay caps backoff growth. Zero means no cap.
	MaxDelay time.Duration
	// MaxAttempts stops retrying after this many failures. Zero
	// retries indefinitely.
	MaxAttempts int
}

// DefaultReconnectPolicy retries every 3 seconds until connected or
// explicitly disconnected.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: 3 * time.Second, Multiplier: 1.0}
}

const (
	heartbeatInterval = 30 * time.Second
	pingInterval      = 45 * time.Second
	writeBuffer       = 100
)

// Bridge manages the WebSocket connection to the backend. All methods
// are safe for concurrent use; connection attempts are serialized so a
// session switch never leaves two connections open.
type Bridge struct {
	baseURL    string
	dialer     Dialer
	dispatcher *events.Dispatcher
	policy     ReconnectPolicy
	verbose    bool

	// connectMu serializes Connect/Disconnect/reconnect attempts.
	connectMu sync.Mutex

	mu             sync.Mutex
	state          State
	sessionID      string
	conn           Conn
	connDone       chan struct{}
	writeChan      chan interface{}
	reconnectTimer *time.Timer
	attempts       int
	delay          time.Duration
	generation     uint64
	parseErrors    uint64

	stateEvents chan StateChange
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer replaces the production WebSocket dialer. Tests inject a
// fake transport here.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithReconnectPolicy overrides the default reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithVerbose enables per-frame logging.
func WithVerbose(verbose bool) Option {
	return func(b *Bridge) { b.verbose = verbose }
}

// New creates a Bridge for the given ws(s):// base URL. The returned
// bridge owns its dispatcher; Shutdown tears both down.
func New(baseURL string, opts ...Option) *Bridge {
	b := &Bridge{
		baseURL:    baseURL,
		dialer:     &WebsocketDialer{},
		dispatcher: events.NewDispatcher(),
		policy:     DefaultReconnectPolicy(),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.delay = b.policy.Delay
	b.stateEvents = make(chan StateChange, 16)
	go b.publishStateChanges()
	return b
}

// publishStateChanges forwards transitions to the dispatcher from a
// single goroutine, preserving transition order without holding b.mu
// across handler invocations.
func (b *Bridge) publishStateChanges() {
	for change := range b.stateEvents {
		b.dispatcher.Dispatch(EventConnectionState, change)
	}
}

// Dispatcher exposes the event registry fed by this bridge.
func (b *Bridge) Dispatcher() *events.Dispatcher {
	return b.dispatcher
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SessionID returns the session the connection is bound to, or "".
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// ParseErrors returns the count of malformed frames dropped so far.
func (b *Bridge) ParseErrors() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parseErrors
}

// Connect binds the bridge to sessionID and opens the push channel.
// Calling it while already open and bound to the same session is a
// no-op. If bound to a different session, the existing connection is
// fully torn down before the new one is dialed.
func (b *Bridge) Connect(ctx context.Context, sessionID string) error {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	b.mu.Lock()
	if b.state == StateOpen && b.sessionID == sessionID {
		b.mu.Unlock()
		return nil
	}
	if b.sessionID != "" && b.sessionID != sessionID {
		b.teardownLocked()
	} else {
		b.cancelReconnectLocked()
	}
	b.sessionID = sessionID
	b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	if err := b.dial(ctx, sessionID); err != nil {
		b.mu.Lock()
		b.sessionID = ""
		b.setStateLocked(StateIdle)
		b.mu.Unlock()
		return fmt.Errorf("failed to connect session %s: %w", sessionID, err)
	}
	return nil
}

// Disconnect cancels any pending reconnect, closes the connection if
// one is open, and clears the session binding. It is terminal: no
// reconnection occurs until the next Connect.
func (b *Bridge) Disconnect() {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	b.mu.Lock()
	b.teardownLocked()
	b.mu.Unlock()
}

// Shutdown disconnects, stops state publication, and drops every
// subscription on the dispatcher. The bridge is unusable afterwards.
func (b *Bridge) Shutdown() {
	b.Disconnect()
	b.mu.Lock()
	if b.stateEvents != nil {
		close(b.stateEvents)
		b.stateEvents = nil
	}
	b.mu.Unlock()
	b.dispatcher.Close()
}

// Send queues a payload on the push channel. Valid only while open.
func (b *Bridge) Send(payload interface{}) error {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return ErrNotConnected
	}
	ch := b.writeChan
	b.mu.Unlock()

	select {
	case ch <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// dial opens the transport for sessionID and installs the connection.
// Caller holds connectMu.
func (b *Bridge) dial(ctx context.Context, sessionID string) error {
	url := fmt.Sprintf("%s/ws/%s", b.baseURL, sessionID)
	if b.verbose {
		log.Printf("[Bridge] Connecting to %s", url)
	}

	conn, err := b.dialer.Dial(ctx, url)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.connDone = make(chan struct{})
	b.writeChan = make(chan interface{}, writeBuffer)
	b.attempts = 0
	b.delay = b.policy.Delay
	b.generation++
	gen := b.generation
	done := b.connDone
	writes := b.writeChan
	b.setStateLocked(StateOpen)
	b.mu.Unlock()

	log.Printf("✅ Connected to session %s", sessionID)

	go b.readLoop(gen, conn)
	go b.writeLoop(conn, writes, done)
	return nil
}

// teardownLocked performs the explicit close sequence: cancel any
// pending reconnect, close the socket, clear the binding. Caller holds
// b.mu.
func (b *Bridge) teardownLocked() {
	b.cancelReconnectLocked()
	if b.conn != nil || b.state == StateOpen {
		b.setStateLocked(StateClosing)
	}
	b.closeConnLocked()
	b.sessionID = ""
	b.generation++
	b.setStateLocked(StateIdle)
}

func (b *Bridge) cancelReconnectLocked() {
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
		b.reconnectTimer = nil
	}
	b.attempts = 0
	b.delay = b.policy.Delay
}

func (b *Bridge) closeConnLocked() {
	if b.connDone != nil {
		close(b.connDone)
		b.connDone = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// setStateLocked records a transition and publishes it once the mutex
// is released. Caller holds b.mu.
func (b *Bridge) setStateLocked(next State) {
	if b.state == next {
		return
	}
	change := StateChange{From: b.state, To: next, SessionID: b.sessionID}
	b.state = next
	select {
	case b.stateEvents <- change:
	default:
		// Observability only; never block a transition on a slow
		// subscriber.
	}
}

// readLoop consumes inbound frames until the connection dies. gen pins
// the loop to one connection generation so a stale loop cannot trigger
// a reconnect after an explicit teardown.
func (b *Bridge) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if b.verbose {
				log.Printf("[Bridge] Read error: %v", err)
			}
			b.handleUnexpectedClose(gen)
			return
		}

		event, err := models.ParseEvent(data)
		if err != nil {
			b.mu.Lock()
			b.parseErrors++
			b.mu.Unlock()
			log.Printf("[Bridge] Dropping malformed frame: %v", err)
			continue
		}

		if b.verbose {
			log.Printf("[Bridge] Received: %s", event.EventType())
		}
		b.dispatcher.Dispatch(event.EventType(), event)
	}
}

// writeLoop drains the outbound queue and keeps the connection alive
// with application-level pings and WebSocket control pings.
func (b *Bridge) writeLoop(conn Conn, writes <-chan interface{}, done <-chan struct{}) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case payload := <-writes:
			if err := conn.WriteJSON(payload); err != nil {
				if b.verbose {
					log.Printf("[Bridge] Write error: %v", err)
				}
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleUnexpectedClose transitions to Reconnecting and schedules a
// single retry, unless the closure was an explicit teardown (stale
// generation) or the attempt budget is exhausted.
func (b *Bridge) handleUnexpectedClose(gen uint64) {
	b.mu.Lock()
	if gen != b.generation || b.state != StateOpen {
		// Explicit disconnect or session switch already ran.
		b.mu.Unlock()
		return
	}
	b.closeConnLocked()
	sessionID := b.sessionID
	b.setStateLocked(StateReconnecting)
	b.scheduleReconnectLocked(gen)
	b.mu.Unlock()

	log.Printf("🔌 Connection to session %s lost", sessionID)
}

// scheduleReconnectLocked arms the reconnect timer. Caller holds b.mu.
func (b *Bridge) scheduleReconnectLocked(gen uint64) {
	b.attempts++
	if b.policy.MaxAttempts > 0 && b.attempts > b.policy.MaxAttempts {
		log.Printf("❌ Giving up after %d reconnect attempts", b.policy.MaxAttempts)
		b.sessionID = ""
		b.setStateLocked(StateIdle)
		return
	}

	delay := b.delay
	if b.policy.Multiplier > 1 {
		next := time.Duration(float64(b.delay) * b.policy.Multiplier)
		if b.policy.MaxDelay > 0 && next > b.policy.MaxDelay {
			next = b.policy.MaxDelay
		}
		b.delay = next
	}

	log.Printf("🔄 Reconnecting in %v...", delay)
	b.reconnectTimer = time.AfterFunc(delay, func() {
		b.retry(gen)
	})
}

// retry performs one reconnect attempt for the still-bound session.
func (b *Bridge) retry(gen uint64) {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	b.mu.Lock()
	if gen != b.generation || b.state != StateReconnecting {
		// Disconnected or rebound while the timer was pending.
		b.mu.Unlock()
		return
	}
	b.reconnectTimer = nil
	sessionID := b.sessionID
	b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	if err := b.dial(context.Background(), sessionID); err != nil {
		log.Printf("❌ Reconnect failed: %v", err)
		b.mu.Lock()
		if gen == b.generation && b.sessionID == sessionID {
			b.setStateLocked(StateReconnecting)
			b.scheduleReconnectLocked(gen)
		}
		b.mu.Unlock()
	}
}
