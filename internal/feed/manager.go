// Package feed manages the persistent telemetry data-feed connection.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/coachpo/observatory/errs"
	"github.com/coachpo/observatory/internal/normalize"
	"github.com/coachpo/observatory/internal/observability"
	"github.com/coachpo/observatory/internal/schema"
)

const writeTimeout = 5 * time.Second

// Options configures a feed manager.
type Options struct {
	// URL is the websocket telemetry endpoint.
	URL string
	// HeartbeatInterval is the ping cadence while the feed is open.
	HeartbeatInterval time.Duration
	// ReconnectDelay is the fixed delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration
	// OnSnapshot receives every normalised telemetry snapshot.
	OnSnapshot func(*schema.Snapshot)
	// OnState, when set, is notified of every state transition.
	OnState func(State)
	// Metrics, when set, records feed runtime counters.
	Metrics *observability.FeedMetrics
}

// Manager owns the feed connection lifecycle: dial, heartbeat, dispatch,
// and reconnect-on-close with a single pending retry timer.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	delay  backoff.BackOff

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}

	stateNotify chan State
}

// NewManager creates a feed manager. It does not connect; call Connect.
func NewManager(ctx context.Context, opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	// The retry policy is a fixed interval; the exponential policy is pinned
	// so every NextBackOff yields exactly the configured delay.
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = opts.ReconnectDelay
	delay.RandomizationFactor = 0
	delay.Multiplier = 1
	delay.MaxInterval = opts.ReconnectDelay

	managerCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		ctx:    managerCtx,
		cancel: cancel,
		opts:   opts,
		delay:  delay,
		state:  StateDisconnected,
	}
	if opts.OnState != nil {
		m.stateNotify = make(chan State, 16)
		go m.notifyLoop()
	}
	return m
}

// notifyLoop delivers state transitions to the listener in order, off the
// manager lock.
func (m *Manager) notifyLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case state := <-m.stateNotify:
			m.opts.OnState(state)
		}
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a dial unless one is already in flight or the feed is open.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.ctx.Err() != nil || m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.dial()
}

// Send writes a client control message. Unless the feed is open the message
// is dropped and logged, never queued.
func (m *Manager) Send(messageType string) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		observability.Log().Debug("feed send dropped",
			observability.F("type", messageType),
			observability.F("state", m.State().String()))
		m.opts.Metrics.RecordDroppedSend(m.ctx)
		return
	}

	data, err := schema.EncodeControl(messageType)
	if err != nil {
		observability.Log().Error("encode control message", observability.F("error", err))
		return
	}
	writeCtx, cancel := context.WithTimeout(m.ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		observability.Log().Error("feed write failed",
			observability.F("type", messageType),
			observability.F("error", err))
	}
}

// Close tears the connection down and cancels the heartbeat and any pending
// reconnect timer.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close(websocket.StatusNormalClosure, "shutdown")
		m.conn = nil
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
}

func (m *Manager) dial() {
	dialCtx, cancel := context.WithTimeout(m.ctx, m.opts.HandshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, m.opts.URL, nil)
	cancel()
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		observability.Log().Error("feed dial failed",
			observability.F("url", m.opts.URL),
			observability.F("error", errs.Connection(m.opts.URL, err)))
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.ctx.Err() != nil || m.state != StateConnecting {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	m.conn = conn
	m.setStateLocked(StateOpen)
	m.delay.Reset()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	m.mu.Unlock()

	observability.Log().Info("feed connected", observability.F("url", m.opts.URL))
	m.Send(schema.MessageTypeRequestUpdate)

	go m.heartbeatLoop(stop)
	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(m.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || m.ctx.Err() != nil {
				return
			}
			observability.Log().Error("feed closed",
				observability.F("error", errs.Connection(m.opts.URL, err)))
			m.handleClose()
			return
		}
		m.dispatch(data)
	}
}

// dispatch routes a frame by its tagged message kind. Malformed frames are
// logged and discarded without touching connection state.
func (m *Manager) dispatch(frame []byte) {
	msg, err := schema.DecodeMessage(frame)
	if err != nil {
		observability.Log().Error("feed frame discarded",
			observability.F("error", errs.Protocol("unparseable frame", err)))
		return
	}

	switch msg := msg.(type) {
	case schema.InitialState:
		m.opts.Metrics.RecordMessage(m.ctx, schema.MessageTypeInitialState)
		m.deliver(normalize.Snapshot(msg.Data))
	case schema.EvolutionUpdate:
		m.opts.Metrics.RecordMessage(m.ctx, schema.MessageTypeEvolutionUpdate)
		m.deliver(normalize.Snapshot(msg.Data))
	case schema.Pong:
		// No pong deadline is enforced; a silent half-open connection is only
		// detected when a read or write fails.
		m.opts.Metrics.RecordMessage(m.ctx, schema.MessageTypePong)
	case schema.Unknown:
		observability.Log().Debug("feed frame ignored", observability.F("type", msg.Type))
	}
}

func (m *Manager) deliver(snap *schema.Snapshot) {
	if m.opts.OnSnapshot != nil {
		m.opts.OnSnapshot(snap)
	}
}

// handleClose transitions to reconnecting and schedules exactly one retry.
// Overlapping close and error events reuse the already pending timer.
func (m *Manager) handleClose() {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close(websocket.StatusNormalClosure, "")
		m.conn = nil
	}
	if m.reconnectTimer != nil {
		m.setStateLocked(StateReconnecting)
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateReconnecting)
	wait := m.delay.NextBackOff()
	m.reconnectTimer = time.AfterFunc(wait, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		m.mu.Unlock()
		m.Connect()
	})
	m.mu.Unlock()

	m.opts.Metrics.RecordReconnect(m.ctx)
	observability.Log().Info("feed reconnect scheduled", observability.F("delay", wait))
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.ctx.Err() != nil || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.handleClose()
}

func (m *Manager) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.Send(schema.MessageTypePing)
		}
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// setStateLocked mutates state and queues the listener notification so the
// lock is never held across user code. Callers hold m.mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	if m.stateNotify != nil {
		select {
		case m.stateNotify <- next:
		default:
		}
	}
}
