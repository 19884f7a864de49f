package whatsapp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/pkg/logger"
	"github.com/zapdesk/zapdesk/pkg/metrics"
)

// ingestTimeout bounds one live event's trip through intake.
const ingestTimeout = 15 * time.Second

// DialFunc establishes a transport session and wires its events to h.
type DialFunc func(ctx context.Context, h Handlers) (Session, error)

// Handlers receives transport events from a session. All callbacks are
// invoked from provider goroutines and must not block.
type Handlers struct {
	OnMessage func(msg InboundMessage)
	OnState   func(state ConnectionState)
	OnQR      func(code string)
}

// Manager owns the process-wide transport session. Reconnection replaces the
// session wholesale; callers always go through Session() and never hold a
// session across a reconnect.
type Manager struct {
	dial       DialFunc
	sink       Sink
	reconciler *Reconciler
	logger     *logger.Logger

	mu    sync.RWMutex
	sess  Session
	state ConnectionState
	qr    string
}

// NewManager builds a manager. The reconciler runs after every transition to
// the connected state.
func NewManager(dial DialFunc, sink Sink, reconciler *Reconciler, log *logger.Logger) *Manager {
	return &Manager{
		dial:       dial,
		sink:       sink,
		reconciler: reconciler,
		logger:     log,
		state:      StateDisconnected,
	}
}

// Connect establishes a session if none is active. It is idempotent; calling
// it while connected is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.sess != nil && m.sess.Connected() {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	sess, err := m.dial(ctx, Handlers{
		OnMessage: m.handleMessage,
		OnState:   m.handleState,
		OnQR:      m.handleQR,
	})
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	return nil
}

// Reconnect tears the current session down and establishes a fresh one.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	m.logger.Info("reconnecting whatsapp session")
	return m.Connect(ctx)
}

// Session returns the active session, or nil if none.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

// Status reports the connection state and, while pairing, the current QR code.
func (m *Manager) Status() (ConnectionState, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateConnected {
		return m.state, ""
	}
	return m.state, m.qr
}

// Close shuts the active session down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
	m.state = StateDisconnected
	metrics.WhatsAppConnected.Set(0)
}

func (m *Manager) handleMessage(msg InboundMessage) {
	if !IsCustomerEndpoint(msg.ChatKey) {
		return
	}
	// A deep history sync can carry months of chat; only the recency window
	// reaches the ledger. Live traffic is never filtered by age.
	if msg.FromHistory && m.reconciler != nil && !m.reconciler.InWindow(msg.Timestamp) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if err := m.sink.Ingest(ctx, msg); err != nil {
			m.logger.Error("live ingest failed",
				zap.String("chat", msg.ChatKey),
				zap.String("external_id", msg.ExternalID),
				zap.Error(err))
		}
	}()
}

func (m *Manager) handleState(state ConnectionState) {
	m.mu.Lock()
	m.state = state
	if state == StateConnected {
		m.qr = ""
	}
	m.mu.Unlock()

	m.logger.Info("whatsapp session state changed", zap.Stringer("state", state))

	if state == StateConnected {
		metrics.WhatsAppConnected.Set(1)
		if m.reconciler != nil {
			// The connected event can fire before Connect has stored the
			// session handle, so wait for it instead of capturing it here.
			go m.runBackfill()
		}
	} else {
		metrics.WhatsAppConnected.Set(0)
	}
	if state == StateLoggedOut {
		m.logger.Warn("whatsapp session logged out, re-pairing required")
	}
}

func (m *Manager) runBackfill() {
	for i := 0; i < 40; i++ {
		if sess := m.Session(); sess != nil {
			m.reconciler.Run(context.Background(), sess)
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	m.logger.Warn("backfill skipped, session handle never became available")
}

func (m *Manager) handleQR(code string) {
	m.mu.Lock()
	m.qr = code
	m.mu.Unlock()
	m.logger.Info("whatsapp pairing code issued")
}
