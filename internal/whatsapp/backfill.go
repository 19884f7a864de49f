package whatsapp

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/pkg/logger"
	"github.com/zapdesk/zapdesk/pkg/metrics"
)

// IsCustomerEndpoint reports whether a chat key addresses an individual
// customer. Group and broadcast endpoints are outside the desk's scope.
func IsCustomerEndpoint(chatKey string) bool {
	if strings.HasSuffix(chatKey, "@g.us") {
		return false
	}
	if strings.Contains(chatKey, "broadcast") {
		return false
	}
	return chatKey != ""
}

// Reconciler replays the session's recent message cache through the intake
// sink after a connection is established. Replayed messages travel the same
// path as live ones; external-id dedup makes repeated runs converge on the
// same ledger.
type Reconciler struct {
	sink   Sink
	window time.Duration
	logger *logger.Logger
}

// NewReconciler builds a reconciler replaying messages newer than window.
func NewReconciler(sink Sink, window time.Duration, log *logger.Logger) *Reconciler {
	return &Reconciler{sink: sink, window: window, logger: log}
}

// InWindow reports whether a timestamp falls inside the replay window.
func (r *Reconciler) InWindow(ts time.Time) bool {
	return ts.After(time.Now().Add(-r.window))
}

// Run replays recent history from sess. A failure on one message is logged
// and does not stop the rest of the replay.
func (r *Reconciler) Run(ctx context.Context, sess Session) {
	metrics.BackfillRuns.Inc()

	msgs := sess.Recent(r.window)
	replayed := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		if !IsCustomerEndpoint(msg.ChatKey) {
			continue
		}
		msg.FromHistory = true
		if err := r.sink.Ingest(ctx, msg); err != nil {
			r.logger.Warn("backfill ingest failed",
				zap.String("chat", msg.ChatKey),
				zap.String("external_id", msg.ExternalID),
				zap.Error(err))
			continue
		}
		replayed++
		metrics.BackfillMessages.Inc()
	}

	r.logger.Info("history backfill completed",
		zap.Int("cached", len(msgs)),
		zap.Int("replayed", replayed),
		zap.Duration("window", r.window))
}
