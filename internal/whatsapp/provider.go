// Package whatsapp binds the desk to the WhatsApp transport. The transport
// session itself (pairing, socket lifecycle, credential persistence) is
// delegated to whatsmeow; this package owns the process-wide session handle,
// translates provider events into the intake path and runs history backfill.
package whatsapp

import (
	"context"
	"errors"
	"time"
)

// Errors surfaced by the provider boundary.
var (
	// ErrNotConnected means there is no active session; sends must check
	// connectivity and fail fast with this instead of attempting the wire.
	ErrNotConnected = errors.New("whatsapp is not connected")
	// ErrTransientSend marks the known provider send race that is recovered
	// by one reconnect-and-retry before being surfaced.
	ErrTransientSend = errors.New("transient whatsapp send failure")
)

// InboundMessage is one message observed on the transport, from the live
// event stream or from history sync.
type InboundMessage struct {
	// ChatKey is the customer endpoint identifier (JID).
	ChatKey string
	// PushName is the display name the provider attached, if any.
	PushName string
	// FromMe marks messages sent from the paired device itself.
	FromMe bool
	Content string
	// MediaURL/MediaKind reference a downloaded attachment, if any.
	MediaURL  *string
	MediaKind *string
	// ExternalID is the provider-assigned message id (dedup key).
	ExternalID string
	// QuotedID is the external id of the replied-to message, if a reply.
	QuotedID *string
	// Timestamp is the provider-supplied send time.
	Timestamp time.Time
	// FromHistory marks messages replayed by backfill rather than live.
	FromHistory bool
}

// MediaOptions controls an outbound media send.
type MediaOptions struct {
	Caption     string
	AsVoiceNote bool
}

// ConnectionState describes the transport session lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	// StateLoggedOut is terminal: re-pairing is required.
	StateLoggedOut
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "disconnected"
	}
}

// Session is one active transport session. Sessions are replaced wholesale on
// reconnect, never partially repaired.
type Session interface {
	// Connected reports whether the socket is currently usable.
	Connected() bool
	// SendText delivers a text message and returns the provider message id.
	SendText(ctx context.Context, chatKey, text string, quotedID *string) (string, error)
	// SendMedia uploads and delivers a file and returns the provider message id.
	SendMedia(ctx context.Context, chatKey, filePath string, opts MediaOptions) (string, error)
	// MarkRead acknowledges customer messages on the provider side.
	MarkRead(ctx context.Context, chatKey string, externalIDs []string) error
	// Recent returns the cached recent messages across all known chats whose
	// timestamp falls within the window, for backfill.
	Recent(window time.Duration) []InboundMessage
	// Close tears the session down.
	Close()
}

// Sink consumes messages observed on the transport. The intake service
// implements it; the same path serves live events and backfill so repeated
// delivery converges by external-id dedup.
type Sink interface {
	Ingest(ctx context.Context, msg InboundMessage) error
}
