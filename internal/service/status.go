package service

import (
	"github.com/zapdesk/zapdesk/internal/model"
)

// LedgerEvent classifies a ledger append for the status machine.
type LedgerEvent int

const (
	// EventCustomerMessage is a new inbound message from the customer.
	EventCustomerMessage LedgerEvent = iota
	// EventAttendantMessage is a message or media sent by an attendant.
	EventAttendantMessage
	// EventDeviceEcho is a message sent from the paired phone outside the desk.
	EventDeviceEcho
	// EventInternalNote is an internal note.
	EventInternalNote
)

// StatusMachine is the single place conversation lifecycle transitions are
// decided. Every ledger write path consults it instead of mutating status
// directly.
type StatusMachine struct{}

// Next returns the status a conversation moves to after a ledger event, and
// whether the event changes status at all.
//
// A customer message always resets to waiting, including reopening a closed
// conversation. An attendant message always moves to in_progress, even when
// another attendant was previously assigned (any agent may take over). Device
// echoes are neutral so that using the phone itself does not flap status, and
// internal notes never touch lifecycle.
func (StatusMachine) Next(current model.ConversationStatus, ev LedgerEvent) (model.ConversationStatus, bool) {
	switch ev {
	case EventCustomerMessage:
		return model.StatusWaiting, true
	case EventAttendantMessage:
		return model.StatusInProgress, true
	case EventDeviceEcho, EventInternalNote:
		return current, false
	}
	return current, false
}

// ValidOverride reports whether a status value is accepted for the explicit
// agent override. The override itself is total: any state to any state.
func (StatusMachine) ValidOverride(status model.ConversationStatus) bool {
	return status.Valid()
}
