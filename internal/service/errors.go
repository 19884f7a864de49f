// Package service implements the business core of the support desk:
// message intake and dedup, the conversation status machine, listing
// projections, the agent send path and account management.
package service

import (
	"errors"
)

// Error taxonomy surfaced to the HTTP layer. Duplicate message deliveries are
// not part of it: insert-on-conflict-do-nothing is the expected outcome for
// re-delivered messages and is absorbed inside the store, never raised.
var (
	// ErrValidation marks a malformed request, rejected before touching storage.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing conversation, attendant or account.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentity marks a natural-key conflict on creation
	// (attendant name, account username).
	ErrDuplicateIdentity = errors.New("identity already exists")
	// ErrUnauthorized marks a failed credential check.
	ErrUnauthorized = errors.New("invalid credentials")
	// ErrForbidden marks an operator acting outside its own attendant.
	ErrForbidden = errors.New("operation not allowed for this account")
)
