// mopchan/models/errors.go
package models

import (
	"errors"
	"fmt"
)

// The moderation gate distinguishes missing/invalid credentials from valid
// credentials with an insufficient role, so callers can answer 401 vs 403.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError marks bad user input. Always recoverable client-side,
// never a server fault.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NotFoundError marks an operation targeting a thread, post or ban that
// does not exist (or has been deleted).
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// BanError rejects a write from an actively banned IP. Carries the ban so
// callers can render the reason and expiry.
type BanError struct {
	Ban Ban
}

func (e BanError) Error() string {
	return "ip is banned: " + e.Ban.Reason
}

// AlreadyPinnedError rejects pinning a thread that already has an active pin.
type AlreadyPinnedError struct {
	ThreadID int64
}

func (e AlreadyPinnedError) Error() string {
	return fmt.Sprintf("thread %d is already pinned", e.ThreadID)
}
