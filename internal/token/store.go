package token

import (
	"context"
	"time"
)

const (
	EventTokenCreated      = "TOKEN_CREATED"
	EventTokenAllocated    = "TOKEN_ALLOCATED"
	EventTokenOverflow     = "TOKEN_OVERFLOW_ALLOCATED"
	EventTokenBumped       = "TOKEN_BUMPED"
	EventTokenWaitlisted   = "TOKEN_WAITLISTED"
	EventTokenPromoted     = "TOKEN_PROMOTED"
	EventTokenCancelled    = "TOKEN_CANCELLED"
	EventTokenNoShow       = "TOKEN_NO_SHOW"
	EventTokenCompleted    = "TOKEN_COMPLETED"
	EventTokenMoved        = "TOKEN_REDISTRIBUTED"
	EventSlotClosed        = "SLOT_CLOSED"
	EventDelayReported     = "DOCTOR_DELAY_REPORTED"
	EventDoctorUnavailable = "DOCTOR_UNAVAILABLE"
)

type EventLog struct {
	ID        int64
	EventType string
	TokenID   *string
	Payload   []byte
	CreatedAt time.Time
}

// TokenFilter narrows ListTokens. Zero values match everything.
type TokenFilter struct {
	Status   TokenStatus
	DoctorID string
}

// Store is the key-addressed state shared by every engine component. Reads
// return copies; a mutation is only visible after the corresponding Save.
// Implementations must return the package sentinel errors for unknown ids.
type Store interface {
	GetDoctor(ctx context.Context, id string) (*Doctor, error)
	SaveDoctor(ctx context.Context, d *Doctor) error
	ListDoctors(ctx context.Context) ([]*Doctor, error)

	GetSlot(ctx context.Context, id string) (*TimeSlot, error)
	SaveSlot(ctx context.Context, s *TimeSlot) error

	GetToken(ctx context.Context, id string) (*Token, error)
	SaveToken(ctx context.Context, t *Token) error
	ListTokens(ctx context.Context, f TokenFilter) ([]*Token, error)
	DeleteToken(ctx context.Context, id string) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
