package token

import "errors"

var (
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrSlotNotFound   = errors.New("slot not found")
	ErrTokenNotFound  = errors.New("token not found")

	// ErrSlotMismatch is returned when an operation names a slot that does
	// not belong to the doctor it was addressed to.
	ErrSlotMismatch = errors.New("slot does not belong to doctor")

	// ErrSlotClosed is returned when an admission targets a closed slot.
	// Closed is terminal: a closed slot seats nobody and queues nobody.
	ErrSlotClosed = errors.New("slot is closed")
)
