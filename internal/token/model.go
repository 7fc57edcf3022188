package token

import "time"

type TokenStatus string

const (
	StatusPending    TokenStatus = "pending"
	StatusAllocated  TokenStatus = "allocated"
	StatusWaitlisted TokenStatus = "waitlisted"
	StatusCancelled  TokenStatus = "cancelled"
	StatusNoShow     TokenStatus = "no_show"
	StatusCompleted  TokenStatus = "completed"
)

// Terminal reports whether a token status admits no further transitions.
func (s TokenStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusNoShow || s == StatusCompleted
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotFull      SlotStatus = "full"
	SlotOverflow  SlotStatus = "overflow"
	SlotClosed    SlotStatus = "closed"
)

type Doctor struct {
	ID             string
	Name           string
	Specialization string
	SlotIDs        []string // provisioning order; defines the natural slot order
	CreatedAt      time.Time
}

// TimeSlot is one doctor's fixed time window. Start/End are minutes of day.
// Allocated holds token ids in admission order; Waitlist is kept sorted by
// the priority comparator.
type TimeSlot struct {
	ID          string
	DoctorID    string
	StartMinute int
	EndMinute   int
	MaxCapacity int
	CurrentLoad int
	Status      SlotStatus
	Allocated   []string
	Waitlist    []string
	CreatedAt   time.Time
}

// recomputeStatus derives slot status from load vs capacity. Closed is
// terminal and never recomputed away.
func (s *TimeSlot) recomputeStatus() {
	if s.Status == SlotClosed {
		return
	}
	switch {
	case s.CurrentLoad > s.MaxCapacity:
		s.Status = SlotOverflow
	case s.CurrentLoad == s.MaxCapacity:
		s.Status = SlotFull
	default:
		s.Status = SlotAvailable
	}
}

// HasCapacity reports whether the slot can seat one more token without
// overflowing. A closed slot never has capacity.
func (s *TimeSlot) HasCapacity() bool {
	return s.Status != SlotClosed && s.CurrentLoad < s.MaxCapacity
}

// Utilization returns current load as a percentage of capacity.
func (s *TimeSlot) Utilization() float64 {
	if s.MaxCapacity == 0 {
		return 0
	}
	return float64(s.CurrentLoad) / float64(s.MaxCapacity) * 100
}

type Token struct {
	ID          string
	PatientName string
	Category    Category
	Priority    int    // derived from Category at creation, fixed
	DoctorID    string
	SlotID      string // empty when not tied to a slot
	Status      TokenStatus
	Severity    string // emergency tokens only; reporting, never allocation
	BumpCount   int
	CreatedAt   time.Time
	AllocatedAt *time.Time
}
