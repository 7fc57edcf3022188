package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/lock"
)

// SlotInfo is the slot snapshot reported alongside allocation outcomes.
type SlotInfo struct {
	SlotID      string `json:"slot_id"`
	CurrentLoad int    `json:"current_load"`
	MaxCapacity int    `json:"max_capacity"`
}

// AllocationOutcome is the result of one allocation request. Success false
// with a non-nil Token means the patient was waitlisted, not rejected.
type AllocationOutcome struct {
	Success  bool      `json:"success"`
	Token    *Token    `json:"token"`
	Message  string    `json:"message"`
	SlotInfo *SlotInfo `json:"slot_info,omitempty"`
}

// Outcome is the result of a lifecycle transition (cancel, no-show,
// complete). Promoted carries the waitlist head seated by a freed slot.
type Outcome struct {
	Success  bool   `json:"success"`
	Token    *Token `json:"token"`
	Message  string `json:"message"`
	Promoted *Token `json:"promoted,omitempty"`
}

type AllocateRequest struct {
	PatientName     string
	Category        Category
	DoctorID        string
	PreferredSlotID string
}

type EmergencyRequest struct {
	PatientName string
	DoctorID    string
	Severity    string // critical, high, medium; recorded for reporting only
}

// Allocator orchestrates a request end to end: direct admission, emergency
// overflow, priority bumping or waitlisting, plus the cancellation, no-show
// and completion transitions. All slot mutation happens inside the slot's
// lock so a bump, a promotion and a redistribution never interleave.
type Allocator struct {
	store  Store
	slots  *SlotManager
	locker lock.Locker
	log    zerolog.Logger
}

func NewAllocator(store Store, locker lock.Locker, log zerolog.Logger) *Allocator {
	return &Allocator{
		store:  store,
		slots:  NewSlotManager(store),
		locker: locker,
		log:    log,
	}
}

// SlotManager exposes the slot primitives sharing this allocator's store.
func (a *Allocator) SlotManager() *SlotManager {
	return a.slots
}

// Allocate creates a token for the patient and resolves it to a seat, an
// overflow seat, a bump or a waitlist position.
func (a *Allocator) Allocate(ctx context.Context, req AllocateRequest) (*AllocationOutcome, error) {
	doctor, err := a.store.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	tok := a.newToken(req.PatientName, req.Category, req.DoctorID, "")
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	a.logEvent(ctx, tok.ID, EventTokenCreated, map[string]any{
		"patient":  tok.PatientName,
		"category": tok.Category,
		"doctor":   tok.DoctorID,
	})

	var target *TimeSlot
	if req.PreferredSlotID != "" {
		target, err = a.store.GetSlot(ctx, req.PreferredSlotID)
		if err != nil {
			return nil, err
		}
		if target.DoctorID != req.DoctorID {
			return nil, ErrSlotMismatch
		}
	} else {
		target, err = a.slots.FindBestAvailableSlot(ctx, req.DoctorID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			target, err = a.slots.fallbackOpenSlot(ctx, doctor)
			if err != nil {
				return nil, err
			}
		}
	}

	if target == nil {
		// Doctor-wide dead end: no usable slot anywhere. The token stays
		// waitlisted with no slot reference rather than being dropped.
		tok.Status = StatusWaitlisted
		if err := a.store.SaveToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
		a.logEvent(ctx, tok.ID, EventTokenWaitlisted, map[string]any{"slot": nil})
		return &AllocationOutcome{
			Success: false,
			Token:   tok,
			Message: fmt.Sprintf("no slots available for doctor %s", doctor.Name),
		}, nil
	}

	var outcome *AllocationOutcome
	err = a.locker.WithLock(ctx, target.ID, func(lockCtx context.Context) error {
		outcome, err = a.resolveInSlot(lockCtx, tok, target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// AllocateEmergency admits an emergency patient, overflowing the best slot
// when no capacity remains. Emergencies are never queued or bumped in.
func (a *Allocator) AllocateEmergency(ctx context.Context, req EmergencyRequest) (*AllocationOutcome, error) {
	outcome, err := a.Allocate(ctx, AllocateRequest{
		PatientName: req.PatientName,
		Category:    CategoryEmergency,
		DoctorID:    req.DoctorID,
	})
	if err != nil {
		return nil, err
	}
	if outcome.Token != nil && req.Severity != "" {
		tok, err := a.store.GetToken(ctx, outcome.Token.ID)
		if err != nil {
			return nil, err
		}
		tok.Severity = req.Severity
		if err := a.store.SaveToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
		outcome.Token = tok
	}
	return outcome, nil
}

// resolveInSlot applies the slot-level decision ladder. Must run inside the
// slot's lock: the slot is re-read so a seat taken since targeting is seen,
// including a close that raced in between targeting and lock acquisition.
func (a *Allocator) resolveInSlot(ctx context.Context, tok *Token, slotID string) (*AllocationOutcome, error) {
	slot, err := a.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	// A closed slot admits nothing, not even an emergency overflow, and its
	// waitlist is never promoted from. Reject before the ladder.
	if slot.Status == SlotClosed {
		return nil, ErrSlotClosed
	}

	if slot.HasCapacity() {
		updated, err := a.seat(ctx, tok, slotID)
		if err != nil {
			return nil, err
		}
		a.logEvent(ctx, tok.ID, EventTokenAllocated, map[string]any{"slot": slotID})
		return &AllocationOutcome{
			Success:  true,
			Token:    tok,
			Message:  fmt.Sprintf("allocated to slot %s", slotID),
			SlotInfo: snapshot(updated),
		}, nil
	}

	if tok.Category == CategoryEmergency {
		updated, err := a.seat(ctx, tok, slotID)
		if err != nil {
			return nil, err
		}
		a.logEvent(ctx, tok.ID, EventTokenOverflow, map[string]any{
			"slot": slotID,
			"load": updated.CurrentLoad,
		})
		return &AllocationOutcome{
			Success:  true,
			Token:    tok,
			Message:  fmt.Sprintf("emergency admitted to slot %s over capacity, slot is in overflow", slotID),
			SlotInfo: snapshot(updated),
		}, nil
	}

	if tok.Category == CategoryPaidPriority {
		bumped, err := a.tryBump(ctx, tok, slot)
		if err != nil {
			return nil, err
		}
		if bumped != nil {
			updated, err := a.seat(ctx, tok, slotID)
			if err != nil {
				return nil, err
			}
			a.logEvent(ctx, tok.ID, EventTokenAllocated, map[string]any{
				"slot":   slotID,
				"bumped": bumped.ID,
			})
			return &AllocationOutcome{
				Success:  true,
				Token:    tok,
				Message:  fmt.Sprintf("allocated to slot %s, bumped %s to waitlist", slotID, bumped.PatientName),
				SlotInfo: snapshot(updated),
			}, nil
		}
	}

	position, err := a.slots.AddToWaitlist(ctx, slotID, tok.ID)
	if err != nil {
		return nil, err
	}
	tok.Status = StatusWaitlisted
	tok.SlotID = slotID
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	a.logEvent(ctx, tok.ID, EventTokenWaitlisted, map[string]any{
		"slot":     slotID,
		"position": position,
	})
	return &AllocationOutcome{
		Success: false,
		Token:   tok,
		Message: fmt.Sprintf("slot %s is full, added to waitlist at position %d", slotID, position),
	}, nil
}

// tryBump evicts the most recently admitted bumpable token to the slot's
// own waitlist. Returns the bumped token, or nil when nobody qualifies. The
// LIFO pick shields early arrivals from repeated displacement.
func (a *Allocator) tryBump(ctx context.Context, tok *Token, slot *TimeSlot) (*Token, error) {
	var victim *Token
	for _, id := range slot.Allocated {
		cand, err := a.store.GetToken(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load allocated token %s: %w", id, err)
		}
		if CanBump(tok.Category, cand.Category) && CanBeBumped(cand.BumpCount) {
			victim = cand
		}
	}
	if victim == nil {
		return nil, nil
	}

	if _, err := a.slots.RemoveToken(ctx, slot.ID, victim.ID); err != nil {
		return nil, err
	}
	victim.BumpCount++
	victim.Status = StatusWaitlisted
	victim.AllocatedAt = nil
	if err := a.store.SaveToken(ctx, victim); err != nil {
		return nil, fmt.Errorf("save bumped token: %w", err)
	}
	// The bumped patient keeps claim on the same slot via its waitlist.
	if _, err := a.slots.AddToWaitlist(ctx, slot.ID, victim.ID); err != nil {
		return nil, err
	}
	a.logEvent(ctx, victim.ID, EventTokenBumped, map[string]any{
		"slot":       slot.ID,
		"bumped_by":  tok.ID,
		"bump_count": victim.BumpCount,
	})
	return victim, nil
}

// Cancel releases the token's seat or waitlist entry and promotes at most
// one waitlisted token into the freed seat. Cancelling an already cancelled
// token is a reported no-op with no slot mutation.
func (a *Allocator) Cancel(ctx context.Context, tokenID string) (*Outcome, error) {
	tok, err := a.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok.Status == StatusCancelled {
		return &Outcome{
			Success: false,
			Token:   tok,
			Message: "token already cancelled",
		}, nil
	}

	promoted, err := a.release(ctx, tok, StatusCancelled, EventTokenCancelled)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Success:  true,
		Token:    tok,
		Message:  fmt.Sprintf("token for %s cancelled", tok.PatientName),
		Promoted: promoted,
	}
	if promoted != nil {
		out.Message += fmt.Sprintf(", promoted %s from waitlist", promoted.PatientName)
	}
	return out, nil
}

// MarkNoShow records a no-show and frees the seat like a cancellation.
// There is deliberately no already-no-show guard: a repeated call re-runs
// the freeing side effect, mirroring the reference behavior.
func (a *Allocator) MarkNoShow(ctx context.Context, tokenID string) (*Outcome, error) {
	tok, err := a.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	promoted, err := a.release(ctx, tok, StatusNoShow, EventTokenNoShow)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Success:  true,
		Token:    tok,
		Message:  fmt.Sprintf("token for %s marked as no-show", tok.PatientName),
		Promoted: promoted,
	}
	if promoted != nil {
		out.Message += fmt.Sprintf(", promoted %s from waitlist", promoted.PatientName)
	}
	return out, nil
}

// Complete marks a consultation done. The seat is not freed and nobody is
// promoted: a completed visit has already consumed its capacity for the day.
func (a *Allocator) Complete(ctx context.Context, tokenID string) (*Outcome, error) {
	tok, err := a.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	tok.Status = StatusCompleted
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	a.logEvent(ctx, tok.ID, EventTokenCompleted, map[string]any{})
	return &Outcome{
		Success: true,
		Token:   tok,
		Message: fmt.Sprintf("consultation for %s completed", tok.PatientName),
	}, nil
}

// Purge physically deletes a token, scrubbing any slot references first.
// Not exercised by normal flows.
func (a *Allocator) Purge(ctx context.Context, tokenID string) error {
	tok, err := a.store.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if tok.SlotID != "" {
		err = a.locker.WithLock(ctx, tok.SlotID, func(lockCtx context.Context) error {
			if _, err := a.slots.RemoveToken(lockCtx, tok.SlotID, tok.ID); err != nil {
				return err
			}
			return a.slots.RemoveFromWaitlist(lockCtx, tok.SlotID, tok.ID)
		})
		if err != nil {
			return err
		}
	}
	return a.store.DeleteToken(ctx, tokenID)
}

// release applies a terminal status and frees whatever the token held: a
// seat triggers one waitlist promotion, a waitlist entry is just removed.
func (a *Allocator) release(ctx context.Context, tok *Token, status TokenStatus, event string) (*Token, error) {
	tok.Status = status
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	a.logEvent(ctx, tok.ID, event, map[string]any{"slot": tok.SlotID})

	if tok.SlotID == "" {
		return nil, nil
	}

	var promoted *Token
	err := a.locker.WithLock(ctx, tok.SlotID, func(lockCtx context.Context) error {
		slot, err := a.store.GetSlot(lockCtx, tok.SlotID)
		if err != nil {
			return err
		}
		if contains(slot.Waitlist, tok.ID) {
			return a.slots.RemoveFromWaitlist(lockCtx, tok.SlotID, tok.ID)
		}
		if _, err := a.slots.RemoveToken(lockCtx, tok.SlotID, tok.ID); err != nil {
			return err
		}
		promoted, err = a.slots.PromoteFromWaitlist(lockCtx, tok.SlotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if promoted != nil {
		a.logEvent(ctx, promoted.ID, EventTokenPromoted, map[string]any{"slot": tok.SlotID})
	}
	return promoted, nil
}

// seat admits the token into the slot and marks it allocated.
func (a *Allocator) seat(ctx context.Context, tok *Token, slotID string) (*TimeSlot, error) {
	updated, err := a.slots.AddToken(ctx, slotID, tok.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tok.Status = StatusAllocated
	tok.SlotID = slotID
	tok.AllocatedAt = &now
	if err := a.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return updated, nil
}

func (a *Allocator) newToken(name string, category Category, doctorID, slotID string) *Token {
	return &Token{
		ID:          uuid.NewString(),
		PatientName: name,
		Category:    category,
		Priority:    PriorityScore(category),
		DoctorID:    doctorID,
		SlotID:      slotID,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// ListTokens returns tokens matching the filter.
func (a *Allocator) ListTokens(ctx context.Context, f TokenFilter) ([]*Token, error) {
	return a.store.ListTokens(ctx, f)
}

// GetToken returns one token by id.
func (a *Allocator) GetToken(ctx context.Context, id string) (*Token, error) {
	return a.store.GetToken(ctx, id)
}

func (a *Allocator) logEvent(ctx context.Context, tokenID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}
	id := tokenID
	ev := EventLog{
		EventType: eventType,
		TokenID:   &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if err := a.store.InsertEvent(ctx, ev); err != nil {
		a.log.Warn().Err(err).Str("event", eventType).Str("token_id", tokenID).Msg("insert event log")
	}
}

func snapshot(s *TimeSlot) *SlotInfo {
	return &SlotInfo{SlotID: s.ID, CurrentLoad: s.CurrentLoad, MaxCapacity: s.MaxCapacity}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
