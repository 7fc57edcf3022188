package token

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SlotManager owns all mutation of a single slot's allocated list and
// waitlist. Callers are responsible for holding the slot's lock around any
// sequence of these calls; the manager itself never locks.
type SlotManager struct {
	store Store
}

func NewSlotManager(store Store) *SlotManager {
	return &SlotManager{store: store}
}

// HasCapacity reports whether the slot can admit without overflow.
func (m *SlotManager) HasCapacity(ctx context.Context, slotID string) (bool, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return false, err
	}
	return slot.HasCapacity(), nil
}

// AddToken appends the token to the slot's allocated list and recomputes
// load and status. It performs no capacity check: the allocator decides when
// admission is authorized, including deliberate emergency overflow.
func (m *SlotManager) AddToken(ctx context.Context, slotID, tokenID string) (*TimeSlot, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	slot.Allocated = append(slot.Allocated, tokenID)
	slot.CurrentLoad = len(slot.Allocated)
	slot.recomputeStatus()
	if err := m.store.SaveSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("save slot: %w", err)
	}
	return slot, nil
}

// RemoveToken evicts the token from the allocated list if present. Absence
// is a no-op, not an error.
func (m *SlotManager) RemoveToken(ctx context.Context, slotID, tokenID string) (*TimeSlot, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	kept := slot.Allocated[:0]
	for _, id := range slot.Allocated {
		if id != tokenID {
			kept = append(kept, id)
		}
	}
	slot.Allocated = kept
	slot.CurrentLoad = len(slot.Allocated)
	slot.recomputeStatus()
	if err := m.store.SaveSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("save slot: %w", err)
	}
	return slot, nil
}

// AddToWaitlist appends the token and re-sorts the whole waitlist with the
// priority comparator. A full re-sort keeps the ordering rule auditable.
// Returns the token's resulting 1-based position.
func (m *SlotManager) AddToWaitlist(ctx context.Context, slotID, tokenID string) (int, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	slot.Waitlist = append(slot.Waitlist, tokenID)

	entries := make([]*Token, 0, len(slot.Waitlist))
	for _, id := range slot.Waitlist {
		t, err := m.store.GetToken(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("load waitlisted token %s: %w", id, err)
		}
		entries = append(entries, t)
	}
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })

	slot.Waitlist = slot.Waitlist[:0]
	position := 0
	for i, t := range entries {
		slot.Waitlist = append(slot.Waitlist, t.ID)
		if t.ID == tokenID {
			position = i + 1
		}
	}
	if err := m.store.SaveSlot(ctx, slot); err != nil {
		return 0, fmt.Errorf("save slot: %w", err)
	}
	return position, nil
}

// RemoveFromWaitlist drops the token from the waitlist if present,
// preserving the order of the rest.
func (m *SlotManager) RemoveFromWaitlist(ctx context.Context, slotID, tokenID string) error {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	kept := slot.Waitlist[:0]
	for _, id := range slot.Waitlist {
		if id != tokenID {
			kept = append(kept, id)
		}
	}
	slot.Waitlist = kept
	if err := m.store.SaveSlot(ctx, slot); err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

// PromoteFromWaitlist pops the waitlist head, admits it and marks it
// allocated with a fresh allocation timestamp. Returns nil when the
// waitlist is empty. This is the only path from waitlisted to allocated.
func (m *SlotManager) PromoteFromWaitlist(ctx context.Context, slotID string) (*Token, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if len(slot.Waitlist) == 0 {
		return nil, nil
	}
	head := slot.Waitlist[0]
	if err := m.RemoveFromWaitlist(ctx, slotID, head); err != nil {
		return nil, err
	}
	if _, err := m.AddToken(ctx, slotID, head); err != nil {
		return nil, err
	}

	tok, err := m.store.GetToken(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("load promoted token: %w", err)
	}
	now := time.Now()
	tok.Status = StatusAllocated
	tok.SlotID = slotID
	tok.AllocatedAt = &now
	if err := m.store.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("save promoted token: %w", err)
	}
	return tok, nil
}

// CloseSlot forces the slot into its terminal closed state. One-way: a
// closed slot never reopens and admits nothing further.
func (m *SlotManager) CloseSlot(ctx context.Context, slotID string) error {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	slot.Status = SlotClosed
	if err := m.store.SaveSlot(ctx, slot); err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

// FindBestAvailableSlot returns the doctor's non-closed slot with spare
// capacity carrying the lowest load, ties broken by the doctor's slot-list
// order. Returns nil when no slot has room.
func (m *SlotManager) FindBestAvailableSlot(ctx context.Context, doctorID string) (*TimeSlot, error) {
	doctor, err := m.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	var best *TimeSlot
	for _, slotID := range doctor.SlotIDs {
		slot, err := m.store.GetSlot(ctx, slotID)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", slotID, err)
		}
		if !slot.HasCapacity() {
			continue
		}
		if best == nil || slot.CurrentLoad < best.CurrentLoad {
			best = slot
		}
	}
	return best, nil
}

// fallbackOpenSlot is the target when every slot is full: the least-loaded
// non-closed slot in natural order, so a request can still resolve to a bump
// attempt or a waitlist position.
func (m *SlotManager) fallbackOpenSlot(ctx context.Context, doctor *Doctor) (*TimeSlot, error) {
	var best *TimeSlot
	for _, slotID := range doctor.SlotIDs {
		slot, err := m.store.GetSlot(ctx, slotID)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", slotID, err)
		}
		if slot.Status == SlotClosed {
			continue
		}
		if best == nil || slot.CurrentLoad < best.CurrentLoad {
			best = slot
		}
	}
	return best, nil
}
