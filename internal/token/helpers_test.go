package token

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/lock"
)

// newTestEngine wires the engine against the in-memory store.
func newTestEngine(t *testing.T) (*Allocator, *DelayHandler, *MemStore) {
	t.Helper()
	store := NewMemStore()
	locker := lock.NewLocal()
	return NewAllocator(store, locker, zerolog.Nop()),
		NewDelayHandler(store, locker, zerolog.Nop()),
		store
}

// seedDoctor provisions a doctor with one slot per capacity value, in order.
func seedDoctor(t *testing.T, store Store, capacities ...int) *Doctor {
	t.Helper()
	ctx := context.Background()
	doctor := &Doctor{
		ID:        "doc-1",
		Name:      "Dr. Asha Rao",
		CreatedAt: time.Now(),
	}
	start := 9 * 60
	for i, capacity := range capacities {
		slot := &TimeSlot{
			ID:          fmt.Sprintf("slot-%d", i+1),
			DoctorID:    doctor.ID,
			StartMinute: start,
			EndMinute:   start + 30,
			MaxCapacity: capacity,
			Status:      SlotAvailable,
			CreatedAt:   time.Now(),
		}
		if err := store.SaveSlot(ctx, slot); err != nil {
			t.Fatalf("save slot: %v", err)
		}
		doctor.SlotIDs = append(doctor.SlotIDs, slot.ID)
		start += 30
	}
	if err := store.SaveDoctor(ctx, doctor); err != nil {
		t.Fatalf("save doctor: %v", err)
	}
	return doctor
}

func allocate(t *testing.T, a *Allocator, name string, cat Category, doctorID, slotID string) *AllocationOutcome {
	t.Helper()
	out, err := a.Allocate(context.Background(), AllocateRequest{
		PatientName:     name,
		Category:        cat,
		DoctorID:        doctorID,
		PreferredSlotID: slotID,
	})
	if err != nil {
		t.Fatalf("allocate %s: %v", name, err)
	}
	return out
}

func getSlot(t *testing.T, store Store, id string) *TimeSlot {
	t.Helper()
	slot, err := store.GetSlot(context.Background(), id)
	if err != nil {
		t.Fatalf("get slot %s: %v", id, err)
	}
	return slot
}

func getToken(t *testing.T, store Store, id string) *Token {
	t.Helper()
	tok, err := store.GetToken(context.Background(), id)
	if err != nil {
		t.Fatalf("get token %s: %v", id, err)
	}
	return tok
}

// checkSlotInvariants asserts load bookkeeping and list disjointness.
func checkSlotInvariants(t *testing.T, slot *TimeSlot) {
	t.Helper()
	if slot.CurrentLoad != len(slot.Allocated) {
		t.Fatalf("slot %s: load %d != allocated %d", slot.ID, slot.CurrentLoad, len(slot.Allocated))
	}
	for _, w := range slot.Waitlist {
		for _, a := range slot.Allocated {
			if w == a {
				t.Fatalf("slot %s: token %s in both allocated and waitlist", slot.ID, w)
			}
		}
	}
}
