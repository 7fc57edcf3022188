package token

import (
	"context"
	"strings"
	"testing"
)

func TestDelayUnknownIDs(t *testing.T) {
	_, delays, store := newTestEngine(t)
	seedDoctor(t, store, 2, 2)
	ctx := context.Background()

	if _, err := delays.HandleDoctorDelay(ctx, "ghost", 10, "slot-1"); err != ErrDoctorNotFound {
		t.Fatalf("unknown doctor: %v", err)
	}
	if _, err := delays.HandleDoctorDelay(ctx, "doc-1", 10, "ghost"); err != ErrSlotNotFound {
		t.Fatalf("unknown slot: %v", err)
	}

	// A slot owned by a different doctor is a mismatch, not a hit.
	other := &Doctor{ID: "doc-2", Name: "Dr. Other"}
	if err := store.SaveDoctor(ctx, other); err != nil {
		t.Fatalf("save doctor: %v", err)
	}
	if _, err := delays.HandleDoctorDelay(ctx, "doc-2", 10, "slot-1"); err != ErrSlotMismatch {
		t.Fatalf("mismatched slot: %v", err)
	}
}

func TestDelayMinorTierIsAdvisory(t *testing.T) {
	alloc, delays, store := newTestEngine(t)
	seedDoctor(t, store, 2, 2, 2)
	ctx := context.Background()

	allocate(t, alloc, "Walk One", CategoryWalkIn, "doc-1", "slot-2")
	allocate(t, alloc, "Walk Two", CategoryWalkIn, "doc-1", "slot-3")

	impact, err := delays.HandleDoctorDelay(ctx, "doc-1", 15, "slot-2")
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if len(impact.AffectedSlotIDs) != 2 {
		t.Fatalf("affected %v, want slot-2 onward", impact.AffectedSlotIDs)
	}
	if impact.AffectedTokens != 2 {
		t.Fatalf("affected tokens %d, want 2", impact.AffectedTokens)
	}
	if impact.OverflowFlagged || impact.MergedCapacity != 0 {
		t.Fatalf("minor tier must not compute a merge: %+v", impact)
	}
	if len(impact.Suggestions) == 0 || !strings.Contains(impact.Suggestions[0], "absorbable") {
		t.Fatalf("suggestions %v", impact.Suggestions)
	}
}

func TestDelayModerateTierMergesFirstTwo(t *testing.T) {
	alloc, delays, store := newTestEngine(t)
	seedDoctor(t, store, 3, 3, 3)
	ctx := context.Background()

	// Load the first two affected slots to 3 + 3 = 6 > floor(6 * 0.9) = 5.
	for i := 0; i < 3; i++ {
		allocate(t, alloc, "Walk A", CategoryWalkIn, "doc-1", "slot-1")
		allocate(t, alloc, "Walk B", CategoryWalkIn, "doc-1", "slot-2")
	}

	impact, err := delays.HandleDoctorDelay(ctx, "doc-1", 20, "slot-1")
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if impact.MergedCapacity != 5 {
		t.Fatalf("merged capacity %d, want floor((3+3)*0.9)=5", impact.MergedCapacity)
	}
	if !impact.OverflowFlagged {
		t.Fatal("combined load 6 over merged capacity 5 must flag overflow")
	}

	// The merge is advisory only: nobody moved, nothing closed.
	for _, id := range []string{"slot-1", "slot-2"} {
		slot := getSlot(t, store, id)
		if slot.CurrentLoad != 3 || slot.Status == SlotClosed {
			t.Fatalf("advisory merge mutated slot %s: %+v", id, slot)
		}
	}
}

func TestDelaySevereTierIsAdvisory(t *testing.T) {
	_, delays, store := newTestEngine(t)
	seedDoctor(t, store, 2, 2)

	impact, err := delays.HandleDoctorDelay(context.Background(), "doc-1", 45, "slot-1")
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if impact.OverflowFlagged || impact.MergedCapacity != 0 {
		t.Fatalf("severe tier must not merge: %+v", impact)
	}
	if len(impact.Suggestions) == 0 || !strings.Contains(impact.Suggestions[0], "severe") {
		t.Fatalf("suggestions %v", impact.Suggestions)
	}
}

// Scenario: three seated tokens, one sibling with two free seats: exactly
// two move, one fails, and the source closes regardless.
func TestRedistributePartialFailureStillCloses(t *testing.T) {
	alloc, delays, store := newTestEngine(t)
	seedDoctor(t, store, 3, 2)
	ctx := context.Background()

	a := allocate(t, alloc, "Walk A", CategoryWalkIn, "doc-1", "slot-1")
	b := allocate(t, alloc, "Walk B", CategoryWalkIn, "doc-1", "slot-1")
	c := allocate(t, alloc, "Walk C", CategoryWalkIn, "doc-1", "slot-1")

	result, err := delays.RedistributePatientsFromSlot(ctx, "slot-1")
	if err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	if result.Redistributed != 2 || result.Failed != 1 {
		t.Fatalf("moved %d failed %d, want 2/1", result.Redistributed, result.Failed)
	}
	if len(result.Details) != 3 {
		t.Fatalf("details %v, want one line per token", result.Details)
	}

	source := getSlot(t, store, "slot-1")
	if source.Status != SlotClosed {
		t.Fatalf("source status %s, want closed despite the failure", source.Status)
	}
	target := getSlot(t, store, "slot-2")
	if target.CurrentLoad != 2 || target.Status != SlotFull {
		t.Fatalf("target %+v", target)
	}
	checkSlotInvariants(t, target)

	// First-fit in order: A and B moved, C left dangling on the closed slot.
	for _, moved := range []string{a.Token.ID, b.Token.ID} {
		tok := getToken(t, store, moved)
		if tok.SlotID != "slot-2" || tok.Status != StatusAllocated {
			t.Fatalf("moved token %+v", tok)
		}
	}
	failed := getToken(t, store, c.Token.ID)
	if failed.SlotID != "slot-1" || failed.Status != StatusAllocated {
		t.Fatalf("failed token %+v must keep its stale reference", failed)
	}
}

// A waitlisted token is moved onto the target's waitlist, not promoted,
// even though the target has room.
func TestRedistributeKeepsWaitlistStatus(t *testing.T) {
	alloc, delays, store := newTestEngine(t)
	seedDoctor(t, store, 1, 2)
	ctx := context.Background()

	seated := allocate(t, alloc, "Walk A", CategoryWalkIn, "doc-1", "slot-1")
	queued := allocate(t, alloc, "Walk B", CategoryWalkIn, "doc-1", "slot-1")

	result, err := delays.RedistributePatientsFromSlot(ctx, "slot-1")
	if err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	if result.Redistributed != 2 || result.Failed != 0 {
		t.Fatalf("result %+v", result)
	}

	movedSeated := getToken(t, store, seated.Token.ID)
	if movedSeated.SlotID != "slot-2" || movedSeated.Status != StatusAllocated {
		t.Fatalf("seated token %+v", movedSeated)
	}
	movedQueued := getToken(t, store, queued.Token.ID)
	if movedQueued.SlotID != "slot-2" || movedQueued.Status != StatusWaitlisted {
		t.Fatalf("waitlisted token %+v must stay waitlisted", movedQueued)
	}
	target := getSlot(t, store, "slot-2")
	if len(target.Waitlist) != 1 || target.Waitlist[0] != queued.Token.ID {
		t.Fatalf("target waitlist %v", target.Waitlist)
	}
	checkSlotInvariants(t, target)
}

func TestRedistributeUnknownSlot(t *testing.T) {
	_, delays, _ := newTestEngine(t)
	if _, err := delays.RedistributePatientsFromSlot(context.Background(), "ghost"); err != ErrSlotNotFound {
		t.Fatalf("want ErrSlotNotFound, got %v", err)
	}
}

func TestDoctorUnavailableClosesEverything(t *testing.T) {
	alloc, delays, store := newTestEngine(t)
	seedDoctor(t, store, 2, 2)
	ctx := context.Background()

	allocate(t, alloc, "Walk A", CategoryWalkIn, "doc-1", "slot-1")
	allocate(t, alloc, "Walk B", CategoryWalkIn, "doc-1", "slot-2")
	allocate(t, alloc, "Walk C", CategoryWalkIn, "doc-1", "slot-2")
	queued := allocate(t, alloc, "Walk D", CategoryWalkIn, "doc-1", "slot-2")
	if queued.Token.Status != StatusWaitlisted {
		t.Fatalf("precondition: %s", queued.Token.Status)
	}

	result, err := delays.HandleDoctorUnavailable(ctx, "doc-1", "medical emergency")
	if err != nil {
		t.Fatalf("unavailable: %v", err)
	}
	if result.AffectedTokens != 4 {
		t.Fatalf("affected %d, want 4 (3 seated + 1 waitlisted)", result.AffectedTokens)
	}
	if len(result.ClosedSlotIDs) != 2 {
		t.Fatalf("closed %v", result.ClosedSlotIDs)
	}
	if len(result.Plan) == 0 {
		t.Fatal("remediation plan must not be empty")
	}
	for _, id := range []string{"slot-1", "slot-2"} {
		if slot := getSlot(t, store, id); slot.Status != SlotClosed {
			t.Fatalf("slot %s status %s", id, slot.Status)
		}
	}

	// No redistribution was attempted: tokens keep their references.
	tok := getToken(t, store, queued.Token.ID)
	if tok.SlotID != "slot-2" || tok.Status != StatusWaitlisted {
		t.Fatalf("token %+v", tok)
	}

	if _, err := delays.HandleDoctorUnavailable(ctx, "ghost", "x"); err != ErrDoctorNotFound {
		t.Fatalf("unknown doctor: %v", err)
	}
}
