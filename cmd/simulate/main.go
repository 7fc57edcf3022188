// Command simulate runs a scripted clinic day against the in-memory store:
// normal allocations, a paid-priority bump, an emergency overflow, a
// cancellation with waitlist promotion, a delay report and a slot
// redistribution, printing each outcome.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/lock"
	"github.com/opdesk/token-engine/internal/token"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "simulate").Logger()
	gofakeit.Seed(time.Now().UnixNano())

	ctx := context.Background()
	store := token.NewMemStore()
	locker := lock.NewLocal()
	allocator := token.NewAllocator(store, locker, log)
	delays := token.NewDelayHandler(store, locker, log)

	doctor := seedDoctor(ctx, store, 3, 2)
	fmt.Printf("== clinic day for %s (%s), 3 slots of capacity 2 ==\n\n", doctor.Name, doctor.Specialization)

	firstSlot := doctor.SlotIDs[0]

	// Fill the first slot with walk-ins.
	for i := 0; i < 2; i++ {
		out := must(allocator.Allocate(ctx, token.AllocateRequest{
			PatientName:     gofakeit.Name(),
			Category:        token.CategoryWalkIn,
			DoctorID:        doctor.ID,
			PreferredSlotID: firstSlot,
		}))
		report("walk-in", out)
	}

	// A paid-priority patient bumps the most recent walk-in.
	paid := must(allocator.Allocate(ctx, token.AllocateRequest{
		PatientName:     gofakeit.Name(),
		Category:        token.CategoryPaidPriority,
		DoctorID:        doctor.ID,
		PreferredSlotID: firstSlot,
	}))
	report("paid priority", paid)

	// An emergency overflows the same slot rather than queueing.
	emergency := must(allocator.AllocateEmergency(ctx, token.EmergencyRequest{
		PatientName: gofakeit.Name(),
		DoctorID:    doctor.ID,
		Severity:    "critical",
	}))
	report("emergency", emergency)

	// Cancelling the paid token promotes the bumped walk-in back in.
	cancelled, err := allocator.Cancel(ctx, paid.Token.ID)
	exitOn(err, log)
	fmt.Printf("[cancel]        %s\n", cancelled.Message)

	// Doctor runs 20 minutes late from the second slot onward.
	impact, err := delays.HandleDoctorDelay(ctx, doctor.ID, 20, doctor.SlotIDs[1])
	exitOn(err, log)
	fmt.Printf("[delay]         %d affected tokens, overflow flagged: %v\n", impact.AffectedTokens, impact.OverflowFlagged)
	for _, s := range impact.Suggestions {
		fmt.Printf("                - %s\n", s)
	}

	// The first slot fails; everyone in it is moved first-fit.
	result, err := delays.RedistributePatientsFromSlot(ctx, firstSlot)
	exitOn(err, log)
	fmt.Printf("[redistribute]  %d moved, %d failed, slot closed\n", result.Redistributed, result.Failed)
	for _, d := range result.Details {
		fmt.Printf("                - %s\n", d)
	}

	overview, err := allocator.Overview(ctx)
	exitOn(err, log)
	fmt.Println("\n== end of day ==")
	for status, n := range overview.TokensByStatus {
		fmt.Printf("  %-12s %d\n", status, n)
	}
}

func seedDoctor(ctx context.Context, store token.Store, slots, capacity int) *token.Doctor {
	doctor := &token.Doctor{
		ID:             uuid.NewString(),
		Name:           "Dr. " + gofakeit.Name(),
		Specialization: "General Practice",
		CreatedAt:      time.Now(),
	}
	start := 9 * 60
	for i := 0; i < slots; i++ {
		slot := &token.TimeSlot{
			ID:          uuid.NewString(),
			DoctorID:    doctor.ID,
			StartMinute: start,
			EndMinute:   start + 30,
			MaxCapacity: capacity,
			Status:      token.SlotAvailable,
			CreatedAt:   time.Now(),
		}
		_ = store.SaveSlot(ctx, slot)
		doctor.SlotIDs = append(doctor.SlotIDs, slot.ID)
		start += 30
	}
	_ = store.SaveDoctor(ctx, doctor)
	return doctor
}

func report(label string, out *token.AllocationOutcome) {
	fmt.Printf("[%-13s] %s: %s\n", label, out.Token.PatientName, out.Message)
}

func must(out *token.AllocationOutcome, err error) *token.AllocationOutcome {
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocation failed: %v\n", err)
		os.Exit(1)
	}
	return out
}

func exitOn(err error, log zerolog.Logger) {
	if err != nil {
		log.Fatal().Err(err).Msg("simulation step failed")
	}
}
