package token

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/opdesk/token-engine/internal/lock"
)

// Delay tier boundaries in minutes.
const (
	minorDelayMax    = 15
	moderateDelayMax = 30
)

// mergeEfficiency is the capacity penalty applied when two slots are
// considered as one under time pressure.
const mergeEfficiency = 0.9

// DelayImpact reports the blast radius of a doctor running late. The
// suggestions are opaque diagnostics for staff, not protocol.
type DelayImpact struct {
	DoctorID        string   `json:"doctor_id"`
	DelayMinutes    int      `json:"delay_minutes"`
	AffectedSlotIDs []string `json:"affected_slot_ids"`
	AffectedTokens  int      `json:"affected_tokens"`
	OverflowFlagged bool     `json:"overflow_flagged"`
	MergedCapacity  int      `json:"merged_capacity,omitempty"`
	Suggestions     []string `json:"suggestions"`
}

type RedistributionResult struct {
	SlotID        string   `json:"slot_id"`
	Redistributed int      `json:"redistributed"`
	Failed        int      `json:"failed"`
	Details       []string `json:"details"`
}

type UnavailabilityResult struct {
	DoctorID       string   `json:"doctor_id"`
	Reason         string   `json:"reason"`
	ClosedSlotIDs  []string `json:"closed_slot_ids"`
	AffectedTokens int      `json:"affected_tokens"`
	Plan           []string `json:"plan"`
}

// DelayHandler reshapes capacity and placement when a doctor runs late or a
// slot fails. It shares the allocator's store and slot primitives.
type DelayHandler struct {
	store  Store
	slots  *SlotManager
	locker lock.Locker
	log    zerolog.Logger
}

func NewDelayHandler(store Store, locker lock.Locker, log zerolog.Logger) *DelayHandler {
	return &DelayHandler{
		store:  store,
		slots:  NewSlotManager(store),
		locker: locker,
		log:    log,
	}
}

// HandleDoctorDelay computes the impact of a delay starting at fromSlotID.
// The decision is purely on delayMinutes. The moderate tier computes a
// merged capacity for the first two affected slots and flags overflow, but
// moves nobody: token movement is only ever done by redistribution.
func (h *DelayHandler) HandleDoctorDelay(ctx context.Context, doctorID string, delayMinutes int, fromSlotID string) (*DelayImpact, error) {
	doctor, err := h.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	fromSlot, err := h.store.GetSlot(ctx, fromSlotID)
	if err != nil {
		return nil, err
	}
	if fromSlot.DoctorID != doctorID {
		return nil, ErrSlotMismatch
	}

	var affected []string
	seen := false
	for _, id := range doctor.SlotIDs {
		if id == fromSlotID {
			seen = true
		}
		if seen {
			affected = append(affected, id)
		}
	}
	if !seen {
		return nil, ErrSlotMismatch
	}

	impact := &DelayImpact{
		DoctorID:        doctorID,
		DelayMinutes:    delayMinutes,
		AffectedSlotIDs: affected,
	}

	slots := make([]*TimeSlot, 0, len(affected))
	for _, id := range affected {
		slot, err := h.store.GetSlot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", id, err)
		}
		slots = append(slots, slot)
		impact.AffectedTokens += len(slot.Allocated) + len(slot.Waitlist)
	}

	switch {
	case delayMinutes <= minorDelayMax:
		impact.Suggestions = append(impact.Suggestions,
			fmt.Sprintf("delay of %d minutes is absorbable within existing slots, no action needed", delayMinutes))

	case delayMinutes <= moderateDelayMax:
		if len(slots) >= 2 {
			a, b := slots[0], slots[1]
			merged := int(float64(a.MaxCapacity+b.MaxCapacity) * mergeEfficiency)
			combined := a.CurrentLoad + b.CurrentLoad
			impact.MergedCapacity = merged
			impact.OverflowFlagged = combined > merged
			impact.Suggestions = append(impact.Suggestions,
				fmt.Sprintf("merge slots %s and %s into a combined capacity of %d", a.ID, b.ID, merged))
			if impact.OverflowFlagged {
				impact.Suggestions = append(impact.Suggestions,
					fmt.Sprintf("combined load %d exceeds merged capacity %d, consider redistributing", combined, merged))
			}
		} else {
			impact.Suggestions = append(impact.Suggestions,
				"only one slot affected, compress its schedule to absorb the delay")
		}

	default:
		impact.Suggestions = append(impact.Suggestions,
			fmt.Sprintf("delay of %d minutes is severe, extend consultation hours or add an extra slot", delayMinutes))
	}

	h.logEvent(ctx, EventDelayReported, map[string]any{
		"doctor":   doctorID,
		"delay":    delayMinutes,
		"affected": len(affected),
	})
	h.log.Info().
		Str("doctor_id", doctorID).
		Int("delay_minutes", delayMinutes).
		Int("affected_tokens", impact.AffectedTokens).
		Bool("overflow_flagged", impact.OverflowFlagged).
		Msg("doctor delay reported")
	return impact, nil
}

// RedistributePatientsFromSlot moves the slot's allocated and waitlisted
// tokens, in that order, to the doctor's other open slots first-fit, then
// force-closes the source even if some tokens could not be placed. Tokens
// keep the status they entered with: a waitlisted token lands on the target
// slot's waitlist, it is not promoted just because the target has room.
func (h *DelayHandler) RedistributePatientsFromSlot(ctx context.Context, slotID string) (*RedistributionResult, error) {
	source, err := h.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	doctor, err := h.store.GetDoctor(ctx, source.DoctorID)
	if err != nil {
		return nil, err
	}

	result := &RedistributionResult{SlotID: slotID}

	// All of the doctor's slots are locked up front, ascending, so two
	// redistributions racing over the same slots cannot deadlock.
	err = h.locker.WithLocks(ctx, doctor.SlotIDs, func(lockCtx context.Context) error {
		source, err := h.store.GetSlot(lockCtx, slotID)
		if err != nil {
			return err
		}

		toMove := append(append([]string(nil), source.Allocated...), source.Waitlist...)
		for _, tokenID := range toMove {
			tok, err := h.store.GetToken(lockCtx, tokenID)
			if err != nil {
				return fmt.Errorf("load token %s: %w", tokenID, err)
			}

			target, err := h.firstFit(lockCtx, doctor, slotID)
			if err != nil {
				return err
			}
			if target == nil {
				result.Failed++
				result.Details = append(result.Details,
					fmt.Sprintf("no capacity available for %s (%s)", tok.PatientName, tok.ID))
				continue
			}

			wasWaitlisted := tok.Status == StatusWaitlisted
			if wasWaitlisted {
				if err := h.slots.RemoveFromWaitlist(lockCtx, slotID, tok.ID); err != nil {
					return err
				}
				if _, err := h.slots.AddToWaitlist(lockCtx, target.ID, tok.ID); err != nil {
					return err
				}
			} else {
				if _, err := h.slots.RemoveToken(lockCtx, slotID, tok.ID); err != nil {
					return err
				}
				if _, err := h.slots.AddToken(lockCtx, target.ID, tok.ID); err != nil {
					return err
				}
			}
			tok.SlotID = target.ID
			if err := h.store.SaveToken(lockCtx, tok); err != nil {
				return fmt.Errorf("save token: %w", err)
			}

			result.Redistributed++
			result.Details = append(result.Details,
				fmt.Sprintf("moved %s to slot %s", tok.PatientName, target.ID))
			h.logEvent(lockCtx, EventTokenMoved, map[string]any{
				"token": tok.ID,
				"from":  slotID,
				"to":    target.ID,
			})
		}

		// Forced close regardless of failures. Tokens that could not be
		// placed keep their reference to this closed slot for manual
		// rebooking.
		if err := h.slots.CloseSlot(lockCtx, slotID); err != nil {
			return err
		}
		h.logEvent(lockCtx, EventSlotClosed, map[string]any{
			"slot":   slotID,
			"failed": result.Failed,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info().
		Str("slot_id", slotID).
		Int("redistributed", result.Redistributed).
		Int("failed", result.Failed).
		Msg("slot redistributed and closed")
	return result, nil
}

// firstFit returns the doctor's first open slot, in natural order, with
// spare capacity, skipping the excluded source slot. Unlike best-slot
// placement this is deliberately not load-balanced: during a failure the
// goal is to empty the source quickly, not evenly.
func (h *DelayHandler) firstFit(ctx context.Context, doctor *Doctor, excludeSlotID string) (*TimeSlot, error) {
	for _, id := range doctor.SlotIDs {
		if id == excludeSlotID {
			continue
		}
		slot, err := h.store.GetSlot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", id, err)
		}
		if slot.HasCapacity() {
			return slot, nil
		}
	}
	return nil, nil
}

// HandleDoctorUnavailable force-closes every slot the doctor owns and
// returns a remediation plan. No redistribution is attempted: with the
// doctor gone there is nowhere on their schedule to move patients to.
func (h *DelayHandler) HandleDoctorUnavailable(ctx context.Context, doctorID, reason string) (*UnavailabilityResult, error) {
	doctor, err := h.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	result := &UnavailabilityResult{
		DoctorID: doctorID,
		Reason:   reason,
	}

	err = h.locker.WithLocks(ctx, doctor.SlotIDs, func(lockCtx context.Context) error {
		for _, slotID := range doctor.SlotIDs {
			slot, err := h.store.GetSlot(lockCtx, slotID)
			if err != nil {
				return fmt.Errorf("load slot %s: %w", slotID, err)
			}
			result.AffectedTokens += len(slot.Allocated) + len(slot.Waitlist)
			if err := h.slots.CloseSlot(lockCtx, slotID); err != nil {
				return err
			}
			result.ClosedSlotIDs = append(result.ClosedSlotIDs, slotID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Plan = []string{
		fmt.Sprintf("reschedule affected patients of %s to the next working day", doctor.Name),
		"reassign urgent cases to another doctor of the same specialization",
		"flag remaining tokens for manual rebooking by front desk",
	}

	h.logEvent(ctx, EventDoctorUnavailable, map[string]any{
		"doctor":   doctorID,
		"reason":   reason,
		"affected": result.AffectedTokens,
	})
	h.log.Warn().
		Str("doctor_id", doctorID).
		Str("reason", reason).
		Int("affected_tokens", result.AffectedTokens).
		Msg("doctor unavailable, all slots closed")
	return result, nil
}

func (h *DelayHandler) logEvent(ctx context.Context, eventType string, payload map[string]any) {
	ev, err := marshalEvent(eventType, payload)
	if err != nil {
		h.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		return
	}
	if err := h.store.InsertEvent(ctx, ev); err != nil {
		h.log.Warn().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
