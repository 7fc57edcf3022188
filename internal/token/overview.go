package token

import (
	"context"
	"fmt"
)

// SlotSummary is the read-only slot view exposed to the transport layer.
type SlotSummary struct {
	SlotID        string     `json:"slot_id"`
	DoctorID      string     `json:"doctor_id"`
	StartMinute   int        `json:"start_minute"`
	EndMinute     int        `json:"end_minute"`
	Status        SlotStatus `json:"status"`
	CurrentLoad   int        `json:"current_load"`
	MaxCapacity   int        `json:"max_capacity"`
	Utilization   float64    `json:"utilization_pct"`
	WaitlistCount int        `json:"waitlist_count"`
}

type DoctorUtilization struct {
	DoctorID       string  `json:"doctor_id"`
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	Slots          int     `json:"slots"`
	TotalCapacity  int     `json:"total_capacity"`
	TotalLoad      int     `json:"total_load"`
	Utilization    float64 `json:"utilization_pct"`
	Waitlisted     int     `json:"waitlisted"`
}

type SystemOverview struct {
	TokensByStatus map[TokenStatus]int `json:"tokens_by_status"`
	Doctors        []DoctorUtilization `json:"doctors"`
}

// Doctors lists all doctors in provisioning order.
func (a *Allocator) Doctors(ctx context.Context) ([]*Doctor, error) {
	return a.store.ListDoctors(ctx)
}

// DoctorSlots returns the doctor's slots with derived utilization.
func (a *Allocator) DoctorSlots(ctx context.Context, doctorID string) ([]*SlotSummary, error) {
	doctor, err := a.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	out := make([]*SlotSummary, 0, len(doctor.SlotIDs))
	for _, id := range doctor.SlotIDs {
		slot, err := a.store.GetSlot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", id, err)
		}
		out = append(out, summarize(slot))
	}
	return out, nil
}

// Overview aggregates token counts by status and per-doctor utilization.
func (a *Allocator) Overview(ctx context.Context) (*SystemOverview, error) {
	tokens, err := a.store.ListTokens(ctx, TokenFilter{})
	if err != nil {
		return nil, err
	}
	byStatus := make(map[TokenStatus]int)
	for _, t := range tokens {
		byStatus[t.Status]++
	}

	doctors, err := a.store.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	utils := make([]DoctorUtilization, 0, len(doctors))
	for _, d := range doctors {
		u := DoctorUtilization{
			DoctorID:       d.ID,
			Name:           d.Name,
			Specialization: d.Specialization,
			Slots:          len(d.SlotIDs),
		}
		for _, slotID := range d.SlotIDs {
			slot, err := a.store.GetSlot(ctx, slotID)
			if err != nil {
				return nil, fmt.Errorf("load slot %s: %w", slotID, err)
			}
			u.TotalCapacity += slot.MaxCapacity
			u.TotalLoad += slot.CurrentLoad
			u.Waitlisted += len(slot.Waitlist)
		}
		if u.TotalCapacity > 0 {
			u.Utilization = float64(u.TotalLoad) / float64(u.TotalCapacity) * 100
		}
		utils = append(utils, u)
	}

	return &SystemOverview{TokensByStatus: byStatus, Doctors: utils}, nil
}

func summarize(s *TimeSlot) *SlotSummary {
	return &SlotSummary{
		SlotID:        s.ID,
		DoctorID:      s.DoctorID,
		StartMinute:   s.StartMinute,
		EndMinute:     s.EndMinute,
		Status:        s.Status,
		CurrentLoad:   s.CurrentLoad,
		MaxCapacity:   s.MaxCapacity,
		Utilization:   s.Utilization(),
		WaitlistCount: len(s.Waitlist),
	}
}
