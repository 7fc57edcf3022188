package api

import (
	"time"

	"github.com/opdesk/token-engine/internal/token"
)

type CreateTokenRequest struct {
	PatientName     string `json:"patient_name"`
	Category        string `json:"category"`
	DoctorID        string `json:"doctor_id"`
	PreferredSlotID string `json:"preferred_slot_id,omitempty"`
}

type EmergencyTokenRequest struct {
	PatientName string `json:"patient_name"`
	DoctorID    string `json:"doctor_id"`
	Severity    string `json:"severity"`
}

type DelayRequest struct {
	DelayMinutes int    `json:"delay_minutes"`
	FromSlotID   string `json:"from_slot_id"`
}

type UnavailableRequest struct {
	Reason string `json:"reason"`
}

type TokenResponse struct {
	ID          string     `json:"id"`
	PatientName string     `json:"patient_name"`
	Category    string     `json:"category"`
	Priority    int        `json:"priority"`
	DoctorID    string     `json:"doctor_id"`
	SlotID      string     `json:"slot_id,omitempty"`
	Status      string     `json:"status"`
	Severity    string     `json:"severity,omitempty"`
	BumpCount   int        `json:"bump_count"`
	CreatedAt   time.Time  `json:"created_at"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
}

type AllocationResponse struct {
	Success  bool            `json:"success"`
	Token    *TokenResponse  `json:"token"`
	Message  string          `json:"message"`
	SlotInfo *token.SlotInfo `json:"slot_info,omitempty"`
}

type OutcomeResponse struct {
	Success  bool           `json:"success"`
	Token    *TokenResponse `json:"token"`
	Message  string         `json:"message"`
	Promoted *TokenResponse `json:"promoted,omitempty"`
}

type DoctorResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	SlotCount      int    `json:"slot_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toTokenResponse(t *token.Token) *TokenResponse {
	if t == nil {
		return nil
	}
	return &TokenResponse{
		ID:          t.ID,
		PatientName: t.PatientName,
		Category:    string(t.Category),
		Priority:    t.Priority,
		DoctorID:    t.DoctorID,
		SlotID:      t.SlotID,
		Status:      string(t.Status),
		Severity:    t.Severity,
		BumpCount:   t.BumpCount,
		CreatedAt:   t.CreatedAt,
		AllocatedAt: t.AllocatedAt,
	}
}
