package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opdesk/token-engine/internal/lock"
	"github.com/opdesk/token-engine/internal/token"
)

var validSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
}

func createTokenHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if len(req.PatientName) < 2 {
			writeError(w, http.StatusBadRequest, "invalid_patient_name", "patient_name must be at least 2 characters")
			return
		}
		category, err := token.ParseCategory(req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_category", err.Error())
			return
		}
		if req.DoctorID == "" {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id is required")
			return
		}

		outcome, err := alloc.Allocate(r.Context(), token.AllocateRequest{
			PatientName:     req.PatientName,
			Category:        category,
			DoctorID:        req.DoctorID,
			PreferredSlotID: req.PreferredSlotID,
		})
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, allocationResponse(outcome))
	}
}

func createEmergencyTokenHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmergencyTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if len(req.PatientName) < 2 {
			writeError(w, http.StatusBadRequest, "invalid_patient_name", "patient_name must be at least 2 characters")
			return
		}
		if !validSeverities[req.Severity] {
			writeError(w, http.StatusBadRequest, "invalid_severity", "severity must be critical, high or medium")
			return
		}

		outcome, err := alloc.AllocateEmergency(r.Context(), token.EmergencyRequest{
			PatientName: req.PatientName,
			DoctorID:    req.DoctorID,
			Severity:    req.Severity,
		})
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, allocationResponse(outcome))
	}
}

func listTokensHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := token.TokenFilter{
			Status:   token.TokenStatus(r.URL.Query().Get("status")),
			DoctorID: r.URL.Query().Get("doctor_id"),
		}
		tokens, err := alloc.ListTokens(r.Context(), filter)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		out := make([]*TokenResponse, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, toTokenResponse(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelTokenHandler(alloc *token.Allocator) http.HandlerFunc {
	return outcomeHandler(alloc.Cancel)
}

func noShowTokenHandler(alloc *token.Allocator) http.HandlerFunc {
	return outcomeHandler(alloc.MarkNoShow)
}

func completeTokenHandler(alloc *token.Allocator) http.HandlerFunc {
	return outcomeHandler(alloc.Complete)
}

func outcomeHandler(op func(ctx context.Context, tokenID string) (*token.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		out, err := op(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OutcomeResponse{
			Success:  out.Success,
			Token:    toTokenResponse(out.Token),
			Message:  out.Message,
			Promoted: toTokenResponse(out.Promoted),
		})
	}
}

func listDoctorsHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := alloc.Doctors(r.Context())
		if err != nil {
			handleEngineError(w, err)
			return
		}
		out := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			out = append(out, DoctorResponse{
				ID:             d.ID,
				Name:           d.Name,
				Specialization: d.Specialization,
				SlotCount:      len(d.SlotIDs),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func doctorSlotsHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := alloc.DoctorSlots(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func overviewHandler(alloc *token.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := alloc.Overview(r.Context())
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func doctorDelayHandler(delays *token.DelayHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DelayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.DelayMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_delay", "delay_minutes must be positive")
			return
		}
		impact, err := delays.HandleDoctorDelay(r.Context(), chi.URLParam(r, "id"), req.DelayMinutes, req.FromSlotID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, impact)
	}
}

func redistributeSlotHandler(delays *token.DelayHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := delays.RedistributePatientsFromSlot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func doctorUnavailableHandler(delays *token.DelayHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UnavailableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		result, err := delays.HandleDoctorUnavailable(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func allocationResponse(out *token.AllocationOutcome) AllocationResponse {
	return AllocationResponse{
		Success:  out.Success,
		Token:    toTokenResponse(out.Token),
		Message:  out.Message,
		SlotInfo: out.SlotInfo,
	}
}

func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, token.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, token.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, token.ErrSlotMismatch):
		writeError(w, http.StatusUnprocessableEntity, "slot_mismatch", err.Error())
	case errors.Is(err, token.ErrSlotClosed):
		writeError(w, http.StatusUnprocessableEntity, "slot_closed", err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		writeError(w, http.StatusConflict, "slot_busy", "slot is being mutated by another request, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
