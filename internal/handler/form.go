package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/efeideo/drug-form/internal/middleware"
	"github.com/efeideo/drug-form/internal/service"
	"github.com/efeideo/drug-form/internal/wizard"
)

// --- Form Handlers ---

// StartSessionResponse is returned when a new session is started
type StartSessionResponse struct {
	Token     string               `json:"token"`
	TokenType string               `json:"tokenType"`
	ExpiresIn int                  `json:"expiresIn"`
	Session   *service.SessionView `json:"session"`
}

// RecordAnswerRequest is the body of PUT /sessions/current/answers
type RecordAnswerRequest struct {
	Step  int             `json:"step" validate:"gte=1"`
	Field string          `json:"field" validate:"required,max=64"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// StartSession creates a session and returns its token
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.formSvc.Start(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start session")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start session")
		return
	}

	tok, err := h.tokenSvc.Issue(view.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue session token")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start session")
		return
	}

	http.SetCookie(w, h.tokenSvc.Cookie(h.cfg.Session.CookieName, tok, r.TLS != nil))

	writeJSON(w, http.StatusCreated, StartSessionResponse{
		Token:     tok.Token,
		TokenType: tok.TokenType,
		ExpiresIn: tok.ExpiresIn,
		Session:   view,
	})
}

// GetCurrentSession returns the view of the current step
func (h *Handler) GetCurrentSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.formSvc.Current(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetStep returns the static definition of a step
func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Step index must be an integer")
		return
	}

	step, err := h.formSvc.Step(index)
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// Acknowledge confirms the HCP disclaimer
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	view, err := h.formSvc.Acknowledge(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Next moves to the following step
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, wizard.Next)
}

// Previous moves to the preceding step
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, wizard.Previous)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, dir wizard.Direction) {
	view, err := h.formSvc.Advance(r.Context(), middleware.GetSessionID(r.Context()), dir)
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RecordAnswer validates and stores one answer
func (h *Handler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req RecordAnswerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	view, err := h.formSvc.Record(r.Context(), middleware.GetSessionID(r.Context()), req.Step, req.Field, req.Value)
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Submit sends the completed form
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.formSvc.Submit(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		h.handleFormError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CloseSession discards the current session
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.formSvc.Close(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		h.handleFormError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFormError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *wizard.InvalidFieldValueError
	var missing *wizard.MissingFieldsError

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "Session not found or expired")
	case errors.Is(err, service.ErrStepNotFound):
		writeError(w, http.StatusNotFound, "step_not_found", "Step not found")
	case errors.Is(err, service.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session_busy", err.Error())
	case errors.As(err, &invalid):
		writeErrorWithDetails(w, r, http.StatusBadRequest, "invalid_field_value", invalid.Error(), map[string]interface{}{
			"field":  invalid.Field,
			"reason": invalid.Reason,
		})
	case errors.As(err, &missing):
		writeErrorWithDetails(w, r, http.StatusUnprocessableEntity, "missing_fields", missing.Error(), map[string]interface{}{
			"fields": missing.Labels,
		})
	case errors.Is(err, wizard.ErrTooSoon):
		w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.Submission.SpamWindow/time.Second)))
		writeError(w, http.StatusTooManyRequests, "too_soon", err.Error())
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("form request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
