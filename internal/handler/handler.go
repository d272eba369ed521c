package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/efeideo/drug-form/internal/auth"
	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/database"
	"github.com/efeideo/drug-form/internal/logger"
	"github.com/efeideo/drug-form/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	rdb      *database.Redis
	log      *logger.Logger
	cfg      *config.Config
	formSvc  *service.FormService
	tokenSvc *auth.TokenService
}

// New creates a new Handler instance. rdb is nil when sessions are kept in memory.
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config, formSvc *service.FormService, tokenSvc *auth.TokenService) *Handler {
	return &Handler{
		rdb:      rdb,
		log:      log,
		cfg:      cfg,
		formSvc:  formSvc,
		tokenSvc: tokenSvc,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func writeErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		resp["error"].(map[string]interface{})["details"] = details
	}
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		resp["error"].(map[string]interface{})["request_id"] = reqID
	}
	writeJSON(w, status, resp)
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
