// Package api provides HTTP handlers and middleware for the Perspective
// service.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/scrypster/perspective/internal/config"
	"github.com/scrypster/perspective/internal/engine"
	"github.com/scrypster/perspective/pkg/types"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handlers contains the REST handlers for the perspective API.
type Handlers struct {
	engine *engine.Engine
	config *config.Config
	model  string
}

// NewHandlers creates a new Handlers instance. model is the generation model
// name surfaced in /api/health.
func NewHandlers(eng *engine.Engine, cfg *config.Config, model string) *Handlers {
	return &Handlers{engine: eng, config: cfg, model: model}
}

// GeneratePerspective handles POST /api/perspective - produce the line for
// one new-tab render. This endpoint never fails once the body parses: the
// engine degrades internally to static fallback lines.
func (h *Handlers) GeneratePerspective(w http.ResponseWriter, r *http.Request) {
	// Optional numeric signals use -1 for "absent"; seed them before decoding
	// so a body that omits them does not read as battery 0% or a detected
	// rock-bottom baseline.
	rc := types.RouterContext{BatteryLevel: -1, EmotionalBaseline: -1}
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if rc.Language == "" {
		rc.Language = "en"
	}

	snippet := h.engine.Generate(r.Context(), rc)
	respondJSON(w, http.StatusOK, snippet)
}

// ReportEngagement handles POST /api/engagement - apply one fire-and-forget
// engagement report.
func (h *Handlers) ReportEngagement(w http.ResponseWriter, r *http.Request) {
	var report types.EngagementReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if report.DurationMs < 0 {
		respondError(w, http.StatusBadRequest, "duration_ms must be non-negative", nil)
		return
	}

	if err := h.engine.ReportEngagement(r.Context(), report); err != nil {
		// The report is advisory; a storage hiccup is not the client's problem.
		log.Printf("WARNING: failed to apply engagement report: %v", err)
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// GetAffinity handles GET /api/affinity - return the caller's current track
// affinity table.
func (h *Handlers) GetAffinity(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    userID,
		"affinities": h.engine.Affinities(r.Context(), userID),
	})
}

// GetHistory handles GET /api/history - return the caller's retained display
// history, most-recent-first.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	entries := h.engine.History(r.Context(), userID)
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"entries": entries,
	})
}

// GetHealth handles GET /api/health.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"model":  h.model,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more to do than log.
		log.Printf("WARNING: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{"error": err.Error()}
	}
	respondJSON(w, statusCode, errResp)
}
