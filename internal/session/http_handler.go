package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Krimson/heart-rhythm-day/internal/audio"
	"github.com/Krimson/heart-rhythm-day/internal/models"
)

// DefaultAudioSeconds is the clip length when ?seconds is absent.
const DefaultAudioSeconds = 5

// HTTPHandler serves the session API.
type HTTPHandler struct {
	manager *Manager
}

func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

// RegisterRoutes mounts the API on router.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/category", h.SetCategory).Methods("PUT")
	api.HandleFunc("/{id}/frame.png", h.GetFrame).Methods("GET")
	api.HandleFunc("/{id}/trace", h.GetTrace).Methods("GET")
	api.HandleFunc("/{id}/audio.wav", h.GetAudio).Methods("GET")

	router.HandleFunc("/api/categories", h.ListCategories).Methods("GET")
	router.HandleFunc("/api/schedule", h.GetSchedule).Methods("GET")
}

// CreateSession starts a new monitor session
// @Summary Create a session
// @Description Starts a headless monitor session that ticks on the server frame clock
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Session parameters"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	desc, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		respondErr(w, "create session", err)
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{Session: desc})
}

// ListSessions lists the live sessions
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.ListSessions(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session descriptor
// @Summary Get a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	desc, bpm, err := h.manager.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, "get session", err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: desc, BPM: bpm})
}

// SetCategory binds a new category to a running session
// @Summary Change the category
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SetCategoryRequest true "New category"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/category [put]
func (h *HTTPHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	var req SetCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	desc, err := h.manager.SetCategory(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		respondErr(w, "set category", err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: desc})
}

// DeleteSession stops a session
// @Summary Destroy a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteSession(r.Context(), sessionID); err != nil {
		respondErr(w, "delete session", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session deleted successfully",
		"session_id": sessionID,
	})
}

// GetFrame renders the current trace
// @Summary Current frame
// @Tags Sessions
// @Produce png
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/frame.png [get]
func (h *HTTPHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.RenderPNG(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, "render frame", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[ERROR] Failed to write frame: %v", err)
	}
}

// GetTrace returns the rolling buffer
// @Summary Trace samples
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} TraceResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/trace [get]
func (h *HTTPHandler) GetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.manager.Trace(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, "get trace", err)
		return
	}
	respondJSON(w, http.StatusOK, trace)
}

// GetAudio renders the monitor tone
// @Summary Monitor tone
// @Tags Sessions
// @Produce audio/wav
// @Param id path string true "Session ID"
// @Param seconds query int false "Clip length in seconds" default(5)
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/audio.wav [get]
func (h *HTTPHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	seconds := getQueryInt(r, "seconds", DefaultAudioSeconds)

	data, err := h.manager.AudioWAV(mux.Vars(r)["id"], time.Duration(seconds)*time.Second)
	if err != nil {
		respondErr(w, "render audio", err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[ERROR] Failed to write audio: %v", err)
	}
}

// ListCategories returns the category table
// @Summary Categories
// @Tags Content
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/categories [get]
func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	entries := h.manager.Table().Entries()
	type category struct {
		models.CategoryInfo
		RateLabel string `json:"rate_label"`
	}
	out := make([]category, len(entries))
	for i, e := range entries {
		out[i] = category{CategoryInfo: e, RateLabel: e.RateLabel()}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"categories": out})
}

// GetSchedule returns the day used by the quiz
// @Summary Day schedule
// @Tags Content
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/schedule [get]
func (h *HTTPHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": h.manager.Schedule()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidCategory),
		errors.Is(err, audio.ErrInvalidDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] Failed to %s: %v", action, err)
		respondError(w, status, "Failed to "+action)
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

func getQueryInt(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
