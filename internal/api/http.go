// Package api exposes the conversational pipeline over HTTP and MCP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emothrive/emothrive/internal/ingest"
	"github.com/emothrive/emothrive/internal/llm"
	"github.com/emothrive/emothrive/internal/pipeline"
	"github.com/emothrive/emothrive/internal/session"
	"github.com/emothrive/emothrive/internal/therapy"
)

const maxRequestBodySize = 10 << 20 // 10MB, audio payloads are base64 encoded

// TurnProcessor runs one conversational turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req pipeline.TurnRequest) (pipeline.TurnResult, error)
	Sessions() *session.Registry
}

// Reindexer rebuilds and reports on the knowledge index.
type Reindexer interface {
	Reindex(ctx context.Context, dir string) (ingest.Stats, error)
	Stats() (ingest.Stats, error)
}

// Deps holds handler dependencies.
type Deps struct {
	Pipeline     TurnProcessor
	Ingestor     Reindexer
	KnowledgeDir string
}

// NewHandler returns the HTTP API. Admin routes (reindex, session deletion)
// are gated by bearer auth when adminToken is non-empty.
func NewHandler(deps Deps, adminToken string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/chat", handleChat(deps))
	r.Get("/sessions/{id}", handleGetSession(deps))

	admin := func(h http.HandlerFunc) http.Handler {
		if adminToken == "" {
			return h
		}
		return requireBearer(adminToken, h)
	}
	r.Method(http.MethodPost, "/reindex", admin(handleReindex(deps)))
	r.Method(http.MethodDelete, "/sessions/{id}", admin(handleDeleteSession(deps)))

	return r
}

// requireBearer guards a handler behind an Authorization: Bearer token check.
// The comparison is constant-time.
func requireBearer(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Ingestor.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading index stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"documents": stats.Documents,
			"chunks":    stats.Chunks,
		})
	}
}

// chatRequest is the POST /chat payload. Audio is base64-encoded; providing
// it marks the turn as voice input.
type chatRequest struct {
	SessionID         string `json:"session_id,omitempty"`
	Message           string `json:"message,omitempty"`
	Audio             string `json:"audio,omitempty"`
	AudioFilename     string `json:"audio_filename,omitempty"`
	IsVoiceInput      bool   `json:"is_voice_input,omitempty"`
	EnableVoiceOutput bool   `json:"enable_voice_output,omitempty"`
	TherapyType       string `json:"therapy_type,omitempty"`
}

type chatResponse struct {
	Success   bool         `json:"success"`
	SessionID string       `json:"session_id"`
	Response  turnResponse `json:"response"`
}

type turnResponse struct {
	Text        string `json:"text"`
	Audio       string `json:"audio,omitempty"`
	TherapyType string `json:"therapy_type"`
	Warning     string `json:"warning,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		// A voice turn with no payload still reaches the pipeline so the
		// client gets a transcription error instead of a generic 400.
		if req.Message == "" && req.Audio == "" && !req.IsVoiceInput {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message or audio is required")
			return
		}

		var audio []byte
		if req.Audio != "" {
			decoded, err := base64.StdEncoding.DecodeString(req.Audio)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "audio must be base64 encoded: %v", err)
				return
			}
			audio = decoded
		}

		result, err := deps.Pipeline.ProcessTurn(r.Context(), pipeline.TurnRequest{
			SessionID:         req.SessionID,
			Message:           req.Message,
			Audio:             audio,
			AudioFilename:     req.AudioFilename,
			IsVoiceInput:      req.IsVoiceInput,
			EnableVoiceOutput: req.EnableVoiceOutput,
			TherapyType:       therapy.Type(req.TherapyType),
		})
		if err != nil {
			writeTurnError(w, err)
			return
		}

		resp := chatResponse{
			Success:   true,
			SessionID: result.SessionID,
			Response: turnResponse{
				Text:        result.Text,
				TherapyType: string(result.TherapyType),
			},
		}
		if len(result.Audio) > 0 {
			resp.Response.Audio = base64.StdEncoding.EncodeToString(result.Audio)
		}
		if result.SynthesisErr != nil {
			resp.Response.Warning = fmt.Sprintf("voice synthesis failed: %v", result.SynthesisErr)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeTurnError maps pipeline failures onto HTTP statuses.
func writeTurnError(w http.ResponseWriter, err error) {
	var trErr *llm.TranscriptionError
	var compErr *llm.CompletionError
	switch {
	case errors.Is(err, session.ErrBusy):
		httpError(w, http.StatusConflict, "session_busy", "%v", err)
	case errors.As(err, &trErr):
		httpError(w, http.StatusUnprocessableEntity, "transcription_error", "%v", err)
	case errors.As(err, &compErr):
		httpError(w, http.StatusBadGateway, "completion_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Ingestor.Reindex(r.Context(), deps.KnowledgeDir)
		if err != nil {
			var ingErr *ingest.IngestError
			if errors.As(err, &ingErr) {
				httpError(w, http.StatusUnprocessableEntity, "ingest_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "reindexing: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"documents": stats.Documents,
			"chunks":    stats.Chunks,
		})
	}
}

type sessionView struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	Turns      int               `json:"turns"`
	TypeCounts map[string]int    `json:"therapy_types_used"`
	Messages   []session.Message `json:"messages"`
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess := deps.Pipeline.Sessions().Get(id)
		if sess == nil {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}

		counts := make(map[string]int)
		for typ, n := range sess.TypeCounts() {
			counts[string(typ)] = n
		}
		writeJSON(w, http.StatusOK, sessionView{
			ID:         sess.ID,
			StartedAt:  sess.StartedAt,
			Turns:      sess.Turns(),
			TypeCounts: counts,
			Messages:   sess.Messages(),
		})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if deps.Pipeline.Sessions().Get(id) == nil {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}
		deps.Pipeline.Sessions().Remove(id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
