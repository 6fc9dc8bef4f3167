package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emothrive/emothrive/internal/ingest"
	"github.com/emothrive/emothrive/internal/llm"
	"github.com/emothrive/emothrive/internal/pipeline"
	"github.com/emothrive/emothrive/internal/session"
	"github.com/emothrive/emothrive/internal/therapy"
	"github.com/emothrive/emothrive/internal/voice"
)

// --- fakes ---

type fakePipeline struct {
	registry *session.Registry
	lastReq  pipeline.TurnRequest
	result   pipeline.TurnResult
	err      error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		registry: session.NewRegistry(),
		result: pipeline.TurnResult{
			SessionID:   "sess-1",
			Text:        "I'm here with you.",
			TherapyType: therapy.General,
		},
	}
}

func (f *fakePipeline) ProcessTurn(_ context.Context, req pipeline.TurnRequest) (pipeline.TurnResult, error) {
	f.lastReq = req
	if f.err != nil {
		return pipeline.TurnResult{}, f.err
	}
	return f.result, nil
}

func (f *fakePipeline) Sessions() *session.Registry {
	return f.registry
}

type fakeReindexer struct {
	stats ingest.Stats
	err   error
	dir   string
}

func (f *fakeReindexer) Reindex(_ context.Context, dir string) (ingest.Stats, error) {
	f.dir = dir
	return f.stats, f.err
}

func (f *fakeReindexer) Stats() (ingest.Stats, error) {
	return f.stats, f.err
}

func newTestServer(p *fakePipeline, ing *fakeReindexer, token string) *httptest.Server {
	h := NewHandler(Deps{Pipeline: p, Ingestor: ing, KnowledgeDir: "/knowledge"}, token)
	return httptest.NewServer(h)
}

// --- tests ---

func TestHealth(t *testing.T) {
	srv := newTestServer(newFakePipeline(), &fakeReindexer{stats: ingest.Stats{Documents: 3, Chunks: 42}}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["documents"].(float64) != 3 {
		t.Errorf("body = %v", body)
	}
}

func TestChat(t *testing.T) {
	p := newFakePipeline()
	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	payload := `{"session_id":"sess-1","message":"I feel overwhelmed"}`
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !body.Success || body.SessionID != "sess-1" {
		t.Errorf("body = %+v", body)
	}
	if body.Response.Text != "I'm here with you." {
		t.Errorf("text = %q", body.Response.Text)
	}
	if p.lastReq.Message != "I feel overwhelmed" {
		t.Errorf("pipeline got message %q", p.lastReq.Message)
	}
}

func TestChat_AudioDecoded(t *testing.T) {
	p := newFakePipeline()
	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	audio := base64.StdEncoding.EncodeToString([]byte("wav bytes"))
	payload := `{"audio":"` + audio + `","audio_filename":"turn.wav"}`
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()

	if string(p.lastReq.Audio) != "wav bytes" {
		t.Errorf("audio = %q", p.lastReq.Audio)
	}
	if p.lastReq.AudioFilename != "turn.wav" {
		t.Errorf("filename = %q", p.lastReq.AudioFilename)
	}
}

func TestChat_VoiceInputFlagForwarded(t *testing.T) {
	p := newFakePipeline()
	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	payload := `{"message":"I already transcribed this","is_voice_input":true}`
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !p.lastReq.IsVoiceInput {
		t.Error("is_voice_input not forwarded to pipeline")
	}
}

func TestChat_VoiceInputEmptyAudio(t *testing.T) {
	p := newFakePipeline()
	p.err = &llm.TranscriptionError{Reason: "empty audio"}
	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	// A voice turn with no message or audio must reach the pipeline and map
	// to 422, not get rejected as a bad request.
	payload := `{"is_voice_input":true}`
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if !p.lastReq.IsVoiceInput {
		t.Error("pipeline never saw the voice turn")
	}
}

func TestChat_SynthesisWarning(t *testing.T) {
	p := newFakePipeline()
	p.result.SynthesisErr = &voice.SynthesisError{Status: 503, Reason: "service unavailable"}
	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	payload := `{"message":"I feel overwhelmed","enable_voice_output":true}`
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Response.Text == "" {
		t.Error("text missing despite synthesis-only failure")
	}
	if !strings.Contains(body.Response.Warning, "voice synthesis failed") {
		t.Errorf("warning = %q", body.Response.Warning)
	}
}

func TestChat_MissingInput(t *testing.T) {
	srv := newTestServer(newFakePipeline(), &fakeReindexer{}, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"busy", session.ErrBusy, http.StatusConflict},
		{"transcription", &llm.TranscriptionError{Reason: "no speech recognized"}, http.StatusUnprocessableEntity},
		{"completion", &llm.CompletionError{Status: 500, Body: "upstream"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePipeline()
			p.err = tt.err
			srv := newTestServer(p, &fakeReindexer{}, "")
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"hello there friend"}`))
			if err != nil {
				t.Fatalf("POST /chat: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestReindex(t *testing.T) {
	ing := &fakeReindexer{stats: ingest.Stats{Documents: 2, Chunks: 20}}
	srv := newTestServer(newFakePipeline(), ing, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/reindex", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /reindex: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ing.dir != "/knowledge" {
		t.Errorf("reindexed dir = %q", ing.dir)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["chunks"].(float64) != 20 {
		t.Errorf("body = %v", body)
	}
}

func TestReindex_IngestError(t *testing.T) {
	ing := &fakeReindexer{err: &ingest.IngestError{Dir: "/knowledge", Reason: "no PDF files found"}}
	srv := newTestServer(newFakePipeline(), ing, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/reindex", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /reindex: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestReindex_AuthRequired(t *testing.T) {
	srv := newTestServer(newFakePipeline(), &fakeReindexer{}, "secret-token")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/reindex", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /reindex: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/reindex", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized POST /reindex: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status with token = %d, want 200", resp2.StatusCode)
	}
}

func TestGetSession(t *testing.T) {
	p := newFakePipeline()
	sess := p.registry.GetOrCreate("")
	sess.CommitTurn("I feel sad", "That sounds heavy.", therapy.Depression)

	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions/" + sess.ID)
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var view sessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if view.ID != sess.ID || view.Turns != 1 {
		t.Errorf("view = %+v", view)
	}
	if view.TypeCounts["depression"] != 1 {
		t.Errorf("type counts = %v", view.TypeCounts)
	}
	if len(view.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(view.Messages))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	srv := newTestServer(newFakePipeline(), &fakeReindexer{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions/unknown")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	p := newFakePipeline()
	sess := p.registry.GetOrCreate("")

	srv := newTestServer(p, &fakeReindexer{}, "")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+sess.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /sessions: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if p.registry.Get(sess.ID) != nil {
		t.Error("session still present after delete")
	}
}
