package llm

import "fmt"

// Message represents a chat message in the completions API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body for POST /chat/completions.
type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// chatResponse is the JSON returned by POST /chat/completions.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// embeddingRequest is the JSON body for POST /embeddings.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the JSON returned by POST /embeddings.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// transcriptionResponse is the JSON returned by POST /audio/transcriptions.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// CompletionError is returned when the chat completion call fails.
// A failed completion aborts the current turn without mutating session state.
type CompletionError struct {
	Status int
	Body   string
}

func (e *CompletionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion failed (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("completion failed (HTTP %d): %s", e.Status, e.Body)
}

// TranscriptionError is returned when speech-to-text fails, including the
// local empty/corrupt audio check before any network call is made.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription failed: %s", e.Reason)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
