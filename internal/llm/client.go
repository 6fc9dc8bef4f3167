package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultTimeout       = 60 * time.Second
	transcriptionTimeout = 120 * time.Second
	maxRetries           = 3
	initialBackoff       = 500 * time.Millisecond
)

// Client communicates with the hosted completions/embeddings/transcription API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Close releases idle connections held by the client. Safe to call multiple times.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// ChatCompletion sends a chat completion request and returns the assistant's
// reply text. HTTP 429 responses are retried with exponential backoff.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		text, err := c.doChat(ctx, body)
		if err == nil {
			return text, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func isRateLimit(err error) bool {
	ce, ok := err.(*CompletionError)
	return ok && ce.Status == http.StatusTooManyRequests
}

func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &CompletionError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &CompletionError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &CompletionError{Status: resp.StatusCode, Body: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(result.Choices) == 0 {
		return "", &CompletionError{Status: resp.StatusCode, Body: "empty choices array"}
	}
	return result.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for the given text using the specified model.
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: unexpected status %d", resp.StatusCode)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embed: empty data array")
	}
	return result.Data[0].Embedding, nil
}

// Transcribe uploads audio bytes to the transcription endpoint and returns
// the recognized text. Empty audio fails locally with a TranscriptionError
// before any network call.
func (c *Client) Transcribe(ctx context.Context, model string, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", &TranscriptionError{Reason: "empty audio"}
	}
	if filename == "" {
		filename = "recording.wav"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", &TranscriptionError{Reason: "building upload", Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return "", &TranscriptionError{Reason: "building upload", Err: err}
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", &TranscriptionError{Reason: "building upload", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &TranscriptionError{Reason: "building upload", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", &TranscriptionError{Reason: "creating request", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TranscriptionError{Reason: "executing request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &TranscriptionError{Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &TranscriptionError{Reason: "decoding response", Err: err}
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", &TranscriptionError{Reason: "no speech recognized"}
	}
	return text, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
