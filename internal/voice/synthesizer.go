// Package voice wraps the hosted text-to-speech service. Speech-to-text goes
// through the llm client's transcription endpoint; this package covers the
// outbound direction only.
package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Style selects the emotional expression used for synthesized speech.
type Style string

const (
	StyleEmpathetic Style = "empathetic"
	StyleFriendly   Style = "friendly"
	StyleCheerful   Style = "cheerful"
	StyleGentle     Style = "gentle"
	StyleHopeful    Style = "hopeful"
	StyleSorry      Style = "sorry"
	StyleWhispering Style = "whispering"
)

// voiceForStyle maps each style to a neural voice name. Styles not listed
// fall back to the warm default voice.
var voiceForStyle = map[Style]string{
	StyleEmpathetic: "en-US-AriaNeural",
	StyleGentle:     "en-US-SaraNeural",
	StyleWhispering: "en-US-SaraNeural",
}

const defaultVoice = "en-US-JennyNeural"

const (
	synthesisTimeout = 30 * time.Second
	outputFormat     = "audio-16khz-128kbitrate-mono-mp3"
	// Slightly slower than default cadence reads as calmer for therapeutic replies.
	speakingRate = "0.95"
)

// SynthesisError is returned when the speech service call fails.
type SynthesisError struct {
	Status int
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech synthesis failed: %s: %v", e.Reason, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("speech synthesis failed (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("speech synthesis failed: %s", e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer converts reply text to audio via the hosted TTS REST API.
type Synthesizer struct {
	key        string
	baseURL    string
	httpClient *http.Client
}

// NewSynthesizer creates a Synthesizer for the given subscription key and region.
func NewSynthesizer(key, region string) *Synthesizer {
	return &Synthesizer{
		key:     key,
		baseURL: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		httpClient: &http.Client{
			Timeout: synthesisTimeout,
		},
	}
}

// NewSynthesizerWithBaseURL creates a Synthesizer pointing at a custom
// endpoint (for testing).
func NewSynthesizerWithBaseURL(key, baseURL string) *Synthesizer {
	s := NewSynthesizer(key, "unused")
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Close releases idle connections held by the synthesizer. Safe to call
// multiple times.
func (s *Synthesizer) Close() {
	s.httpClient.CloseIdleConnections()
}

// Synthesize renders text as speech audio with the given style.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, style Style) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SynthesisError{Reason: "empty text"}
	}

	ssml := buildSSML(text, style)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(ssml))
	if err != nil {
		return nil, &SynthesisError{Reason: "creating request", Err: err}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &SynthesisError{Reason: "executing request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SynthesisError{Status: resp.StatusCode, Reason: strings.TrimSpace(string(body))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Reason: "reading audio", Err: err}
	}
	if len(audio) == 0 {
		return nil, &SynthesisError{Reason: "empty audio response"}
	}
	return audio, nil
}

// buildSSML wraps text in an SSML document with the voice and express-as
// style for the requested delivery.
func buildSSML(text string, style Style) string {
	voice := voiceForStyle[style]
	if voice == "" {
		voice = defaultVoice
	}

	var sb strings.Builder
	sb.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`)
	sb.WriteString(fmt.Sprintf(`<voice name="%s">`, voice))
	sb.WriteString(fmt.Sprintf(`<mstts:express-as style="%s">`, style))
	sb.WriteString(fmt.Sprintf(`<prosody rate="%s">`, speakingRate))
	sb.WriteString(escapeXML(text))
	sb.WriteString(`</prosody></mstts:express-as></voice></speak>`)
	return sb.String()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
