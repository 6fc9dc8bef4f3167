// Package pipeline orchestrates a full conversational turn: transcription,
// therapy detection, knowledge retrieval, prompt composition, completion,
// tone adjustment, and optional speech synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emothrive/emothrive/internal/composer"
	"github.com/emothrive/emothrive/internal/llm"
	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/session"
	"github.com/emothrive/emothrive/internal/therapy"
	"github.com/emothrive/emothrive/internal/voice"
)

// Completer produces chat completions.
type Completer interface {
	ChatCompletion(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, model string, audio []byte, filename string) (string, error)
}

// ContextRetriever finds knowledge chunks relevant to a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Chunk, error)
}

// Synthesizer renders reply text as speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, style voice.Style) ([]byte, error)
}

// TurnRequest is one user turn entering the pipeline. Either Message or
// Audio must be set; Audio implies voice input.
type TurnRequest struct {
	SessionID         string
	Message           string
	Audio             []byte
	AudioFilename     string
	IsVoiceInput      bool
	EnableVoiceOutput bool
	TherapyType       therapy.Type // optional override; empty means auto-detect
}

// TurnResult is the assistant's side of a completed turn.
type TurnResult struct {
	SessionID   string
	Text        string
	Audio       []byte
	TherapyType therapy.Type
	QuickReply  bool

	// SynthesisErr is set when voice output was requested but synthesis
	// failed after the turn was committed. Text is still valid.
	SynthesisErr error
}

// Options tunes pipeline behavior.
type Options struct {
	ChatModel          string
	TranscriptionModel string
	MaxTokens          int
	TopK               int
}

// quickReplies short-circuits common greetings without a model round trip.
var quickReplies = map[string]string{
	"hi":                                   "Hello! How can I support you today?",
	"how are you?":                         "I'm here and ready to help. How are you feeling today?",
	"please find me a girlfriend":          "Building connections takes time, but I'm here to guide you. How do you feel about trying new social activities?",
	"what kind of therapy do you suggest?": "I recommend Cognitive Behavioral Therapy (CBT) for building confidence. Would you like to learn more?",
}

const briefTurnFollowUp = "It sounds like you're going through something important. Could you share more about how you're feeling or what challenges you're facing? I'm here to help."

const briefTurnWordLimit = 10

// Orchestrator runs conversational turns against a session registry.
type Orchestrator struct {
	completer   Completer
	transcriber Transcriber
	retriever   ContextRetriever
	synthesizer Synthesizer // nil disables voice output
	composer    *composer.Composer
	sessions    *session.Registry
	opts        Options
	logger      *slog.Logger
}

// NewOrchestrator wires the pipeline components together. synthesizer may be
// nil when voice output is not configured.
func NewOrchestrator(
	completer Completer,
	transcriber Transcriber,
	retriever ContextRetriever,
	synthesizer Synthesizer,
	comp *composer.Composer,
	sessions *session.Registry,
	opts Options,
) *Orchestrator {
	if opts.ChatModel == "" {
		opts.ChatModel = "gpt-4.1-mini"
	}
	if opts.TranscriptionModel == "" {
		opts.TranscriptionModel = "whisper-1"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 400
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Orchestrator{
		completer:   completer,
		transcriber: transcriber,
		retriever:   retriever,
		synthesizer: synthesizer,
		composer:    comp,
		sessions:    sessions,
		opts:        opts,
		logger:      slog.Default(),
	}
}

// ProcessTurn runs one full turn. The session is mutated only after the
// completion succeeds; any failure before that leaves history untouched.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	start := time.Now()

	sess := o.sessions.GetOrCreate(req.SessionID)
	if err := sess.BeginTurn(); err != nil {
		return TurnResult{}, err
	}
	defer sess.EndTurn()

	result := TurnResult{SessionID: sess.ID}

	// Voice input is transcribed before anything touches the session, so a
	// failed transcription leaves no trace. A voice turn with no usable text
	// always goes through the transcriber, even with empty audio, so the
	// caller gets a transcription error rather than a generic one.
	userText := req.Message
	isVoice := req.IsVoiceInput
	if len(req.Audio) > 0 || (req.IsVoiceInput && strings.TrimSpace(userText) == "") {
		text, err := o.transcriber.Transcribe(ctx, o.opts.TranscriptionModel, req.Audio, req.AudioFilename)
		if err != nil {
			return TurnResult{}, fmt.Errorf("transcribing voice input: %w", err)
		}
		userText = text
		isVoice = true
	}
	if strings.TrimSpace(userText) == "" {
		return TurnResult{}, errors.New("empty message")
	}

	typ := req.TherapyType
	if !typ.Valid() {
		typ = therapy.Detect(userText)
	}
	result.TherapyType = typ

	// Canned paths skip retrieval and completion entirely.
	if reply, ok := quickReplies[strings.ToLower(strings.TrimSpace(userText))]; ok {
		result.Text = reply
		result.QuickReply = true
		sess.CommitTurn(userText, reply, typ)
		return o.finishTurn(ctx, sess, result, isVoice, req.EnableVoiceOutput, start)
	}
	if sess.Turns() > 0 && len(strings.Fields(userText)) < briefTurnWordLimit {
		result.Text = briefTurnFollowUp
		result.QuickReply = true
		sess.CommitTurn(userText, briefTurnFollowUp, typ)
		return o.finishTurn(ctx, sess, result, isVoice, req.EnableVoiceOutput, start)
	}

	// Retrieval failures degrade to an uncontextualized prompt.
	contextBlock := ""
	chunks, err := o.retriever.Retrieve(ctx, userText, o.opts.TopK)
	switch {
	case errors.Is(err, retrieval.ErrEmptyIndex):
		o.logger.Debug("knowledge index empty, composing without context")
	case err != nil:
		o.logger.Warn("retrieval failed, composing without context", "error", err)
	default:
		contextBlock = o.composer.FormatContext(chunks)
	}

	msgs := o.composer.Compose(typ, contextBlock, sess.Messages(), userText, isVoice)

	reply, err := o.completer.ChatCompletion(ctx, llm.ChatRequest{
		Model:     o.opts.ChatModel,
		Messages:  msgs,
		MaxTokens: o.opts.MaxTokens,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("completing turn: %w", err)
	}

	reply = softenDirectives(reply)
	if isVoice {
		reply = voiceFriendly(reply)
	}
	result.Text = reply

	sess.CommitTurn(userText, reply, typ)
	return o.finishTurn(ctx, sess, result, isVoice, req.EnableVoiceOutput, start)
}

// finishTurn handles best-effort voice synthesis and logging. The turn is
// already committed; synthesis failure degrades to text-only.
func (o *Orchestrator) finishTurn(ctx context.Context, sess *session.Session, result TurnResult, isVoice, wantAudio bool, start time.Time) (TurnResult, error) {
	if wantAudio && o.synthesizer != nil {
		speech := result.Text
		if !isVoice {
			speech = voiceFriendly(speech)
		}
		audio, err := o.synthesizer.Synthesize(ctx, speech, therapy.SpeechStyleFor(result.TherapyType))
		if err != nil {
			o.logger.Warn("speech synthesis failed, returning text only", "error", err)
			result.SynthesisErr = err
		} else {
			result.Audio = audio
		}
	}

	o.logger.Info("turn complete",
		"session_id", sess.ID,
		"therapy_type", string(result.TherapyType),
		"quick_reply", result.QuickReply,
		"voice_output", len(result.Audio) > 0,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Sessions exposes the registry for API handlers.
func (o *Orchestrator) Sessions() *session.Registry {
	return o.sessions
}

// Cleanup discards all live sessions and releases the external clients the
// pipeline holds. Idempotent.
func (o *Orchestrator) Cleanup() {
	o.sessions.Clear()
	for _, dep := range []any{o.completer, o.transcriber, o.synthesizer} {
		if c, ok := dep.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
