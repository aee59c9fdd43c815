package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/reliability"
	"github.com/antoniostano/voicechat/internal/voice"
)

// State is a step of the chat pipeline state machine.
type State string

const (
	StateReceived     State = "received"
	StateTranscribing State = "transcribing"
	StateTranscribed  State = "transcribed"
	StateGenerating   State = "generating"
	StateGenerated    State = "generated"
	StateSynthesizing State = "synthesizing"
	StateComplete     State = "complete"
	StateError        State = "error"
)

// Stage names used for latency, metrics and events.
const (
	stageUpload     = "upload"
	stageInput      = "input"
	stageTranscribe = "transcribe"
	stageGenerate   = "generate"
	stageSynthesize = "synthesize"
	stageStore      = "store"
	stageTotal      = "pipeline_total"
)

// RecentWindow is how many trailing messages a chat response echoes back.
const RecentWindow = 6

// Transcriber is the speech-to-text stage.
type Transcriber interface {
	Transcribe(ctx context.Context, path, sessionID string) (string, error)
}

// Generator is the text generation stage.
type Generator interface {
	Generate(ctx context.Context, prompt, sessionID string) (string, error)
}

// Speaker is the speech synthesis stage. It never fails.
type Speaker interface {
	Synthesize(ctx context.Context, text, voiceID, sessionID string) voice.Speech
}

// EventSink receives pipeline progress events for a session.
type EventSink interface {
	Publish(sessionID string, event any)
}

// Upload is the audio part of a chat request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type ChatRequest struct {
	SessionID string
	VoiceID   string
	Upload    Upload
}

// TextRequest is a typed chat turn, or text to voice on its own.
type TextRequest struct {
	SessionID string
	VoiceID   string
	Text      string
}

type PipelineStatus struct {
	STTSuccess bool     `json:"stt_success"`
	LLMSuccess bool     `json:"llm_success"`
	TTSSuccess bool     `json:"tts_success"`
	Errors     []string `json:"errors"`
}

type ChatResponse struct {
	Success        bool             `json:"success"`
	SessionID      string           `json:"session_id"`
	Transcription  string           `json:"transcription"`
	LLMResponse    string           `json:"llm_response"`
	AudioFile      *string          `json:"audioFile"`
	VoiceID        string           `json:"voice_id"`
	MessageCount   int              `json:"message_count"`
	RecentMessages []memory.Message `json:"recent_messages"`
	PipelineStatus PipelineStatus   `json:"pipeline_status"`
	FallbackUsed   bool             `json:"fallback_used"`
}

// SpeakResponse is the body of a text-to-speech only request.
type SpeakResponse struct {
	Success      bool                 `json:"success"`
	SessionID    string               `json:"session_id,omitempty"`
	Text         string               `json:"text"`
	AudioFile    string               `json:"audioFile"`
	VoiceID      string               `json:"voice_id"`
	TTSSuccess   bool                 `json:"tts_success"`
	FallbackUsed bool                 `json:"fallback_used"`
	ErrorType    reliability.Category `json:"error_type,omitempty"`
}

// ErrorResponse is the body returned when a request cannot complete.
type ErrorResponse struct {
	Success        bool                 `json:"success"`
	ErrorType      reliability.Category `json:"error_type"`
	SessionID      string               `json:"session_id"`
	Transcription  string               `json:"transcription"`
	LLMResponse    string               `json:"llm_response"`
	AudioFile      *string              `json:"audioFile"`
	ErrorDetails   string               `json:"error_details,omitempty"`
	FallbackUsed   bool                 `json:"fallback_used"`
	RetrySuggested bool                 `json:"retry_suggested"`
}

// PipelineError aborts a chat request. Status is the HTTP status to answer with.
type PipelineError struct {
	Category reliability.Category
	Status   int
	Response ErrorResponse
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline aborted (%s, status %d): %s", e.Category, e.Status, e.Response.ErrorDetails)
}
