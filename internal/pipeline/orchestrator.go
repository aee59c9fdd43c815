// Package pipeline runs one voice chat turn: transcribe the upload, generate a
// reply from session history, synthesize it, and persist both sides.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/voicechat/internal/llm"
	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/observability"
	"github.com/antoniostano/voicechat/internal/policy"
	"github.com/antoniostano/voicechat/internal/protocol"
	"github.com/antoniostano/voicechat/internal/reliability"
	"github.com/antoniostano/voicechat/internal/voice"
)

type Options struct {
	Store          *memory.Store
	STT            Transcriber
	LLM            Generator
	TTS            Speaker
	Errors         *observability.ErrorRegistry
	Metrics        *observability.Metrics
	Window         *observability.StageWindow
	Events         EventSink
	Persona        string
	DefaultVoiceID string
	TempDir        string
	Logger         *slog.Logger
}

// Orchestrator sequences the chat stages and absorbs partial failures.
type Orchestrator struct {
	store        *memory.Store
	stt          Transcriber
	llm          Generator
	tts          Speaker
	errors       *observability.ErrorRegistry
	metrics      *observability.Metrics
	window       *observability.StageWindow
	events       EventSink
	persona      string
	defaultVoice string
	tempDir      string
	logger       *slog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		stt:          opts.STT,
		llm:          opts.LLM,
		tts:          opts.TTS,
		errors:       opts.Errors,
		metrics:      opts.Metrics,
		window:       opts.Window,
		events:       opts.Events,
		persona:      opts.Persona,
		defaultVoice: strings.TrimSpace(opts.DefaultVoiceID),
		tempDir:      opts.TempDir,
		logger:       opts.Logger,
	}
	if o.errors == nil {
		o.errors = observability.NewErrorRegistry(o.metrics)
	}
	if o.defaultVoice == "" {
		o.defaultVoice = "en-US-natalie"
	}
	if o.tempDir == "" {
		o.tempDir = os.TempDir()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// turn carries per-request state through the stages.
type turn struct {
	sessionID string
	requestID string
	voiceID   string
	state     State
	started   time.Time
}

// Chat runs the full pipeline for one uploaded utterance. A non-nil error is
// always a *PipelineError carrying the fallback body to send.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	t := o.newTurn(req.SessionID, req.VoiceID)

	var uploadPath string
	defer func() {
		if uploadPath != "" {
			if rmErr := os.Remove(uploadPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				o.logger.Warn("remove upload failed", "session_id", t.sessionID, "path", uploadPath, "error", rmErr)
			}
		}
	}()
	defer o.recoverTurn(ctx, t, &resp, &err)

	if strings.TrimSpace(t.sessionID) == "" {
		return nil, o.abort(ctx, t, stageUpload, reliability.CategoryFile, http.StatusBadRequest, "missing session id")
	}

	// received
	if msg := validateUpload(req.Upload); msg != "" {
		return nil, o.abort(ctx, t, stageUpload, reliability.CategoryFile, http.StatusBadRequest, msg)
	}
	uploadStart := time.Now()
	path, size, saveErr := o.saveUpload(req.Upload)
	uploadPath = path
	o.observe(stageUpload, time.Since(uploadStart))
	if saveErr != nil {
		return nil, o.abort(ctx, t, stageUpload, reliability.CategoryNetwork, http.StatusInternalServerError, "save upload: "+saveErr.Error())
	}
	if size == 0 {
		return nil, o.abort(ctx, t, stageUpload, reliability.CategoryFile, http.StatusBadRequest, "uploaded audio file is empty")
	}

	// transcribing
	o.enter(t, StateTranscribing, stageTranscribe)
	sttStart := time.Now()
	transcript, sttErr := o.stt.Transcribe(ctx, uploadPath, t.sessionID)
	sttLatency := time.Since(sttStart)
	o.observe(stageTranscribe, sttLatency)
	if sttErr != nil {
		category := reliability.CategoryOf(sttErr, reliability.CategorySTT)
		status := http.StatusInternalServerError
		if category == reliability.CategoryFile {
			status = http.StatusBadRequest
		}
		return nil, o.abort(ctx, t, stageTranscribe, category, status, sttErr.Error())
	}
	o.leave(t, StateTranscribed, stageTranscribe, sttLatency)
	o.logger.Info("transcribed", "session_id", t.sessionID, "preview", policy.LogPreview(transcript, 80))

	return o.respond(ctx, t, transcript, true)
}

// ChatText runs a turn for typed input: the same as Chat without the upload
// and transcription stages.
func (o *Orchestrator) ChatText(ctx context.Context, req TextRequest) (resp *ChatResponse, err error) {
	t := o.newTurn(req.SessionID, req.VoiceID)
	defer o.recoverTurn(ctx, t, &resp, &err)

	if strings.TrimSpace(t.sessionID) == "" {
		return nil, o.abort(ctx, t, stageInput, reliability.CategoryFile, http.StatusBadRequest, "missing session id")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, o.abort(ctx, t, stageInput, reliability.CategoryFile, http.StatusBadRequest, "message text is empty")
	}
	t.state = StateTranscribed
	return o.respond(ctx, t, text, false)
}

// Speak voices text without touching the session. Synthesis never fails, so
// neither does Speak; a primary provider failure is reported in the response.
func (o *Orchestrator) Speak(ctx context.Context, req TextRequest) SpeakResponse {
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = o.defaultVoice
	}
	start := time.Now()
	speech := o.tts.Synthesize(ctx, req.Text, voiceID, req.SessionID)
	o.observe(stageSynthesize, time.Since(start))
	if o.metrics != nil {
		o.metrics.SpeechSources.WithLabelValues(string(speech.Source)).Inc()
	}

	resp := SpeakResponse{
		Success:      true,
		SessionID:    req.SessionID,
		Text:         req.Text,
		AudioFile:    speech.Audio,
		VoiceID:      voiceID,
		TTSSuccess:   speech.Err == nil,
		FallbackUsed: speech.Source != voice.SourceMurf,
	}
	if speech.Err != nil {
		o.errors.Record(stageSynthesize, reliability.CategoryTTS)
		resp.ErrorType = reliability.CategoryTTS
		o.logger.Warn("audio response used fallback", "session_id", req.SessionID, "error", speech.Err)
	}
	return resp
}

func (o *Orchestrator) newTurn(sessionID, voiceID string) *turn {
	t := &turn{
		sessionID: sessionID,
		requestID: uuid.NewString(),
		voiceID:   strings.TrimSpace(voiceID),
		state:     StateReceived,
		started:   time.Now(),
	}
	if t.voiceID == "" {
		t.voiceID = o.defaultVoice
	}
	return t
}

// recoverTurn converts a panic anywhere in a turn into a network_error abort.
func (o *Orchestrator) recoverTurn(ctx context.Context, t *turn, resp **ChatResponse, err *error) {
	r := recover()
	if r == nil {
		return
	}
	o.logger.Error("pipeline panic", "session_id", t.sessionID, "request_id", t.requestID, "state", t.state, "panic", r)
	*resp = nil
	*err = o.abort(ctx, t, "pipeline", reliability.CategoryNetwork, http.StatusInternalServerError, fmt.Sprintf("unexpected error: %v", r))
}

// respond runs the shared tail of a turn once the user's text is known:
// store it, generate a reply, store that, and voice it.
func (o *Orchestrator) respond(ctx context.Context, t *turn, transcript string, transcribed bool) (*ChatResponse, error) {
	// Prompt context is read before the new user turn is stored.
	history := o.store.Messages(ctx, t.sessionID)
	summary := o.store.Summary(ctx, t.sessionID)
	prompt := llm.BuildPrompt(o.persona, summary, history, transcript)

	if _, appendErr := o.appendMessage(ctx, t.sessionID, memory.Message{Role: memory.RoleUser, Content: transcript}); appendErr != nil {
		return nil, o.abort(ctx, t, stageStore, reliability.CategoryNetwork, http.StatusInternalServerError, appendErr.Error())
	}

	// generating
	status := PipelineStatus{STTSuccess: transcribed, LLMSuccess: true, Errors: []string{}}
	o.enter(t, StateGenerating, stageGenerate)
	llmStart := time.Now()
	reply, llmErr := o.llm.Generate(ctx, prompt, t.sessionID)
	llmLatency := time.Since(llmStart)
	o.observe(stageGenerate, llmLatency)

	assistant := memory.Message{Role: memory.RoleAssistant}
	if llmErr != nil {
		category := reliability.CategoryOf(llmErr, reliability.CategoryLLM)
		reply = reliability.FallbackText(category)
		assistant.ErrorType = string(category)
		status.LLMSuccess = false
		status.Errors = append(status.Errors, string(category))
		o.recordFailure(t, stageGenerate, category, llmErr)
		o.window.ObserveIndicator("llm_fallback")
	} else {
		o.leave(t, StateGenerated, stageGenerate, llmLatency)
	}
	assistant.Content = reply

	count, appendErr := o.appendMessage(ctx, t.sessionID, assistant)
	if appendErr != nil {
		return nil, o.abort(ctx, t, stageStore, reliability.CategoryNetwork, http.StatusInternalServerError, appendErr.Error())
	}

	// synthesizing
	o.enter(t, StateSynthesizing, stageSynthesize)
	ttsStart := time.Now()
	speech := o.tts.Synthesize(ctx, reply, t.voiceID, t.sessionID)
	ttsLatency := time.Since(ttsStart)
	o.observe(stageSynthesize, ttsLatency)
	status.TTSSuccess = speech.Err == nil
	if speech.Err != nil {
		status.Errors = append(status.Errors, string(reliability.CategoryTTS))
		o.recordFailure(t, stageSynthesize, reliability.CategoryTTS, speech.Err)
	}
	if speech.Source != voice.SourceMurf {
		o.window.ObserveIndicator("tts_" + string(speech.Source))
	}
	if o.metrics != nil {
		o.metrics.SpeechSources.WithLabelValues(string(speech.Source)).Inc()
	}
	o.leave(t, StateComplete, stageSynthesize, ttsLatency)

	audioFile := speech.Audio
	resp := &ChatResponse{
		Success:        true,
		SessionID:      t.sessionID,
		Transcription:  transcript,
		LLMResponse:    reply,
		AudioFile:      &audioFile,
		VoiceID:        t.voiceID,
		MessageCount:   count,
		RecentMessages: o.store.Recent(ctx, t.sessionID, RecentWindow),
		PipelineStatus: status,
		FallbackUsed:   !status.LLMSuccess || speech.Source != voice.SourceMurf,
	}

	total := time.Since(t.started)
	o.observe(stageTotal, total)
	o.countRequest("complete")
	o.publish(t.sessionID, protocol.PipelineComplete{
		Type:          protocol.TypePipelineComplete,
		SessionID:     t.sessionID,
		RequestID:     t.requestID,
		Success:       true,
		FallbackUsed:  resp.FallbackUsed,
		Transcription: transcript,
		LLMResponse:   reply,
		MessageCount:  count,
		TSMs:          time.Now().UnixMilli(),
	})
	o.logger.Info("chat turn complete",
		"session_id", t.sessionID,
		"request_id", t.requestID,
		"message_count", count,
		"llm_success", status.LLMSuccess,
		"speech_source", speech.Source,
		"latency_ms", total.Milliseconds(),
	)
	return resp, nil
}

// ErrorResponse builds the fallback body for category: the failure is counted
// and logged, and the category's canned text is voiced.
func (o *Orchestrator) ErrorResponse(ctx context.Context, sessionID string, category reliability.Category, details string) ErrorResponse {
	return o.errorResponse(ctx, "pipeline", sessionID, category, details)
}

func (o *Orchestrator) errorResponse(ctx context.Context, stage, sessionID string, category reliability.Category, details string) ErrorResponse {
	o.errors.Record(stage, category)
	o.logger.Error("pipeline error response",
		"session_id", sessionID,
		"stage", stage,
		"category", category,
		"details", details,
	)

	text := reliability.FallbackText(category)
	speech := o.tts.Synthesize(ctx, text, o.defaultVoice, sessionID)
	audioFile := speech.Audio
	return ErrorResponse{
		Success:        false,
		ErrorType:      category,
		SessionID:      sessionID,
		Transcription:  "",
		LLMResponse:    text,
		AudioFile:      &audioFile,
		ErrorDetails:   details,
		FallbackUsed:   true,
		RetrySuggested: true,
	}
}

func (o *Orchestrator) abort(ctx context.Context, t *turn, stage string, category reliability.Category, status int, details string) *PipelineError {
	failedAt := t.state
	t.state = StateError
	o.countRequest("error")
	o.publish(t.sessionID, protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: t.sessionID,
		RequestID: t.requestID,
		Code:      string(category),
		Source:    string(failedAt),
		Retryable: true,
		Detail:    details,
	})
	return &PipelineError{
		Category: category,
		Status:   status,
		Response: o.errorResponse(ctx, stage, t.sessionID, category, details),
	}
}

// recordFailure counts an absorbed stage failure.
func (o *Orchestrator) recordFailure(t *turn, stage string, category reliability.Category, cause error) {
	o.errors.Record(stage, category)
	o.logger.Warn("stage failed, continuing with fallback",
		"session_id", t.sessionID,
		"request_id", t.requestID,
		"stage", stage,
		"category", category,
		"error", cause,
	)
	o.publish(t.sessionID, protocol.PipelineStage{
		Type:      protocol.TypePipelineStage,
		SessionID: t.sessionID,
		RequestID: t.requestID,
		Stage:     stage,
		Status:    protocol.StageFailed,
		Category:  string(category),
		TSMs:      time.Now().UnixMilli(),
	})
}

// appendMessage stores msg and refreshes the rolling summary on its cadence.
func (o *Orchestrator) appendMessage(ctx context.Context, sessionID string, msg memory.Message) (int, error) {
	count, err := o.store.Append(ctx, sessionID, msg)
	if err != nil {
		return count, err
	}
	if memory.ShouldSummarize(count) {
		summary := memory.BuildSummary(o.store.Recent(ctx, sessionID, memory.SummaryInterval))
		if err := o.store.SetSummary(ctx, sessionID, summary); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (o *Orchestrator) enter(t *turn, s State, stage string) {
	t.state = s
	o.publish(t.sessionID, protocol.PipelineStage{
		Type:      protocol.TypePipelineStage,
		SessionID: t.sessionID,
		RequestID: t.requestID,
		Stage:     stage,
		Status:    protocol.StageStarted,
		TSMs:      time.Now().UnixMilli(),
	})
}

func (o *Orchestrator) leave(t *turn, s State, stage string, d time.Duration) {
	t.state = s
	o.publish(t.sessionID, protocol.PipelineStage{
		Type:      protocol.TypePipelineStage,
		SessionID: t.sessionID,
		RequestID: t.requestID,
		Stage:     stage,
		Status:    protocol.StageCompleted,
		LatencyMS: d.Milliseconds(),
		TSMs:      time.Now().UnixMilli(),
	})
}

func (o *Orchestrator) observe(stage string, d time.Duration) {
	o.window.Observe(stage, d)
	o.metrics.ObserveStage(stage, d)
}

func (o *Orchestrator) countRequest(outcome string) {
	if o.metrics != nil {
		o.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) publish(sessionID string, event any) {
	if o.events != nil {
		o.events.Publish(sessionID, event)
	}
}

// validateUpload returns a reason the upload is unacceptable, or "".
func validateUpload(u Upload) string {
	if u.Body == nil || u.Size == 0 {
		return "uploaded audio file is empty"
	}
	if !isAudioContentType(u.ContentType) {
		return fmt.Sprintf("invalid file type: %q", u.ContentType)
	}
	return ""
}

func isAudioContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return true
	case ct == "video/webm", ct == "application/octet-stream":
		return true
	}
	return false
}

// saveUpload copies the upload into a uniquely named temp file. The returned
// path is set whenever a file was created, even on error, so it can be removed.
func (o *Orchestrator) saveUpload(u Upload) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(u.Filename)))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	path := filepath.Join(o.tempDir, "voicechat-upload-"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, u.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return path, n, fmt.Errorf("write temp file: %w", copyErr)
	}
	if closeErr != nil {
		return path, n, fmt.Errorf("close temp file: %w", closeErr)
	}
	return path, n, nil
}
