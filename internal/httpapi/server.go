package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicechat/internal/config"
	"github.com/antoniostano/voicechat/internal/memory"
	"github.com/antoniostano/voicechat/internal/observability"
	"github.com/antoniostano/voicechat/internal/pipeline"
	"github.com/antoniostano/voicechat/internal/reliability"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to disk.
const multipartMemory = 8 << 20

// maxTextBody caps JSON bodies of the text endpoints.
const maxTextBody = 64 << 10

type Orchestrator interface {
	Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error)
	ChatText(ctx context.Context, req pipeline.TextRequest) (*pipeline.ChatResponse, error)
	Speak(ctx context.Context, req pipeline.TextRequest) pipeline.SpeakResponse
	ErrorResponse(ctx context.Context, sessionID string, category reliability.Category, details string) pipeline.ErrorResponse
}

type Deps struct {
	Config       config.Config
	Orchestrator Orchestrator
	Store        *memory.Store
	StoreKind    string
	Errors       *observability.ErrorRegistry
	Window       *observability.StageWindow
	Metrics      *observability.Metrics
	Events       *EventHub
	Logger       *slog.Logger
}

type Server struct {
	cfg          config.Config
	orchestrator Orchestrator
	store        *memory.Store
	storeKind    string
	errors       *observability.ErrorRegistry
	window       *observability.StageWindow
	metrics      *observability.Metrics
	events       *EventHub
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := d.Events
	if events == nil {
		events = NewEventHub(d.Metrics, logger)
	}
	errs := d.Errors
	if errs == nil {
		errs = observability.NewErrorRegistry(d.Metrics)
	}
	origins := d.Config.AllowedOrigins
	return &Server{
		cfg:          d.Config,
		orchestrator: d.Orchestrator,
		store:        d.Store,
		storeKind:    d.StoreKind,
		errors:       errs,
		window:       d.Window,
		metrics:      d.Metrics,
		events:       events,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" || originAllowed(origins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/agent", func(r chi.Router) {
		r.Post("/chat/{session_id}", s.handleChat)
		r.Post("/chat/{session_id}/text", s.handleChatText)
		r.Post("/audio-response", s.handleAudioResponse)
		r.Get("/chat/{session_id}/history", s.handleHistory)
		r.Delete("/chat/{session_id}/history", s.handleClearHistory)
		r.Get("/chat/{session_id}/events", s.handleEvents)
		r.Get("/diagnostics", s.handleDiagnostics)
	})
	r.Post("/test/simulate-error/{error_type}", s.handleSimulateError)

	return r
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondJSON(w, status, s.orchestrator.ErrorResponse(ctx, sessionID, reliability.CategoryFile, "invalid multipart upload: "+err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, s.orchestrator.ErrorResponse(ctx, sessionID, reliability.CategoryFile, "missing audio file field \"file\""))
		return
	}
	defer file.Close()

	resp, err := s.orchestrator.Chat(ctx, pipeline.ChatRequest{
		SessionID: sessionID,
		VoiceID:   r.FormValue("voice_id"),
		Upload: pipeline.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		},
	})
	if err != nil {
		var perr *pipeline.PipelineError
		if errors.As(err, &perr) {
			respondJSON(w, perr.Status, perr.Response)
			return
		}
		respondJSON(w, http.StatusInternalServerError, s.orchestrator.ErrorResponse(ctx, sessionID, reliability.CategoryNetwork, err.Error()))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type textRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// decodeText reads a textRequest body. On failure the error response has
// already been written.
func (s *Server) decodeText(w http.ResponseWriter, r *http.Request, sessionID string) (textRequest, bool) {
	var req textRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, s.orchestrator.ErrorResponse(r.Context(), sessionID, reliability.CategoryFile, "invalid json body: "+err.Error()))
		return textRequest{}, false
	}
	return req, true
}

func (s *Server) handleChatText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}
	body, ok := s.decodeText(w, r, sessionID)
	if !ok {
		return
	}

	resp, err := s.orchestrator.ChatText(ctx, pipeline.TextRequest{
		SessionID: sessionID,
		VoiceID:   body.VoiceID,
		Text:      body.Text,
	})
	if err != nil {
		var perr *pipeline.PipelineError
		if errors.As(err, &perr) {
			respondJSON(w, perr.Status, perr.Response)
			return
		}
		respondJSON(w, http.StatusInternalServerError, s.orchestrator.ErrorResponse(ctx, sessionID, reliability.CategoryNetwork, err.Error()))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleAudioResponse voices arbitrary text without touching any session.
func (s *Server) handleAudioResponse(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}
	body, ok := s.decodeText(w, r, "")
	if !ok {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		respondJSON(w, http.StatusBadRequest, s.orchestrator.ErrorResponse(r.Context(), "", reliability.CategoryFile, "text is empty"))
		return
	}
	respondJSON(w, http.StatusOK, s.orchestrator.Speak(r.Context(), pipeline.TextRequest{
		VoiceID: body.VoiceID,
		Text:    body.Text,
	}))
}

type historyResponse struct {
	SessionID    string           `json:"session_id"`
	MessageCount int              `json:"message_count"`
	Messages     []memory.Message `json:"messages"`
	ErrorSummary map[string]int   `json:"error_summary"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	msgs := s.store.Messages(r.Context(), sessionID)
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID:    sessionID,
		MessageCount: len(msgs),
		Messages:     msgs,
		ErrorSummary: s.store.ErrorSummary(r.Context(), sessionID),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if err := s.store.Clear(r.Context(), sessionID); err != nil {
		s.logger.Error("clear history failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"message":    "Chat history cleared",
	})
}

type apiStatus struct {
	STT bool `json:"stt"`
	LLM bool `json:"llm"`
	TTS bool `json:"tts"`
}

func (s *Server) apiStatus() apiStatus {
	return apiStatus{
		STT: s.cfg.STTConfigured(),
		LLM: s.cfg.LLMConfigured(),
		TTS: s.cfg.TTSConfigured(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.apiStatus()
	status, message := "healthy", "All providers configured"
	if !st.STT || !st.LLM || !st.TTS {
		status, message = "degraded", "Some providers are not configured; fallbacks are active"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"message":      message,
		"api_status":   st,
		"error_counts": s.errors.Snapshot(),
	})
}

type activeSession struct {
	SessionID    string  `json:"session_id"`
	MessageCount int     `json:"message_count"`
	LastActivity float64 `json:"last_activity"`
	ErrorCount   int     `json:"error_count"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats(r.Context())
	sessions := make([]activeSession, 0, len(stats))
	total := 0
	for _, st := range stats {
		total += st.MessageCount
		sessions = append(sessions, activeSession{
			SessionID:    st.SessionID,
			MessageCount: st.MessageCount,
			LastActivity: st.LastActivity,
			ErrorCount:   st.ErrorCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"system_status": map[string]any{
			"total_sessions":      len(stats),
			"total_messages":      total,
			"api_keys_configured": s.apiStatus(),
			"session_store":       s.storeKind,
			"event_subscribers":   s.events.Subscribers(),
		},
		"error_statistics": s.errors.Snapshot(),
		"active_sessions":  sessions,
		"stage_latency":    s.window.Snapshot(),
	})
}

func (s *Server) handleSimulateError(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "error_type")
	category, ok := reliability.ParseCategory(raw)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_error_type", "unknown error type: "+raw)
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = "simulated"
	}
	respondJSON(w, http.StatusOK, s.orchestrator.ErrorResponse(r.Context(), sessionID, category, "simulated "+string(category)))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
