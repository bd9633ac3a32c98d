// Package api provides the HTTP surface of dochero: the document processing
// endpoints, the mailbox OAuth and polling endpoints, health and the OpenAPI
// document.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dochero/dochero/internal/core/domain"
	"github.com/dochero/dochero/internal/core/split"
	"github.com/dochero/dochero/internal/shell/api/openapi"
	"github.com/dochero/dochero/internal/shell/mail"
	"github.com/dochero/dochero/internal/shell/processing"
)

// =============================================================================
// Dependencies
// =============================================================================

// DocumentProcessor runs the document operations.
type DocumentProcessor interface {
	Split(ctx context.Context, up processing.Upload, opts split.Options) (*processing.Output, error)
	Rotate(ctx context.Context, up processing.Upload) (*processing.Output, error)
	Prepare(ctx context.Context, up processing.Upload) (*processing.Output, error)
}

// MailService runs the mailbox operations.
type MailService interface {
	InitiateURL(p domain.Provider, userID string) (string, error)
	Connect(ctx context.Context, p domain.Provider, code, state string) error
	FrontendRedirect(p domain.Provider, connected bool) string
	Status(ctx context.Context, p domain.Provider, userID string) (*mail.Status, error)
	UpdateSettings(ctx context.Context, userID string, subjectFilter *string, tokenID *int64) ([]domain.SettingsView, error)
	Poll(ctx context.Context, p domain.Provider) (int, error)
	Attachment(ctx context.Context, userID, messageID, attachmentID string) (*mail.Attachment, error)
}

// =============================================================================
// Handler
// =============================================================================

// Config holds the HTTP limits of the handler.
type Config struct {
	MaxUploadBytes int64
	MaxConcurrent  int
	QueueSize      int
	RequestTimeout time.Duration
	AllowedOrigins []string

	// Version and PublicURL are published in the OpenAPI document.
	Version   string
	PublicURL string
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 100 << 20,
		MaxConcurrent:  1,
		QueueSize:      32,
		RequestTimeout: 180 * time.Second,
		AllowedOrigins: []string{"https://dochero.nl"},
		Version:        "dev",
	}
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	docs   DocumentProcessor
	mail   MailService
	config Config
	logger *slog.Logger
	spec   *openapi.Generator
}

// NewHandler creates a new API handler. Zero config values take defaults.
func NewHandler(docs DocumentProcessor, m MailService, cfg Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	return &Handler{
		docs:   docs,
		mail:   m,
		config: cfg,
		logger: l.With("component", "api"),
		spec:   newSpec(cfg),
	}
}

// mailProviders are served under /oauth/<provider>/... and /<provider>/poll.
var mailProviders = []domain.Provider{domain.ProviderGmail, domain.ProviderOutlook}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(middleware.Timeout(h.config.RequestTimeout))

	r.Get("/health", h.handleHealth)
	r.Get("/openapi.json", h.spec.Handler())

	// Document processing, bounded like a single worker
	r.Group(func(r chi.Router) {
		r.Use(middleware.ThrottleBacklog(h.config.MaxConcurrent, h.config.QueueSize, h.config.RequestTimeout))
		r.Post("/split", h.handleSplit)
		r.Post("/rotate", h.handleRotate)
		r.Post("/prepare", h.handlePrepare)
	})

	// Mail intake
	for _, p := range mailProviders {
		r.Route("/oauth/"+string(p), func(r chi.Router) {
			r.Post("/initiate", h.handleInitiate(p))
			r.Get("/callback", h.handleCallback(p))
			r.Get("/status/{user_id}", h.handleStatus(p))
		})
		r.Post("/"+string(p)+"/poll", h.handlePoll(p))
	}
	r.Post("/oauth/gmail/settings", h.handleSettings)
	r.Get("/gmail/attachment", h.handleAttachment)

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// =============================================================================
// Health
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

// writeDetail writes the error body of the document endpoints.
func (h *Handler) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, DetailResponse{Detail: detail})
}

// writeError writes the error body of the mail endpoints.
func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Detail: detail})
}
