package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dochero/dochero/internal/core/crypto"
	"github.com/dochero/dochero/internal/core/domain"
	"github.com/dochero/dochero/internal/shell/api"
	"github.com/dochero/dochero/internal/shell/barcode"
	"github.com/dochero/dochero/internal/shell/mail"
	"github.com/dochero/dochero/internal/shell/ocr"
	"github.com/dochero/dochero/internal/shell/pdf"
	"github.com/dochero/dochero/internal/shell/processing"
	"github.com/dochero/dochero/internal/shell/store"
	"github.com/dochero/dochero/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitCryptoError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the dochero application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	poller     *workers.MailPoller
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Token encryption
	var opts []store.Option
	if cfg.Security.TokenKey != "" {
		key, err := crypto.DeriveKey(cfg.Security.TokenKey)
		if err != nil {
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCryptoError}
		}
		sealer, err := crypto.NewSealer(key)
		if err != nil {
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCryptoError}
		}
		opts = append(opts, store.WithSealer(sealer))
	} else {
		logger.Warn("security.token_key not set, OAuth tokens are stored unencrypted")
	}

	// Connect to database
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN, opts...)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	logger.Info("database connected", "dsn", cfg.Database.DSN)

	// Document processing
	docs := processing.NewService(processing.Deps{
		Documents:   pdf.NewDocuments(),
		Renderer:    pdf.NewPoppler(cfg.Processing.PdftoppmPath),
		Text:        ocr.NewTesseract(cfg.Processing.Languages...),
		Orientation: ocr.NewOSD(cfg.Processing.TesseractPath),
		Barcodes:    barcode.NewDetector(),
	}, logger)

	// Mail intake
	mailService := mail.NewService(mail.Config{
		Store: s,
		Google: mail.NewGoogleOAuth(mail.OAuthConfig{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.Google.RedirectURI,
		}),
		Microsoft: mail.NewMicrosoftOAuth(mail.OAuthConfig{
			ClientID:     cfg.OAuth.Microsoft.ClientID,
			ClientSecret: cfg.OAuth.Microsoft.ClientSecret,
			RedirectURL:  cfg.OAuth.Microsoft.RedirectURI,
		}, cfg.OAuth.Microsoft.Tenant, cfg.OAuth.Microsoft.Scopes),
		Gmail: mail.NewGmailClient(mail.GmailBaseURL, mailAPIClient()),
		Graph: mail.NewGraphClient(mail.GraphBaseURL, mailAPIClient()),
		Forwarder: mail.NewForwarder(mail.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
		}, logger),
		FrontendURL: cfg.FrontendURL,
	}, logger)
	if cfg.Webhook.URL == "" {
		logger.Warn("webhook.url not set, polled messages are not forwarded")
	}

	// Background poller, off unless an interval is configured
	var poller *workers.MailPoller
	if cfg.Poll.Interval > 0 {
		poller = workers.NewMailPoller(mailService, workers.MailPollerConfig{
			Interval:     cfg.Poll.Interval,
			CycleTimeout: cfg.Poll.CycleTimeout,
			Providers:    []domain.Provider{domain.ProviderGmail, domain.ProviderOutlook},
		}, logger)
	}

	// HTTP handler
	handler := api.NewHandler(docs, mailService, api.Config{
		MaxUploadBytes: int64(cfg.Processing.MaxUploadMB) << 20,
		MaxConcurrent:  cfg.Processing.MaxConcurrent,
		QueueSize:      cfg.Processing.QueueSize,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Version:        Version,
		PublicURL:      cfg.Server.PublicURL,
	}, logger)

	// The write deadline has to outlast a processing request
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout < cfg.Server.RequestTimeout+5*time.Second {
		writeTimeout = cfg.Server.RequestTimeout + 5*time.Second
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		poller:     poller,
		logger:     logger,
	}, nil
}

// ensureDataDir creates the parent directory of a file DSN.
func ensureDataDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return nil
}

// mailAPIClient returns the HTTP client for Gmail and Graph API calls,
// retrying connection errors and 5xx responses.
func mailAPIClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	return rc.StandardClient()
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start mail poller
	if s.poller != nil {
		s.poller.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop mail poller
	if s.poller != nil {
		s.poller.Stop()
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
