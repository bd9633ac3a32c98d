// Package workers holds background loops that run alongside the HTTP server.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dochero/dochero/internal/core/domain"
)

// Poller polls one provider's mailboxes and reports how many messages were
// forwarded.
type Poller interface {
	Poll(ctx context.Context, p domain.Provider) (int, error)
}

// MailPollerConfig configures the mail polling worker.
type MailPollerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	InitialDelay time.Duration
	Providers    []domain.Provider
}

// DefaultMailPollerConfig returns default configuration.
func DefaultMailPollerConfig() MailPollerConfig {
	return MailPollerConfig{
		Interval:     5 * time.Minute,
		CycleTimeout: 2 * time.Minute,
		InitialDelay: 10 * time.Second,
		Providers:    []domain.Provider{domain.ProviderGmail, domain.ProviderOutlook},
	}
}

// MailPoller periodically polls every connected mailbox.
type MailPoller struct {
	poller Poller
	config MailPollerConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMailPoller creates a new mail polling worker.
func NewMailPoller(p Poller, config MailPollerConfig, logger *slog.Logger) *MailPoller {
	def := DefaultMailPollerConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = def.CycleTimeout
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if len(config.Providers) == 0 {
		config.Providers = def.Providers
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MailPoller{
		poller: p,
		config: config,
		logger: logger.With("component", "mail_poller"),
	}
}

// Start begins the poller background goroutine.
func (m *MailPoller) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.run()
	m.logger.Info("mail poller started", "interval", m.config.Interval)
}

// Stop cancels the running cycle and waits for the goroutine to exit.
func (m *MailPoller) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("mail poller stopped")
}

func (m *MailPoller) run() {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-time.After(m.config.InitialDelay):
	}
	m.runCycle()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runCycle()
		}
	}
}

func (m *MailPoller) runCycle() {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.CycleTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range m.config.Providers {
		wg.Add(1)
		go func(p domain.Provider) {
			defer wg.Done()
			processed, err := m.poller.Poll(ctx, p)
			if err != nil {
				m.logger.Error("poll failed", "provider", string(p), "error", err)
				return
			}
			if processed > 0 {
				m.logger.Info("forwarded new messages", "provider", string(p), "processed", processed)
			}
		}(p)
	}
	wg.Wait()
}
