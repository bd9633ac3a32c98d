package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/dochero/dochero/internal/core/domain"
	coremail "github.com/dochero/dochero/internal/core/mail"
	"github.com/dochero/dochero/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUserNotFound is returned when a user has no token for the provider.
	ErrUserNotFound = errors.New("user not found")

	// ErrRefreshFailed wraps provider refresh failures.
	ErrRefreshFailed = errors.New("refresh failed")
)

// FetchError is a failed provider read on behalf of a client request.
type FetchError struct {
	What string // "message" or "attachment"
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.What, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TokenError is returned when no usable access token could be obtained.
type TokenError struct {
	TokenID int64
	Err     error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token %d: %v", e.TokenID, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Dependencies
// =============================================================================

// Authorizer runs the OAuth flow of one provider.
type Authorizer interface {
	Provider() domain.Provider
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Gmail is the subset of the Gmail API the service uses.
type Gmail interface {
	Profile(ctx context.Context, accessToken string) (string, error)
	ListMessageIDs(ctx context.Context, accessToken, q string) ([]string, error)
	GetMessage(ctx context.Context, accessToken, id string) (*GmailMessage, error)
	GetAttachment(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error)
}

// Graph is the subset of Microsoft Graph the service uses.
type Graph interface {
	ListMessageIDs(ctx context.Context, accessToken string, afterMS int64) ([]string, error)
	GetMessage(ctx context.Context, accessToken, id string) (*GraphMessage, error)
}

// Config holds the collaborators and settings of a Service.
type Config struct {
	Store       store.Store
	Google      Authorizer
	Microsoft   Authorizer
	Gmail       Gmail
	Graph       Graph
	Forwarder   Forwarder
	FrontendURL string
}

// =============================================================================
// Service
// =============================================================================

// Service implements mailbox connection, status, settings, polling and
// attachment download.
type Service struct {
	store       store.Store
	auth        map[domain.Provider]Authorizer
	gmail       Gmail
	graph       Graph
	forwarder   Forwarder
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a mail service.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Forwarder == nil {
		cfg.Forwarder = NoOpForwarder{}
	}
	return &Service{
		store: cfg.Store,
		auth: map[domain.Provider]Authorizer{
			domain.ProviderGmail:   cfg.Google,
			domain.ProviderOutlook: cfg.Microsoft,
		},
		gmail:       cfg.Gmail,
		graph:       cfg.Graph,
		forwarder:   cfg.Forwarder,
		frontendURL: cfg.FrontendURL,
		logger:      logger.With("component", "mail"),
		now:         time.Now,
	}
}

func (s *Service) authorizer(p domain.Provider) (Authorizer, error) {
	a, ok := s.auth[p]
	if !ok || a == nil {
		return nil, domain.ErrUnknownProvider
	}
	return a, nil
}

// =============================================================================
// OAuth Flow
// =============================================================================

// InitiateURL returns the consent URL for userID. The user id travels as
// the OAuth state.
func (s *Service) InitiateURL(p domain.Provider, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrMissingUserID
	}
	a, err := s.authorizer(p)
	if err != nil {
		return "", err
	}
	return a.AuthURL(userID), nil
}

// Connect completes the OAuth callback: exchanges code and stores a new
// token for the user named by state.
func (s *Service) Connect(ctx context.Context, p domain.Provider, code, state string) error {
	if state == "" {
		return domain.ErrMissingUserID
	}
	a, err := s.authorizer(p)
	if err != nil {
		return err
	}

	tok, err := a.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	now := s.now()
	row, err := domain.NewEmailToken(state, p, tok.AccessToken, tok.RefreshToken, Lifetime(tok, now), now)
	if err != nil {
		return err
	}

	if p == domain.ProviderGmail {
		email, err := s.gmail.Profile(ctx, tok.AccessToken)
		if err != nil {
			s.logger.Error("failed to fetch gmail address", "user_id", state, "error", err)
		}
		row.Email = email
	}

	if err := s.store.CreateToken(ctx, row); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	s.logger.Info("mailbox connected", "provider", string(p), "user_id", state, "token_id", row.ID)
	return nil
}

// FrontendRedirect is where the callback sends the browser afterwards.
func (s *Service) FrontendRedirect(p domain.Provider, connected bool) string {
	q := url.Values{}
	q.Set(string(p)+"_connected", fmt.Sprintf("%t", connected))
	return s.frontendURL + "?" + q.Encode()
}

// =============================================================================
// Token Validity
// =============================================================================

// ValidToken returns a usable access token for tok, refreshing and
// persisting it when it expires within the refresh margin.
func (s *Service) ValidToken(ctx context.Context, tok *domain.EmailToken) (string, error) {
	now := s.now()
	if !coremail.NeedsRefresh(tok, now) {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		return "", &TokenError{TokenID: tok.ID, Err: domain.ErrNoRefreshToken}
	}

	a, err := s.authorizer(tok.Provider)
	if err != nil {
		return "", &TokenError{TokenID: tok.ID, Err: err}
	}
	fresh, err := a.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		return "", &TokenError{TokenID: tok.ID, Err: fmt.Errorf("%w: %v", ErrRefreshFailed, err)}
	}

	tok.ApplyRefresh(fresh.AccessToken, fresh.RefreshToken, Lifetime(fresh, now), now)
	if err := s.store.UpdateToken(ctx, tok); err != nil {
		return "", &TokenError{TokenID: tok.ID, Err: err}
	}
	s.logger.Debug("token refreshed", "provider", string(tok.Provider), "token_id", tok.ID)
	return tok.AccessToken, nil
}

// =============================================================================
// Status and Settings
// =============================================================================

// Status is the connection summary of one user and provider.
type Status struct {
	Connected bool                 `json:"connected"`
	Accounts  []domain.AccountView `json:"accounts"`
}

// Status lists the user's accounts for the provider. Gmail accounts without
// a known address are backfilled from the profile; failures are logged.
func (s *Service) Status(ctx context.Context, p domain.Provider, userID string) (*Status, error) {
	tokens, err := s.store.ListTokensByUser(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.AccountView, 0, len(tokens))
	for i := range tokens {
		tok := &tokens[i]
		if p == domain.ProviderGmail && tok.Email == "" && tok.AccessToken != "" {
			s.backfillEmail(ctx, tok)
		}
		accounts = append(accounts, tok.View(s.now()))
	}
	return &Status{Connected: len(accounts) > 0, Accounts: accounts}, nil
}

func (s *Service) backfillEmail(ctx context.Context, tok *domain.EmailToken) {
	access, err := s.ValidToken(ctx, tok)
	if err != nil {
		s.logger.Error("failed to backfill gmail address", "token_id", tok.ID, "error", err)
		return
	}
	email, err := s.gmail.Profile(ctx, access)
	if err != nil {
		s.logger.Error("failed to fetch gmail address", "token_id", tok.ID, "error", err)
		return
	}
	if email == "" {
		return
	}
	tok.Email = email
	if err := s.store.UpdateToken(ctx, tok); err != nil {
		s.logger.Error("failed to store gmail address", "token_id", tok.ID, "error", err)
	}
}

// UpdateSettings sets the Gmail subject filter of the user's accounts, or of
// tokenID alone when it is set and non-zero. A nil filter clears it.
func (s *Service) UpdateSettings(ctx context.Context, userID string, subjectFilter *string, tokenID *int64) ([]domain.SettingsView, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	if tokenID != nil && *tokenID == 0 {
		tokenID = nil
	}
	filter := ""
	if subjectFilter != nil {
		filter = *subjectFilter
	}

	tokens, err := s.store.SetSubjectFilter(ctx, userID, domain.ProviderGmail, tokenID, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SettingsView, 0, len(tokens))
	for i := range tokens {
		views = append(views, tokens[i].SettingsView())
	}
	return views, nil
}

// =============================================================================
// Polling
// =============================================================================

// Poll forwards new messages of every account of the provider and returns
// how many were forwarded. Accounts whose token cannot be obtained are
// skipped. Only listing the accounts can fail the poll.
func (s *Service) Poll(ctx context.Context, p domain.Provider) (int, error) {
	if _, err := s.authorizer(p); err != nil {
		return 0, err
	}
	tokens, err := s.store.ListTokensByProvider(ctx, p)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range tokens {
		if ctx.Err() != nil {
			break
		}
		processed += s.pollAccount(ctx, &tokens[i])
	}
	s.logger.Info("poll complete", "provider", string(p), "accounts", len(tokens), "processed", processed)
	return processed, nil
}

// fetched is a provider message ready to forward.
type fetched struct {
	raw        []byte
	receivedMS int64
}

func (s *Service) pollAccount(ctx context.Context, tok *domain.EmailToken) int {
	log := s.logger.With("provider", string(tok.Provider), "token_id", tok.ID, "user_id", tok.UserID)

	access, err := s.ValidToken(ctx, tok)
	if err != nil {
		log.Error("token refresh failed", "error", err)
		return 0
	}

	var (
		ids   []string
		fetch func(id string) (*fetched, error)
	)
	switch tok.Provider {
	case domain.ProviderGmail:
		ids, err = s.gmail.ListMessageIDs(ctx, access, coremail.GmailQuery(tok.LastSyncMS, tok.SubjectFilter))
		fetch = func(id string) (*fetched, error) {
			m, err := s.gmail.GetMessage(ctx, access, id)
			if err != nil {
				return nil, err
			}
			return &fetched{raw: m.Raw, receivedMS: m.InternalDate}, nil
		}
	case domain.ProviderOutlook:
		ids, err = s.graph.ListMessageIDs(ctx, access, tok.LastSyncMS)
		fetch = func(id string) (*fetched, error) {
			m, err := s.graph.GetMessage(ctx, access, id)
			if err != nil {
				return nil, err
			}
			return &fetched{raw: m.Raw, receivedMS: m.ReceivedMS}, nil
		}
	}
	if err != nil {
		log.Warn("failed to list messages", "error", err)
		return 0
	}

	var forwarded []string
	maxMS := tok.LastSyncMS
	for _, id := range ids {
		seen, err := s.store.IsSeen(ctx, tok.UserID, id)
		if err != nil {
			log.Error("failed to check seen message", "message_id", id, "error", err)
			continue
		}
		if seen {
			continue
		}

		msg, err := fetch(id)
		if err != nil {
			log.Error("failed to fetch message", "message_id", id, "error", err)
			continue
		}
		if msg.receivedMS > maxMS {
			maxMS = msg.receivedMS
		}

		if err := s.forwarder.Forward(ctx, Delivery{UserID: tok.UserID, Provider: tok.Provider, Message: msg.raw}); err != nil {
			log.Error("failed to forward message", "message_id", id, "error", err)
		}
		forwarded = append(forwarded, id)
	}

	if err := s.commitBatch(ctx, tok, forwarded, maxMS); err != nil {
		log.Error("failed to record poll batch", "messages", len(forwarded), "error", err)
	}
	return len(forwarded)
}

// commitBatch marks the forwarded messages seen and advances last_sync_ms in
// one transaction, so the sync point never passes an unmarked message. The
// sync point only moves forward, even when polls of the same account overlap.
func (s *Service) commitBatch(ctx context.Context, tok *domain.EmailToken, ids []string, maxMS int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.store.WithTx(ctx, func(tx store.Store) error {
		for _, id := range ids {
			if err := tx.MarkSeen(ctx, tok.UserID, id); err != nil {
				return err
			}
		}
		current, err := tx.GetToken(ctx, tok.ID)
		if err != nil {
			return err
		}
		if maxMS > current.LastSyncMS {
			if err := tx.SetLastSync(ctx, tok.ID, maxMS); err != nil {
				return err
			}
			tok.LastSyncMS = maxMS
		}
		return nil
	})
}

// =============================================================================
// Attachments
// =============================================================================

// Attachment is a downloaded Gmail attachment.
type Attachment struct {
	FileName string
	MimeType string
	Data     []byte
}

// Attachment downloads an attachment of a message in the user's first
// Gmail account.
func (s *Service) Attachment(ctx context.Context, userID, messageID, attachmentID string) (*Attachment, error) {
	tokens, err := s.store.ListTokensByUser(ctx, userID, domain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrUserNotFound
	}
	tok := &tokens[0]

	access, err := s.ValidToken(ctx, tok)
	if err != nil {
		return nil, err
	}

	msg, err := s.gmail.GetMessage(ctx, access, messageID)
	if err != nil {
		return nil, &FetchError{What: "message", Err: err}
	}
	name, mimeType, ok := coremail.FindAttachment(msg.Payload, attachmentID)
	if !ok {
		name, mimeType = coremail.AttachmentName(attachmentID), coremail.DefaultMimeType
	}

	data, err := s.gmail.GetAttachment(ctx, access, messageID, attachmentID)
	if err != nil {
		return nil, &FetchError{What: "attachment", Err: err}
	}
	return &Attachment{FileName: name, MimeType: mimeType, Data: data}, nil
}
