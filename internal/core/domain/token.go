package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// =============================================================================
// Token Errors
// =============================================================================

var (
	ErrUnknownProvider = errors.New("unknown mail provider")
	ErrMissingUserID   = errors.New("user_id is required")
	ErrNoRefreshToken  = errors.New("no refresh token")
)

// =============================================================================
// Provider
// =============================================================================

// Provider identifies the mailbox vendor an OAuth token belongs to.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGmail, ProviderOutlook:
		return Provider(s), nil
	default:
		return "", ErrUnknownProvider
	}
}

// FallbackEmail is the label shown for an account whose address is unknown.
func (p Provider) FallbackEmail() string {
	return string(p) + "_account"
}

// =============================================================================
// Email Token
// =============================================================================

// EmailToken is a connected mailbox: one OAuth grant for one user.
type EmailToken struct {
	ID            int64
	UserID        string
	Provider      Provider
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	LastSyncMS    int64 // epoch millis of the newest forwarded message, 0 if never synced
	Email         string
	SubjectFilter string
	CreatedAt     time.Time
}

// NewEmailToken creates a token row for a freshly completed OAuth exchange.
// expiresIn is the lifetime reported by the provider; zero means one hour.
func NewEmailToken(userID string, provider Provider, accessToken, refreshToken string, expiresIn time.Duration, now time.Time) (*EmailToken, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if _, err := ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	expires := now.Add(expiresIn).UTC()
	return &EmailToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expires,
		CreatedAt:    now.UTC(),
	}, nil
}

// ApplyRefresh records a refreshed access token. An empty refreshToken keeps
// the current one, since providers only return it when they rotate it.
func (t *EmailToken) ApplyRefresh(accessToken, refreshToken string, expiresIn time.Duration, now time.Time) {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	expires := now.Add(expiresIn).UTC()
	t.AccessToken = accessToken
	t.ExpiresAt = &expires
	if refreshToken != "" {
		t.RefreshToken = refreshToken
	}
}

// =============================================================================
// Account View
// =============================================================================

// AccountStatus is the connection state reported to the frontend.
type AccountStatus string

const (
	AccountConnected AccountStatus = "connected"
	AccountExpired   AccountStatus = "expired"
)

// AccountView is the frontend representation of a connected mailbox.
// Gmail views always carry subject_filter, null when unset; other providers
// have no such key.
type AccountView struct {
	ID            int64         `json:"id"`
	Email         string        `json:"email"`
	Status        AccountStatus `json:"status"`
	ConnectedAt   time.Time     `json:"connected_at"`
	LastSync      *int64        `json:"last_sync"`
	SubjectFilter *string       `json:"subject_filter"`
	Provider      Provider      `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (v AccountView) MarshalJSON() ([]byte, error) {
	type view AccountView
	if v.Provider == ProviderGmail {
		return json.Marshal(view(v))
	}
	return json.Marshal(struct {
		view
		SubjectFilter *string `json:"subject_filter,omitempty"`
	}{view: view(v)})
}

// AccountStatusAt reports the status of the token at the given time.
// Tokens without an expiry are considered connected.
func (t *EmailToken) AccountStatusAt(now time.Time) AccountStatus {
	if t.ExpiresAt == nil || t.ExpiresAt.IsZero() {
		return AccountConnected
	}
	if t.ExpiresAt.Unix() > now.Unix() {
		return AccountConnected
	}
	return AccountExpired
}

// View builds the frontend representation. Subject filters are only part of
// the Gmail view.
func (t *EmailToken) View(now time.Time) AccountView {
	v := AccountView{
		ID:          t.ID,
		Email:       t.Email,
		Status:      t.AccountStatusAt(now),
		ConnectedAt: t.CreatedAt,
		Provider:    t.Provider,
	}
	if v.Email == "" {
		v.Email = t.Provider.FallbackEmail()
	}
	if t.LastSyncMS != 0 {
		ms := t.LastSyncMS
		v.LastSync = &ms
	}
	if t.Provider == ProviderGmail {
		var filter *string
		if t.SubjectFilter != "" {
			f := t.SubjectFilter
			filter = &f
		}
		v.SubjectFilter = filter
	}
	return v
}

// SettingsView is the row shape returned after a settings update.
type SettingsView struct {
	ID            int64    `json:"id"`
	UserID        string   `json:"user_id"`
	Provider      Provider `json:"provider"`
	Email         string   `json:"email,omitempty"`
	SubjectFilter *string  `json:"subject_filter"`
}

// SettingsView builds the settings row for the token.
func (t *EmailToken) SettingsView() SettingsView {
	v := SettingsView{
		ID:       t.ID,
		UserID:   t.UserID,
		Provider: t.Provider,
		Email:    t.Email,
	}
	if t.SubjectFilter != "" {
		f := t.SubjectFilter
		v.SubjectFilter = &f
	}
	return v
}
