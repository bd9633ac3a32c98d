package api

import "github.com/dochero/dochero/internal/core/domain"

// =============================================================================
// Request Types
// =============================================================================

// SplitForm documents the multipart fields of POST /split.
type SplitForm struct {
	File      string `json:"file" format:"binary"`
	SplitSize *int   `json:"split_size,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
	Barcode   bool   `json:"barcode,omitempty"`
}

// UploadForm documents the multipart fields of POST /rotate and /prepare.
type UploadForm struct {
	File string `json:"file" format:"binary"`
}

// InitiateRequest is the request body of POST /oauth/{provider}/initiate.
// RedirectURL is accepted for compatibility; the configured redirect URI is
// always used.
type InitiateRequest struct {
	UserID      string `json:"user_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// SettingsRequest is the request body of POST /oauth/gmail/settings.
type SettingsRequest struct {
	UserID        string  `json:"user_id"`
	SubjectFilter *string `json:"subject_filter"`
	TokenID       *int64  `json:"token_id,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// InitiateResponse carries the provider consent URL.
type InitiateResponse struct {
	AuthURL string `json:"auth_url"`
}

// StatusResponse lists the connected accounts of a user.
type StatusResponse struct {
	Connected bool                 `json:"connected"`
	Accounts  []domain.AccountView `json:"accounts"`
}

// SettingsResponse lists the rows changed by a settings update.
type SettingsResponse struct {
	Updated []domain.SettingsView `json:"updated"`
}

// PollResponse reports how many messages a poll forwarded.
type PollResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
}

// DetailResponse is the error body of the document endpoints.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// ErrorResponse is the error body of the mail endpoints.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
