// Package mail holds the pure rules of mailbox intake: when a token needs a
// refresh, how provider queries are built and how attachments are located in
// a Gmail message tree. No I/O.
package mail

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/dochero/dochero/internal/core/domain"
)

// =============================================================================
// Token Refresh Policy
// =============================================================================

// RefreshMargin is how long before expiry a token is already refreshed.
const RefreshMargin = 60 * time.Second

// NeedsRefresh reports whether the stored access token can no longer be used
// as is. Tokens without an expiry are always refreshed.
func NeedsRefresh(tok *domain.EmailToken, now time.Time) bool {
	if tok.ExpiresAt == nil || tok.ExpiresAt.IsZero() {
		return true
	}
	return now.Unix() >= tok.ExpiresAt.Add(-RefreshMargin).Unix()
}

// =============================================================================
// Polling Queries
// =============================================================================

// PageSize is the number of message ids requested per poll.
const PageSize = 50

// GmailQuery builds the Gmail search expression for messages newer than
// afterMS (epoch millis, 0 for no bound) and matching subject.
func GmailQuery(afterMS int64, subject string) string {
	var parts []string
	if afterMS > 0 {
		parts = append(parts, "after:"+strconv.FormatInt(afterMS/1000, 10))
	}
	if subject != "" {
		parts = append(parts, `subject:"`+strings.ReplaceAll(subject, `"`, `\"`)+`"`)
	}
	return strings.Join(parts, " ")
}

// GraphFilter builds the Microsoft Graph $filter for messages received after
// afterMS. It returns "" when there is no bound.
func GraphFilter(afterMS int64) string {
	if afterMS <= 0 {
		return ""
	}
	return "receivedDateTime gt " + domain.EpochMSToISO(afterMS)
}

// ReceivedMS converts a Graph receivedDateTime to epoch millis, 0 if absent
// or malformed.
func ReceivedMS(receivedDateTime string) int64 {
	t, ok := domain.ParseTimestamp(receivedDateTime)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// InternalDateMS parses Gmail's internalDate (epoch millis as a string).
func InternalDateMS(internalDate string) int64 {
	ms, err := strconv.ParseInt(internalDate, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

// =============================================================================
// Gmail Message Parts
// =============================================================================

// Part is the subset of a Gmail MessagePart needed to find attachments.
type Part struct {
	PartID   string   `json:"partId,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Filename string   `json:"filename,omitempty"`
	Body     PartBody `json:"body"`
	Parts    []Part   `json:"parts,omitempty"`
}

// PartBody is the body of a Gmail MessagePart.
type PartBody struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Data         string `json:"data,omitempty"`
}

// Default attachment metadata when the message tree does not name it.
const (
	DefaultAttachmentName = "attachment"
	DefaultMimeType       = "application/octet-stream"
)

// FindAttachment searches the part tree depth-first for the part whose body
// carries attachmentID. Missing filename or mime type fall back to defaults.
func FindAttachment(root Part, attachmentID string) (filename, mimeType string, ok bool) {
	if root.Body.AttachmentID == attachmentID && attachmentID != "" {
		filename = root.Filename
		if filename == "" {
			filename = DefaultAttachmentName
		}
		mimeType = root.MimeType
		if mimeType == "" {
			mimeType = DefaultMimeType
		}
		return filename, mimeType, true
	}
	for _, child := range root.Parts {
		if fn, mt, found := FindAttachment(child, attachmentID); found {
			return fn, mt, true
		}
	}
	return "", "", false
}

// AttachmentName is the download name used when the tree has no match.
func AttachmentName(attachmentID string) string {
	return "attachment-" + attachmentID
}

// DecodeBase64URL decodes URL-safe base64 with or without padding.
func DecodeBase64URL(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
