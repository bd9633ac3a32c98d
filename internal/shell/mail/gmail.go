package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	coremail "github.com/dochero/dochero/internal/core/mail"
)

// GmailBaseURL is the Gmail API for the authenticated user.
const GmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// GmailClient reads a mailbox through the Gmail REST API.
type GmailClient struct {
	api apiClient
}

// NewGmailClient creates a client. An empty baseURL uses GmailBaseURL.
func NewGmailClient(baseURL string, httpClient *http.Client) *GmailClient {
	if baseURL == "" {
		baseURL = GmailBaseURL
	}
	return &GmailClient{api: newAPIClient(baseURL, httpClient)}
}

// GmailMessage is a full-format message. Raw keeps the provider JSON for
// forwarding.
type GmailMessage struct {
	Raw          json.RawMessage
	ID           string
	InternalDate int64
	Payload      coremail.Part
}

// Profile returns the mailbox address.
func (c *GmailClient) Profile(ctx context.Context, accessToken string) (string, error) {
	var out struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := c.api.getJSON(ctx, accessToken, "/profile", nil, &out); err != nil {
		return "", err
	}
	return out.EmailAddress, nil
}

// ListMessageIDs returns up to coremail.PageSize message ids matching q.
func (c *GmailClient) ListMessageIDs(ctx context.Context, accessToken, q string) ([]string, error) {
	query := url.Values{"maxResults": {strconv.Itoa(coremail.PageSize)}}
	if q != "" {
		query.Set("q", q)
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.api.getJSON(ctx, accessToken, "/messages", query, &out); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.Messages))
	for _, m := range out.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetMessage fetches a message in full format.
func (c *GmailClient) GetMessage(ctx context.Context, accessToken, id string) (*GmailMessage, error) {
	body, err := c.api.get(ctx, accessToken, "/messages/"+url.PathEscape(id), url.Values{"format": {"full"}})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ID           string        `json:"id"`
		InternalDate string        `json:"internalDate"`
		Payload      coremail.Part `json:"payload"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &GmailMessage{
		Raw:          body,
		ID:           parsed.ID,
		InternalDate: coremail.InternalDateMS(parsed.InternalDate),
		Payload:      parsed.Payload,
	}, nil
}

// GetAttachment fetches and decodes an attachment body.
func (c *GmailClient) GetAttachment(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error) {
	var out struct {
		Data string `json:"data"`
	}
	path := "/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)
	if err := c.api.getJSON(ctx, accessToken, path, nil, &out); err != nil {
		return nil, err
	}
	data, err := coremail.DecodeBase64URL(out.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}
