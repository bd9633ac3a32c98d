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

// GraphBaseURL is the Microsoft Graph v1.0 API.
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphClient reads an Outlook inbox through Microsoft Graph.
type GraphClient struct {
	api apiClient
}

// NewGraphClient creates a client. An empty baseURL uses GraphBaseURL.
func NewGraphClient(baseURL string, httpClient *http.Client) *GraphClient {
	if baseURL == "" {
		baseURL = GraphBaseURL
	}
	return &GraphClient{api: newAPIClient(baseURL, httpClient)}
}

// GraphMessage is a message with its attachments expanded.
type GraphMessage struct {
	Raw        json.RawMessage
	ID         string
	ReceivedMS int64
}

// ListMessageIDs returns up to coremail.PageSize inbox message ids received
// after afterMS, oldest first.
func (c *GraphClient) ListMessageIDs(ctx context.Context, accessToken string, afterMS int64) ([]string, error) {
	query := url.Values{
		"$top":     {strconv.Itoa(coremail.PageSize)},
		"$select":  {"id,receivedDateTime"},
		"$orderby": {"receivedDateTime asc"},
	}
	if filter := coremail.GraphFilter(afterMS); filter != "" {
		query.Set("$filter", filter)
	}

	var out struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := c.api.getJSON(ctx, accessToken, "/me/mailFolders/Inbox/messages", query, &out); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.Value))
	for _, m := range out.Value {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetMessage fetches one message with attachments.
func (c *GraphClient) GetMessage(ctx context.Context, accessToken, id string) (*GraphMessage, error) {
	body, err := c.api.get(ctx, accessToken, "/me/messages/"+url.PathEscape(id), url.Values{"$expand": {"attachments"}})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ID               string `json:"id"`
		ReceivedDateTime string `json:"receivedDateTime"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &GraphMessage{
		Raw:        body,
		ID:         parsed.ID,
		ReceivedMS: coremail.ReceivedMS(parsed.ReceivedDateTime),
	}, nil
}
