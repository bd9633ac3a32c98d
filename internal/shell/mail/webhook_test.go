package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dochero/dochero/internal/core/domain"
)

func fastWebhook(url string) WebhookConfig {
	return WebhookConfig{URL: url, Timeout: time.Second, RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond}
}

func TestWebhookForwarder_PostsDelivery(t *testing.T) {
	var got Delivery
	var deliveryID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		deliveryID = r.Header.Get("X-Delivery-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	fwd := NewForwarder(fastWebhook(srv.URL), nil)
	err := fwd.Forward(context.Background(), Delivery{UserID: "user-1", Provider: domain.ProviderGmail, Message: json.RawMessage(`{"id":"m1"}`)})
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, domain.ProviderGmail, got.Provider)
	assert.JSONEq(t, `{"id":"m1"}`, string(got.Message))
	assert.Len(t, deliveryID, 36)
}

func TestWebhookForwarder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fwd := NewWebhookForwarder(fastWebhook(srv.URL), nil)
	require.NoError(t, fwd.Forward(context.Background(), Delivery{UserID: "u", Provider: domain.ProviderOutlook}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookForwarder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	fwd := NewWebhookForwarder(fastWebhook(srv.URL), nil)
	err := fwd.Forward(context.Background(), Delivery{UserID: "u", Provider: domain.ProviderGmail})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad payload")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewForwarder_NoURL(t *testing.T) {
	fwd := NewForwarder(WebhookConfig{}, nil)

	assert.IsType(t, NoOpForwarder{}, fwd)
	assert.NoError(t, fwd.Forward(context.Background(), Delivery{}))
}

// =============================================================================
// Token Lifetime Tests
// =============================================================================

func TestLifetime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 10*time.Minute, Lifetime(&oauth2.Token{ExpiresIn: 600}, now))
	assert.Equal(t, 5*time.Minute, Lifetime(&oauth2.Token{Expiry: now.Add(5 * time.Minute)}, now))
	assert.Zero(t, Lifetime(&oauth2.Token{Expiry: now.Add(-time.Minute)}, now))
	assert.Zero(t, Lifetime(&oauth2.Token{}, now))

	raw := (&oauth2.Token{}).WithExtra(map[string]any{"expires_in": float64(3599)})
	assert.Equal(t, 3599*time.Second, Lifetime(raw, now))
}

func TestOAuthProvider_EmptyInputs(t *testing.T) {
	o := NewGoogleOAuth(OAuthConfig{ClientID: "cid"})

	_, err := o.Exchange(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCode)

	_, err = o.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)

	assert.Equal(t, domain.ProviderGmail, o.Provider())
}
