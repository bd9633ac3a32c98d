package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dochero/dochero/internal/core/crypto"
	"github.com/dochero/dochero/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestToken(t *testing.T, store Store, userID string, provider domain.Provider) *domain.EmailToken {
	t.Helper()
	tok, err := domain.NewEmailToken(userID, provider, "access-"+userID, "refresh-"+userID, time.Hour, testNow)
	require.NoError(t, err)
	require.NoError(t, store.CreateToken(context.Background(), tok))
	return tok
}

// =============================================================================
// Token CRUD Tests
// =============================================================================

func TestCreateToken_AssignsID(t *testing.T) {
	s := setupTestStore(t)

	a := createTestToken(t, s, "user-1", domain.ProviderGmail)
	b := createTestToken(t, s, "user-1", domain.ProviderGmail)

	assert.NotZero(t, a.ID)
	assert.Greater(t, b.ID, a.ID)
}

func TestGetToken_RoundTripsFields(t *testing.T) {
	s := setupTestStore(t)
	tok := createTestToken(t, s, "user-1", domain.ProviderOutlook)

	got, err := s.GetToken(context.Background(), tok.ID)
	require.NoError(t, err)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, domain.ProviderOutlook, got.Provider)
	assert.Equal(t, "access-user-1", got.AccessToken)
	assert.Equal(t, "refresh-user-1", got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, testNow.Add(time.Hour).Equal(*got.ExpiresAt))
	assert.True(t, testNow.Equal(got.CreatedAt))
	assert.Zero(t, got.LastSyncMS)
	assert.Empty(t, got.Email)
}

func TestGetToken_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetToken(context.Background(), 42)

	assert.ErrorIs(t, err, ErrNotFound)
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "42", storeErr.ID)
}

func TestListTokensByProvider(t *testing.T) {
	s := setupTestStore(t)
	createTestToken(t, s, "user-1", domain.ProviderGmail)
	createTestToken(t, s, "user-2", domain.ProviderOutlook)
	createTestToken(t, s, "user-3", domain.ProviderGmail)

	gmail, err := s.ListTokensByProvider(context.Background(), domain.ProviderGmail)
	require.NoError(t, err)

	require.Len(t, gmail, 2)
	assert.Equal(t, "user-1", gmail[0].UserID)
	assert.Equal(t, "user-3", gmail[1].UserID)
}

func TestListTokensByUser(t *testing.T) {
	s := setupTestStore(t)
	createTestToken(t, s, "user-1", domain.ProviderGmail)
	createTestToken(t, s, "user-1", domain.ProviderOutlook)
	createTestToken(t, s, "user-2", domain.ProviderGmail)

	got, err := s.ListTokensByUser(context.Background(), "user-1", domain.ProviderGmail)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProviderGmail, got[0].Provider)

	none, err := s.ListTokensByUser(context.Background(), "nobody", domain.ProviderGmail)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tok := createTestToken(t, s, "user-1", domain.ProviderGmail)

	tok.ApplyRefresh("new-access", "", 30*time.Minute, testNow.Add(time.Hour))
	tok.Email = "me@example.com"
	require.NoError(t, s.UpdateToken(ctx, tok))

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "refresh-user-1", got.RefreshToken)
	assert.Equal(t, "me@example.com", got.Email)
	assert.True(t, testNow.Add(90*time.Minute).Equal(*got.ExpiresAt))
}

func TestUpdateToken_NotFound(t *testing.T) {
	s := setupTestStore(t)
	tok := &domain.EmailToken{ID: 99, UserID: "u", Provider: domain.ProviderGmail, AccessToken: "a"}

	err := s.UpdateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLastSync(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tok := createTestToken(t, s, "user-1", domain.ProviderGmail)

	require.NoError(t, s.SetLastSync(ctx, tok.ID, 1700000000123))

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), got.LastSyncMS)

	assert.ErrorIs(t, s.SetLastSync(ctx, 999, 1), ErrNotFound)
}

// =============================================================================
// Subject Filter Tests
// =============================================================================

func TestSetSubjectFilter_AllUserTokens(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestToken(t, s, "user-1", domain.ProviderGmail)
	createTestToken(t, s, "user-1", domain.ProviderGmail)
	other := createTestToken(t, s, "user-2", domain.ProviderGmail)

	updated, err := s.SetSubjectFilter(ctx, "user-1", domain.ProviderGmail, nil, "Invoice")
	require.NoError(t, err)

	require.Len(t, updated, 2)
	for _, tok := range updated {
		assert.Equal(t, "Invoice", tok.SubjectFilter)
	}
	untouched, err := s.GetToken(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.SubjectFilter)
}

func TestSetSubjectFilter_SingleToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	first := createTestToken(t, s, "user-1", domain.ProviderGmail)
	second := createTestToken(t, s, "user-1", domain.ProviderGmail)

	updated, err := s.SetSubjectFilter(ctx, "user-1", domain.ProviderGmail, &second.ID, "Receipt")
	require.NoError(t, err)

	require.Len(t, updated, 1)
	assert.Equal(t, second.ID, updated[0].ID)
	got, err := s.GetToken(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SubjectFilter)
}

func TestSetSubjectFilter_Clear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestToken(t, s, "user-1", domain.ProviderGmail)

	_, err := s.SetSubjectFilter(ctx, "user-1", domain.ProviderGmail, nil, "Invoice")
	require.NoError(t, err)
	updated, err := s.SetSubjectFilter(ctx, "user-1", domain.ProviderGmail, nil, "")
	require.NoError(t, err)

	require.Len(t, updated, 1)
	assert.Empty(t, updated[0].SubjectFilter)
}

// =============================================================================
// Seen Message Tests
// =============================================================================

func TestMarkSeen_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seen, err := s.IsSeen(ctx, "user-1", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "user-1", "msg-1"))
	require.NoError(t, s.MarkSeen(ctx, "user-1", "msg-1"))

	seen, err = s.IsSeen(ctx, "user-1", "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.IsSeen(ctx, "user-2", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen, "seen markers are per user")
}

// =============================================================================
// Encryption Tests
// =============================================================================

func TestTokensSealedAtRest(t *testing.T) {
	key, err := crypto.DeriveKey("master-secret")
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	s := setupTestStore(t, WithSealer(sealer))
	ctx := context.Background()

	tok := createTestToken(t, s, "user-1", domain.ProviderGmail)

	var raw struct {
		Access  string  `db:"access_token"`
		Refresh *string `db:"refresh_token"`
	}
	require.NoError(t, s.db.Get(&raw, `SELECT access_token, refresh_token FROM email_tokens WHERE id = ?`, tok.ID))
	assert.True(t, strings.HasPrefix(raw.Access, "enc:v1:"))
	require.NotNil(t, raw.Refresh)
	assert.NotContains(t, *raw.Refresh, "refresh-user-1")

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-user-1", got.AccessToken)
	assert.Equal(t, "refresh-user-1", got.RefreshToken)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Commit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx Store) error {
		tok := createTestToken(t, tx, "user-1", domain.ProviderGmail)
		return tx.MarkSeen(ctx, tok.UserID, "msg-1")
	})
	require.NoError(t, err)

	tokens, err := s.ListTokensByProvider(ctx, domain.ProviderGmail)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestWithTx_Rollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		createTestToken(t, tx, "user-1", domain.ProviderGmail)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	tokens, err := s.ListTokensByProvider(ctx, domain.ProviderGmail)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
