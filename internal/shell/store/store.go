package store

import (
	"context"

	"github.com/dochero/dochero/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for mail intake.
type Store interface {
	// Token operations
	CreateToken(ctx context.Context, tok *domain.EmailToken) error
	GetToken(ctx context.Context, id int64) (*domain.EmailToken, error)
	ListTokensByProvider(ctx context.Context, provider domain.Provider) ([]domain.EmailToken, error)
	ListTokensByUser(ctx context.Context, userID string, provider domain.Provider) ([]domain.EmailToken, error)
	UpdateToken(ctx context.Context, tok *domain.EmailToken) error
	SetLastSync(ctx context.Context, id int64, lastSyncMS int64) error

	// SetSubjectFilter sets the subject filter on the user's tokens of the
	// provider, or only on tokenID when it is non-nil, and returns the
	// updated rows. An empty filter clears it.
	SetSubjectFilter(ctx context.Context, userID string, provider domain.Provider, tokenID *int64, filter string) ([]domain.EmailToken, error)

	// Seen message operations
	IsSeen(ctx context.Context, userID, messageID string) (bool, error)
	MarkSeen(ctx context.Context, userID, messageID string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}
