package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dochero/dochero/internal/core/crypto"
	"github.com/dochero/dochero/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn pairs an executor with the sealer used for token columns.
type conn struct {
	exec   executor
	sealer *crypto.Sealer
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sqlx.DB
	sealer *crypto.Sealer
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithSealer encrypts access and refresh tokens at rest.
func WithSealer(s *crypto.Sealer) Option {
	return func(st *SQLiteStore) {
		st.sealer = s
	}
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string, opts ...Option) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sqlx.Open("sqlite3", dsn+sep+"_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.sealer == nil {
		s.sealer, _ = crypto.NewSealer(nil)
	}
	return s, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *SQLiteStore) conn() conn {
	return conn{exec: s.db, sealer: s.sealer}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Token Operations
// =============================================================================

// tokenRow represents an email_tokens row in the database.
type tokenRow struct {
	ID            int64   `db:"id"`
	UserID        string  `db:"user_id"`
	Provider      string  `db:"provider"`
	AccessToken   string  `db:"access_token"`
	RefreshToken  *string `db:"refresh_token"`
	ExpiresAt     *string `db:"expires_at"`
	LastSyncMS    *int64  `db:"last_sync_ms"`
	Email         *string `db:"email"`
	SubjectFilter *string `db:"subject_filter"`
	CreatedAt     string  `db:"created_at"`
}

func (s *SQLiteStore) CreateToken(ctx context.Context, tok *domain.EmailToken) error {
	return createToken(ctx, s.conn(), tok)
}

func (s *SQLiteStore) GetToken(ctx context.Context, id int64) (*domain.EmailToken, error) {
	return getToken(ctx, s.conn(), id)
}

func (s *SQLiteStore) ListTokensByProvider(ctx context.Context, provider domain.Provider) ([]domain.EmailToken, error) {
	return listTokensByProvider(ctx, s.conn(), provider)
}

func (s *SQLiteStore) ListTokensByUser(ctx context.Context, userID string, provider domain.Provider) ([]domain.EmailToken, error) {
	return listTokensByUser(ctx, s.conn(), userID, provider)
}

func (s *SQLiteStore) UpdateToken(ctx context.Context, tok *domain.EmailToken) error {
	return updateToken(ctx, s.conn(), tok)
}

func (s *SQLiteStore) SetLastSync(ctx context.Context, id int64, lastSyncMS int64) error {
	return setLastSync(ctx, s.conn(), id, lastSyncMS)
}

func (s *SQLiteStore) SetSubjectFilter(ctx context.Context, userID string, provider domain.Provider, tokenID *int64, filter string) ([]domain.EmailToken, error) {
	return setSubjectFilter(ctx, s.conn(), userID, provider, tokenID, filter)
}

// =============================================================================
// Seen Message Operations
// =============================================================================

func (s *SQLiteStore) IsSeen(ctx context.Context, userID, messageID string) (bool, error) {
	return isSeen(ctx, s.conn(), userID, messageID)
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, userID, messageID string) error {
	return markSeen(ctx, s.conn(), userID, messageID)
}

// =============================================================================
// Transaction Support
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx, sealer: s.sealer}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx     *sqlx.Tx
	sealer *crypto.Sealer
}

func (s *txSQLiteStore) conn() conn {
	return conn{exec: s.tx, sealer: s.sealer}
}

func (s *txSQLiteStore) CreateToken(ctx context.Context, tok *domain.EmailToken) error {
	return createToken(ctx, s.conn(), tok)
}

func (s *txSQLiteStore) GetToken(ctx context.Context, id int64) (*domain.EmailToken, error) {
	return getToken(ctx, s.conn(), id)
}

func (s *txSQLiteStore) ListTokensByProvider(ctx context.Context, provider domain.Provider) ([]domain.EmailToken, error) {
	return listTokensByProvider(ctx, s.conn(), provider)
}

func (s *txSQLiteStore) ListTokensByUser(ctx context.Context, userID string, provider domain.Provider) ([]domain.EmailToken, error) {
	return listTokensByUser(ctx, s.conn(), userID, provider)
}

func (s *txSQLiteStore) UpdateToken(ctx context.Context, tok *domain.EmailToken) error {
	return updateToken(ctx, s.conn(), tok)
}

func (s *txSQLiteStore) SetLastSync(ctx context.Context, id int64, lastSyncMS int64) error {
	return setLastSync(ctx, s.conn(), id, lastSyncMS)
}

func (s *txSQLiteStore) SetSubjectFilter(ctx context.Context, userID string, provider domain.Provider, tokenID *int64, filter string) ([]domain.EmailToken, error) {
	return setSubjectFilter(ctx, s.conn(), userID, provider, tokenID, filter)
}

func (s *txSQLiteStore) IsSeen(ctx context.Context, userID, messageID string) (bool, error) {
	return isSeen(ctx, s.conn(), userID, messageID)
}

func (s *txSQLiteStore) MarkSeen(ctx context.Context, userID, messageID string) error {
	return markSeen(ctx, s.conn(), userID, messageID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Token Queries
// =============================================================================

const tokenColumns = `id, user_id, provider, access_token, refresh_token, expires_at,
	last_sync_ms, email, subject_filter, created_at`

func createToken(ctx context.Context, c conn, tok *domain.EmailToken) error {
	row, err := tokenToRow(c.sealer, tok)
	if err != nil {
		return NewStoreError("CreateToken", "email_token", "", err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO email_tokens (
			user_id, provider, access_token, refresh_token, expires_at,
			last_sync_ms, email, subject_filter, created_at
		) VALUES (
			:user_id, :provider, :access_token, :refresh_token, :expires_at,
			:last_sync_ms, :email, :subject_filter, :created_at
		)`

	res, err := c.exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("CreateToken", "email_token", "", err.Error(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return NewStoreError("CreateToken", "email_token", "", err.Error(), err)
	}
	tok.ID = id
	return nil
}

func getToken(ctx context.Context, c conn, id int64) (*domain.EmailToken, error) {
	idStr := strconv.FormatInt(id, 10)

	var row tokenRow
	err := c.exec.GetContext(ctx, &row, `SELECT `+tokenColumns+` FROM email_tokens WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetToken", "email_token", idStr, "token not found", ErrNotFound)
		}
		return nil, NewStoreError("GetToken", "email_token", idStr, err.Error(), err)
	}

	tok, err := rowToToken(c.sealer, &row)
	if err != nil {
		return nil, NewStoreError("GetToken", "email_token", idStr, err.Error(), ErrInvalidData)
	}
	return tok, nil
}

func listTokensByProvider(ctx context.Context, c conn, provider domain.Provider) ([]domain.EmailToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM email_tokens WHERE provider = ? ORDER BY id`
	return selectTokens(ctx, c, "ListTokensByProvider", query, string(provider))
}

func listTokensByUser(ctx context.Context, c conn, userID string, provider domain.Provider) ([]domain.EmailToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM email_tokens WHERE user_id = ? AND provider = ? ORDER BY id`
	return selectTokens(ctx, c, "ListTokensByUser", query, userID, string(provider))
}

func selectTokens(ctx context.Context, c conn, op, query string, args ...any) ([]domain.EmailToken, error) {
	var rows []tokenRow
	if err := c.exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError(op, "email_token", "", err.Error(), err)
	}

	tokens := make([]domain.EmailToken, 0, len(rows))
	for i := range rows {
		tok, err := rowToToken(c.sealer, &rows[i])
		if err != nil {
			return nil, NewStoreError(op, "email_token", strconv.FormatInt(rows[i].ID, 10), err.Error(), ErrInvalidData)
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

func updateToken(ctx context.Context, c conn, tok *domain.EmailToken) error {
	idStr := strconv.FormatInt(tok.ID, 10)
	row, err := tokenToRow(c.sealer, tok)
	if err != nil {
		return NewStoreError("UpdateToken", "email_token", idStr, err.Error(), ErrInvalidData)
	}

	query := `
		UPDATE email_tokens SET
			access_token = :access_token,
			refresh_token = :refresh_token,
			expires_at = :expires_at,
			last_sync_ms = :last_sync_ms,
			email = :email,
			subject_filter = :subject_filter
		WHERE id = :id`

	res, err := c.exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateToken", "email_token", idStr, err.Error(), err)
	}
	return requireAffected(res, "UpdateToken", idStr)
}

func setLastSync(ctx context.Context, c conn, id int64, lastSyncMS int64) error {
	idStr := strconv.FormatInt(id, 10)
	res, err := c.exec.ExecContext(ctx, `UPDATE email_tokens SET last_sync_ms = ? WHERE id = ?`, lastSyncMS, id)
	if err != nil {
		return NewStoreError("SetLastSync", "email_token", idStr, err.Error(), err)
	}
	return requireAffected(res, "SetLastSync", idStr)
}

func setSubjectFilter(ctx context.Context, c conn, userID string, provider domain.Provider, tokenID *int64, filter string) ([]domain.EmailToken, error) {
	var value *string
	if filter != "" {
		value = &filter
	}

	where := `user_id = ? AND provider = ?`
	args := []any{userID, string(provider)}
	if tokenID != nil {
		where += ` AND id = ?`
		args = append(args, *tokenID)
	}

	updateArgs := append([]any{value}, args...)
	if _, err := c.exec.ExecContext(ctx, `UPDATE email_tokens SET subject_filter = ? WHERE `+where, updateArgs...); err != nil {
		return nil, NewStoreError("SetSubjectFilter", "email_token", "", err.Error(), err)
	}

	return selectTokens(ctx, c, "SetSubjectFilter", `SELECT `+tokenColumns+` FROM email_tokens WHERE `+where+` ORDER BY id`, args...)
}

func requireAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return NewStoreError(op, "email_token", id, err.Error(), err)
	}
	if n == 0 {
		return NewStoreError(op, "email_token", id, "token not found", ErrNotFound)
	}
	return nil
}

// =============================================================================
// Seen Queries
// =============================================================================

func isSeen(ctx context.Context, c conn, userID, messageID string) (bool, error) {
	var n int
	err := c.exec.GetContext(ctx, &n, `SELECT COUNT(1) FROM email_seen WHERE user_id = ? AND message_id = ?`, userID, messageID)
	if err != nil {
		return false, NewStoreError("IsSeen", "email_seen", messageID, err.Error(), err)
	}
	return n > 0, nil
}

func markSeen(ctx context.Context, c conn, userID, messageID string) error {
	query := `
		INSERT INTO email_seen (user_id, message_id, seen_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, message_id) DO NOTHING`
	if _, err := c.exec.ExecContext(ctx, query, userID, messageID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return NewStoreError("MarkSeen", "email_seen", messageID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func tokenToRow(sealer *crypto.Sealer, tok *domain.EmailToken) (map[string]any, error) {
	access, err := sealer.Seal(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := sealer.Seal(tok.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	var expires *string
	if tok.ExpiresAt != nil && !tok.ExpiresAt.IsZero() {
		s := tok.ExpiresAt.UTC().Format(time.RFC3339)
		expires = &s
	}
	var lastSync *int64
	if tok.LastSyncMS != 0 {
		ms := tok.LastSyncMS
		lastSync = &ms
	}

	createdAt := tok.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return map[string]any{
		"id":             tok.ID,
		"user_id":        tok.UserID,
		"provider":       string(tok.Provider),
		"access_token":   access,
		"refresh_token":  nullable(refresh),
		"expires_at":     expires,
		"last_sync_ms":   lastSync,
		"email":          nullable(tok.Email),
		"subject_filter": nullable(tok.SubjectFilter),
		"created_at":     createdAt.UTC().Format(time.RFC3339),
	}, nil
}

func rowToToken(sealer *crypto.Sealer, row *tokenRow) (*domain.EmailToken, error) {
	access, err := sealer.Open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := sealer.Open(deref(row.RefreshToken))
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}

	tok := &domain.EmailToken{
		ID:            row.ID,
		UserID:        row.UserID,
		Provider:      domain.Provider(row.Provider),
		AccessToken:   access,
		RefreshToken:  refresh,
		Email:         deref(row.Email),
		SubjectFilter: deref(row.SubjectFilter),
	}
	if row.LastSyncMS != nil {
		tok.LastSyncMS = *row.LastSyncMS
	}
	if row.ExpiresAt != nil {
		if t, ok := domain.ParseTimestamp(*row.ExpiresAt); ok {
			tok.ExpiresAt = &t
		}
	}
	if t, ok := domain.ParseTimestamp(row.CreatedAt); ok {
		tok.CreatedAt = t
	}
	return tok, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
