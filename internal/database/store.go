package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// AddSubscription inserts a new subscription and returns its id.
	// LastHash is reset and both timestamps are set to now.
	AddSubscription(ctx context.Context, sub *Subscription) (int64, error)

	// ListSubscriptions returns the subscriptions owned by userID, ordered by id.
	ListSubscriptions(ctx context.Context, userID int64) ([]Subscription, error)

	// ListAllSubscriptions returns every subscription, ordered by id.
	ListAllSubscriptions(ctx context.Context) ([]Subscription, error)

	// DeleteSubscription removes subscription id if it belongs to userID.
	// It reports whether a row was removed. The subscription's meta keys go with it.
	DeleteSubscription(ctx context.Context, userID, id int64) (bool, error)

	// DeleteAllSubscriptions removes every subscription owned by userID and returns the count.
	DeleteAllSubscriptions(ctx context.Context, userID int64) (int64, error)

	// UpdateLastHash stores a new fingerprint for a subscription and bumps updated_at.
	// It reports false if the subscription no longer exists.
	UpdateLastHash(ctx context.Context, id int64, hash string) (bool, error)

	// GetMeta returns the value stored under key and whether it exists.
	GetMeta(ctx context.Context, key string) (string, bool, error)

	// SetMeta inserts or replaces a meta value.
	SetMeta(ctx context.Context, key, value string) error

	// DeleteMetaPrefix removes every meta key starting with prefix.
	DeleteMetaPrefix(ctx context.Context, prefix string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

const subscriptionColumns = `id, user_id, city_from_id, city_to_id, from_name, to_name,
        date_str, dep_from_hhmm, dep_to_hhmm, last_hash, created_at, updated_at`

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) AddSubscription(ctx context.Context, sub *Subscription) (int64, error) {
	if sub == nil {
		return 0, fmt.Errorf("cannot save nil subscription")
	}
	if sub.UserID == 0 {
		return 0, fmt.Errorf("subscription must have a non-zero user_id")
	}
	if sub.CityFromID == "" || sub.CityToID == "" {
		return 0, fmt.Errorf("subscription must have both city ids")
	}

	ts := s.now().Unix()
	sub.CreatedAt = ts
	sub.UpdatedAt = ts
	sub.LastHash = ""

	query := `
        INSERT INTO subscriptions (user_id, city_from_id, city_to_id, from_name, to_name,
            date_str, dep_from_hhmm, dep_to_hhmm, last_hash, created_at, updated_at)
        VALUES (:user_id, :city_from_id, :city_to_id, :from_name, :to_name,
            :date_str, :dep_from_hhmm, :dep_to_hhmm, :last_hash, :created_at, :updated_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving subscription", "user_id", sub.UserID, "error", err)
		return 0, fmt.Errorf("failed to save subscription for user %d: %w", sub.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.logger.ErrorContext(ctx, "Could not retrieve last insert ID after saving subscription",
			"user_id", sub.UserID, "error", err)
		return 0, fmt.Errorf("failed to read subscription id: %w", err)
	}
	sub.ID = id

	s.logger.DebugContext(ctx, "Subscription saved successfully", "user_id", sub.UserID, "subscription_id", id)
	return id, nil
}

func (s *sqlxStore) ListSubscriptions(ctx context.Context, userID int64) ([]Subscription, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var subs []Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? ORDER BY id ASC`

	err := s.db.SelectContext(ctx, &subs, query, userID)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing subscriptions",
			"user_id", userID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing subscriptions", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list subscriptions for user %d: %w", userID, err)
	}

	return subs, nil
}

func (s *sqlxStore) ListAllSubscriptions(ctx context.Context) ([]Subscription, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var subs []Subscription
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY id ASC`

	err := s.db.SelectContext(ctx, &subs, query)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing all subscriptions", "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing all subscriptions", "error", err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched all subscriptions", "count", len(subs))
	return subs, nil
}

func (s *sqlxStore) DeleteSubscription(ctx context.Context, userID, id int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for deleting subscription",
			"user_id", userID, "subscription_id", id, "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	result, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting subscription", "user_id", userID, "subscription_id", id, "error", err)
		return false, fmt.Errorf("failed to delete subscription %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := deleteMetaPrefix(ctx, tx, SubscriptionMetaPrefix(id)); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "subscription_id", id, "error", err)
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Deleted subscription", "user_id", userID, "subscription_id", id)
	return true, nil
}

func (s *sqlxStore) DeleteAllSubscriptions(ctx context.Context, userID int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for deleting subscriptions", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM subscriptions WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to list subscriptions for user %d: %w", userID, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting subscriptions", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to delete subscriptions for user %d: %w", userID, err)
	}
	removed, _ := result.RowsAffected()

	for _, id := range ids {
		if err := deleteMetaPrefix(ctx, tx, SubscriptionMetaPrefix(id)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Deleted all subscriptions of user", "user_id", userID, "count", removed)
	return removed, nil
}

func (s *sqlxStore) UpdateLastHash(ctx context.Context, id int64, hash string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_hash = ?, updated_at = ? WHERE id = ?`,
		hash, s.now().Unix(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating last hash", "subscription_id", id, "error", err)
		return false, fmt.Errorf("failed to update last hash of subscription %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *sqlxStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM meta WHERE key = ?`, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while reading meta", "key", key, "error", err)
		return "", false, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error reading meta", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, true, nil
}

func (s *sqlxStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error writing meta", "key", key, "error", err)
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

func (s *sqlxStore) DeleteMetaPrefix(ctx context.Context, prefix string) error {
	return deleteMetaPrefix(ctx, s.db, prefix)
}

// deleteMetaPrefix compares with substr instead of LIKE so that '_' and '%'
// in the prefix are taken literally.
func deleteMetaPrefix(ctx context.Context, ex sqlx.ExecerContext, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("meta prefix cannot be empty")
	}
	_, err := ex.ExecContext(ctx, `DELETE FROM meta WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete meta with prefix %q: %w", prefix, err)
	}
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}
