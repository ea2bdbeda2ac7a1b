package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/studyhub/account-service/shared/models"
	sharedredis "github.com/studyhub/account-service/shared/redis"
)

const accountTokenKeyPrefix = "account:token:"

// AccountReadRepository handles all read operations for accounts.
// Token lookups go to Redis first and fall back to PostgreSQL, warming the
// cache on every cold read. Listings, credential checks and authorization
// lookups always hit PostgreSQL.
type AccountReadRepository struct {
	db     *sql.DB
	cache  *sharedredis.ViewCache[models.AccountView]
	logger logrus.FieldLogger
}

func NewAccountReadRepository(db *sql.DB, redisClient *goredis.Client, ttl time.Duration, logger logrus.FieldLogger) *AccountReadRepository {
	return &AccountReadRepository{
		db:     db,
		cache:  sharedredis.NewViewCache[models.AccountView](redisClient, accountTokenKeyPrefix, ttl, logger),
		logger: logger.WithField("component", "account_read_repository"),
	}
}

// GetByUsername returns the full write model, password hash included, for a
// case-insensitive username match.
func (r *AccountReadRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(username) = LOWER($1)`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// GetByToken returns the AccountView for token, trying Redis first.
func (r *AccountReadRepository) GetByToken(ctx context.Context, token string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, token); ok {
		return view, nil
	}
	return r.GetByTokenFromStore(ctx, token)
}

// GetByTokenFromStore reads the account for token from PostgreSQL, skipping
// the cache read. Authorization decisions go through here so a cached role
// can never outlive a committed role change. The loaded row still warms the
// cache, versioned by updated_at so it never replaces a fresher entry.
func (r *AccountReadRepository) GetByTokenFromStore(ctx context.Context, token string) (*models.AccountView, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE token = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by token: %w", err)
	}

	view := models.NewAccountView(account)
	if _, err := r.cache.Set(ctx, token, view, account.UpdatedAt.UnixMicro()); err != nil {
		r.logger.WithError(err).Warn("failed to warm account cache")
	}
	return view, nil
}

// ListByRoles returns accounts holding any of roles, ordered by role then
// username. The result is never nil.
func (r *AccountReadRepository) ListByRoles(ctx context.Context, roles []models.Role) ([]models.ListingView, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	query := `
		SELECT id, username, role, first_name, last_name
		FROM accounts
		WHERE role = ANY($1)
		ORDER BY role ASC, username ASC
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	views := []models.ListingView{}
	for rows.Next() {
		var v models.ListingView
		if err := rows.Scan(&v.ID, &v.Username, &v.Role, &v.FirstName, &v.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return views, nil
}

// CacheAccount writes the view of a freshly committed account to Redis. When
// the write fails the entry is evicted instead, and an error is returned only
// if Redis could do neither.
func (r *AccountReadRepository) CacheAccount(ctx context.Context, account *models.Account) error {
	_, setErr := r.cache.Set(ctx, account.Token, models.NewAccountView(account), account.UpdatedAt.UnixMicro())
	if setErr == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, account.Token); err != nil {
		return fmt.Errorf("failed to refresh account cache: %w", errors.Join(setErr, err))
	}
	return nil
}
