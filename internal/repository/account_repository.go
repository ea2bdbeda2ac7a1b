package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/studyhub/account-service/shared/models"
)

const (
	uniqueViolation = "23505"

	usernameConstraint = "accounts_username_lower_key"
	tokenConstraint    = "accounts_token_key"
)

const accountColumns = `id, username, password_hash, token, role, first_name, last_name, patronymic, tg_id, study_group, created_at, updated_at`

// AccountWriteRepository handles all state-mutating operations for accounts.
// It operates exclusively against the PostgreSQL write store (source of truth).
type AccountWriteRepository struct {
	db *sql.DB
}

func NewAccountWriteRepository(db *sql.DB) *AccountWriteRepository {
	return &AccountWriteRepository{db: db}
}

// Create inserts account and fills in the store-assigned id and timestamps.
// A unique violation is reported as ErrUsernameTaken or ErrTokenConflict
// depending on which index rejected the row.
func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, token, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.Username, account.PasswordHash, account.Token, account.Role,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case usernameConstraint:
				return models.ErrUsernameTaken
			case tokenConstraint:
				return models.ErrTokenConflict
			}
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateRole sets the role of the account with the given id and returns the
// updated row.
func (r *AccountWriteRepository) UpdateRole(ctx context.Context, id string, role models.Role) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, role))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return account, nil
}

// UpdateRoleByUsername is the operator path used to promote moderators.
func (r *AccountWriteRepository) UpdateRoleByUsername(ctx context.Context, username string, role models.Role) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET role = $2, updated_at = NOW()
		WHERE LOWER(username) = LOWER($1)
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username, role))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Token, &a.Role,
		&a.FirstName, &a.LastName, &a.Patronymic, &a.TgID, &a.StudyGroup,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
