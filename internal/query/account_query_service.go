package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/studyhub/account-service/internal/metrics"
	"github.com/studyhub/account-service/shared/cqrs"
	"github.com/studyhub/account-service/shared/models"
	"github.com/studyhub/account-service/shared/utils"
)

type AccountReader interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByToken(ctx context.Context, token string) (*models.AccountView, error)
	GetByTokenFromStore(ctx context.Context, token string) (*models.AccountView, error)
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.ListingView, error)
}

type AccountQueryService struct {
	readRepo AccountReader
	logger   logrus.FieldLogger
}

func NewAccountQueryService(readRepo AccountReader, logger logrus.FieldLogger) *AccountQueryService {
	return &AccountQueryService{
		readRepo: readRepo,
		logger:   logger.WithField("component", "account_queries"),
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming runs one bcrypt comparison against a throwaway hash so an
// unknown username costs as much as a wrong password.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = utils.HashPassword("unused-dummy-password")
	})
	utils.CheckPassword(password, dummyHash)
}

// Authenticate verifies a username/password pair. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *AccountQueryService) Authenticate(ctx context.Context, q cqrs.AuthenticateQuery) (*models.SessionView, error) {
	if q.Username == "" || q.Password == "" {
		return nil, models.ErrMissingParameters
	}
	defer metrics.Instrument("authenticate")()

	account, err := s.readRepo.GetByUsername(ctx, q.Username)
	if errors.Is(err, models.ErrAccountNotFound) {
		equalizeTiming(q.Password)
		metrics.AuthFailuresTotal.Inc()
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(q.Password, account.PasswordHash) {
		metrics.AuthFailuresTotal.Inc()
		s.logger.WithField("username", account.Username).Debug("password mismatch")
		return nil, models.ErrInvalidCredentials
	}
	return models.NewSessionView(account), nil
}

// GetByToken returns the account holding the token. Malformed tokens are
// rejected without a store lookup.
func (s *AccountQueryService) GetByToken(ctx context.Context, q cqrs.GetByTokenQuery) (*models.AccountView, error) {
	return lookupToken(ctx, q.Token, s.readRepo.GetByToken)
}

func lookupToken(ctx context.Context, token string, fetch func(context.Context, string) (*models.AccountView, error)) (*models.AccountView, error) {
	if !utils.IsTokenWellFormed(token) {
		return nil, models.ErrUnknownToken
	}
	view, err := fetch(ctx, token)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, models.ErrUnknownToken
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *AccountQueryService) Exists(ctx context.Context, q cqrs.ExistsQuery) (bool, error) {
	_, err := s.GetByToken(ctx, cqrs.GetByTokenQuery(q))
	if errors.Is(err, models.ErrUnknownToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListAccounts returns every student and ghost account, ordered by role.
func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.ListingView, error) {
	if _, err := s.RequireModerator(ctx, q.CallerToken); err != nil {
		return nil, err
	}
	views, err := s.readRepo.ListByRoles(ctx, models.ListedRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return views, nil
}

// RequireModerator resolves token and fails with ErrUnknownToken unless it
// belongs to a moderator. The role is read from PostgreSQL, never from the
// cache.
func (s *AccountQueryService) RequireModerator(ctx context.Context, token string) (*models.AccountView, error) {
	view, err := lookupToken(ctx, token, s.readRepo.GetByTokenFromStore)
	if err != nil {
		return nil, err
	}
	if view.Role != models.RoleModerator {
		return nil, models.ErrUnknownToken
	}
	return view, nil
}
