package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/studyhub/account-service/internal/metrics"
	"github.com/studyhub/account-service/shared/cqrs"
	"github.com/studyhub/account-service/shared/events"
	"github.com/studyhub/account-service/shared/models"
	"github.com/studyhub/account-service/shared/utils"
)

// maxTokenAttempts bounds how many fresh tokens Register tries when the
// token index rejects an insert.
const maxTokenAttempts = 3

type AccountWriter interface {
	Create(ctx context.Context, account *models.Account) error
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.Account, error)
	UpdateRoleByUsername(ctx context.Context, username string, role models.Role) (*models.Account, error)
}

type AccountReader interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	CacheAccount(ctx context.Context, account *models.Account) error
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Authorizer resolves a caller token to a moderator account.
type Authorizer interface {
	RequireModerator(ctx context.Context, token string) (*models.AccountView, error)
}

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	writeRepo AccountWriter
	readRepo  AccountReader
	publisher EventPublisher
	authz     Authorizer
	logger    logrus.FieldLogger
}

func NewAccountCommandService(
	writeRepo AccountWriter,
	readRepo AccountReader,
	publisher EventPublisher,
	authz Authorizer,
	logger logrus.FieldLogger,
) *AccountCommandService {
	return &AccountCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		authz:     authz,
		logger:    logger.WithField("component", "account_commands"),
	}
}

// Register creates a ghost account and returns its session view. Credential
// format is checked by the caller.
func (s *AccountCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (*models.SessionView, error) {
	defer metrics.Instrument("register")()

	_, err := s.readRepo.GetByUsername(ctx, cmd.Username)
	if err == nil {
		return nil, models.ErrUsernameTaken
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     cmd.Username,
		PasswordHash: hash,
		Role:         models.RoleGhost,
	}
	for attempt := 1; ; attempt++ {
		account.Token, err = utils.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		err = s.writeRepo.Create(ctx, account)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrTokenConflict) {
			return nil, err
		}
		if attempt == maxTokenAttempts {
			return nil, fmt.Errorf("no unique token after %d attempts: %w", attempt, err)
		}
		s.logger.WithField("attempt", attempt).Warn("token collision, regenerating")
	}

	if err := s.readRepo.CacheAccount(ctx, account); err != nil {
		s.logger.WithError(err).Warn("failed to cache new account")
	}
	metrics.RegistrationsTotal.Inc()

	if err := s.publisher.Publish(ctx, events.AccountEventsStream, events.AccountRegistered, events.AccountRegisteredEvent{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      string(account.Role),
	}); err != nil {
		s.logger.WithError(err).Warn("failed to publish account.registered event")
	}

	return models.NewSessionView(account), nil
}

// UpdateRole lets a moderator move an account between the student and ghost
// roles. The caller is checked before any of the parameters.
func (s *AccountCommandService) UpdateRole(ctx context.Context, cmd cqrs.UpdateRoleCommand) error {
	moderator, err := s.authz.RequireModerator(ctx, cmd.CallerToken)
	if err != nil {
		return err
	}
	if cmd.AccountID == "" || cmd.NewRole == "" {
		return models.ErrMissingParameters
	}
	role := models.Role(cmd.NewRole)
	if !role.Assignable() {
		return models.ErrRoleNotAssignable
	}
	id, err := uuid.Parse(cmd.AccountID)
	if err != nil {
		return models.ErrUnknownAccountID
	}

	updated, err := s.writeRepo.UpdateRole(ctx, id.String(), role)
	if errors.Is(err, models.ErrAccountNotFound) {
		return models.ErrUnknownAccountID
	}
	if err != nil {
		return err
	}

	if err := s.readRepo.CacheAccount(ctx, updated); err != nil {
		return err
	}
	metrics.RoleUpdatesTotal.WithLabelValues(string(role)).Inc()

	if err := s.publisher.Publish(ctx, events.AccountEventsStream, events.AccountRoleUpdated, events.AccountRoleUpdatedEvent{
		AccountID:   updated.ID,
		Username:    updated.Username,
		NewRole:     string(updated.Role),
		ModeratorID: moderator.ID,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to publish account.role_updated event")
	}
	return nil
}

// GrantModerator promotes an existing account. It is reachable only from the
// operator CLI.
func (s *AccountCommandService) GrantModerator(ctx context.Context, cmd cqrs.GrantModeratorCommand) (*models.AccountView, error) {
	if cmd.Username == "" {
		return nil, models.ErrMissingParameters
	}
	updated, err := s.writeRepo.UpdateRoleByUsername(ctx, cmd.Username, models.RoleModerator)
	if err != nil {
		return nil, err
	}

	if err := s.readRepo.CacheAccount(ctx, updated); err != nil {
		return nil, err
	}
	metrics.RoleUpdatesTotal.WithLabelValues(string(models.RoleModerator)).Inc()

	if err := s.publisher.Publish(ctx, events.AccountEventsStream, events.AccountRoleUpdated, events.AccountRoleUpdatedEvent{
		AccountID: updated.ID,
		Username:  updated.Username,
		NewRole:   string(updated.Role),
	}); err != nil {
		s.logger.WithError(err).Warn("failed to publish account.role_updated event")
	}
	return models.NewAccountView(updated), nil
}

// HandleAccountEvent writes an audit line for every account event read back
// from the stream.
func (s *AccountCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event":     event.Type,
		"published": event.Timestamp,
	})

	switch event.Type {
	case events.AccountRegistered:
		data, err := events.Decode[events.AccountRegisteredEvent](event)
		if err != nil {
			return err
		}
		entry.WithFields(logrus.Fields{
			"account_id": data.AccountID,
			"username":   data.Username,
			"role":       data.Role,
		}).Info("audit: account registered")
	case events.AccountRoleUpdated:
		data, err := events.Decode[events.AccountRoleUpdatedEvent](event)
		if err != nil {
			return err
		}
		fields := logrus.Fields{
			"account_id": data.AccountID,
			"username":   data.Username,
			"new_role":   data.NewRole,
		}
		if data.ModeratorID != "" {
			fields["moderator_id"] = data.ModeratorID
		} else {
			fields["moderator_id"] = "operator"
		}
		entry.WithFields(fields).Info("audit: role updated")
	default:
		entry.Debug("ignoring unknown account event")
	}
	return nil
}
