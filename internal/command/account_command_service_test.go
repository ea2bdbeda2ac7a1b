package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhub/account-service/shared/cqrs"
	"github.com/studyhub/account-service/shared/events"
	"github.com/studyhub/account-service/shared/models"
	"github.com/studyhub/account-service/shared/utils"
)

// ---- fakes ----

type fakeWriter struct {
	createFn       func(*models.Account) error
	updateRoleFn   func(id string, role models.Role) (*models.Account, error)
	updateByNameFn func(username string, role models.Role) (*models.Account, error)
	created        []*models.Account
}

func (f *fakeWriter) Create(_ context.Context, a *models.Account) error {
	if f.createFn != nil {
		if err := f.createFn(a); err != nil {
			return err
		}
	}
	a.ID = "5c2a53d1-7d0e-4c6b-9c3e-0f6f0f4d1a11"
	f.created = append(f.created, a)
	return nil
}

func (f *fakeWriter) UpdateRole(_ context.Context, id string, role models.Role) (*models.Account, error) {
	if f.updateRoleFn != nil {
		return f.updateRoleFn(id, role)
	}
	return nil, errors.New("not configured")
}

func (f *fakeWriter) UpdateRoleByUsername(_ context.Context, username string, role models.Role) (*models.Account, error) {
	if f.updateByNameFn != nil {
		return f.updateByNameFn(username, role)
	}
	return nil, errors.New("not configured")
}

type fakeReader struct {
	accounts  map[string]*models.Account
	lookupErr error
	cacheErr  error
	cached    map[string]models.Role
}

func newFakeReader() *fakeReader {
	return &fakeReader{accounts: map[string]*models.Account{}, cached: map[string]models.Role{}}
}

func (f *fakeReader) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if a, ok := f.accounts[username]; ok {
		return a, nil
	}
	return nil, models.ErrAccountNotFound
}

func (f *fakeReader) CacheAccount(_ context.Context, account *models.Account) error {
	if f.cacheErr != nil {
		return f.cacheErr
	}
	f.cached[account.Token] = account.Role
	return nil
}

type publishedEvent struct {
	stream, eventType string
	data              any
}

type fakePublisher struct {
	err       error
	published []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	f.published = append(f.published, publishedEvent{stream, eventType, data})
	return f.err
}

type fakeAuthorizer struct {
	moderator *models.AccountView
	err       error
}

func (f *fakeAuthorizer) RequireModerator(context.Context, string) (*models.AccountView, error) {
	return f.moderator, f.err
}

type fixture struct {
	svc       *AccountCommandService
	writer    *fakeWriter
	reader    *fakeReader
	publisher *fakePublisher
	authz     *fakeAuthorizer
	logs      *test.Hook
}

func newFixture() *fixture {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		writer:    &fakeWriter{},
		reader:    newFakeReader(),
		publisher: &fakePublisher{},
		authz:     &fakeAuthorizer{moderator: &models.AccountView{ID: "mod-id", Role: models.RoleModerator}},
		logs:      hook,
	}
	f.svc = NewAccountCommandService(f.writer, f.reader, f.publisher, f.authz, logger)
	return f
}

const targetID = "0b7f6c34-62f5-4c1b-8d1e-3d6b2f0c9a77"

// ---- Register ----

func TestRegister_CreatesGhostWithFreshToken(t *testing.T) {
	f := newFixture()

	session, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "Secr3t!pwd"})
	require.NoError(t, err)

	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, models.RoleGhost, session.Role)
	assert.True(t, utils.IsTokenWellFormed(session.Token))
	assert.Nil(t, session.FirstName)

	require.Len(t, f.writer.created, 1)
	stored := f.writer.created[0]
	assert.NotEqual(t, "Secr3t!pwd", stored.PasswordHash)
	assert.True(t, utils.CheckPassword("Secr3t!pwd", stored.PasswordHash))

	assert.Contains(t, f.reader.cached, session.Token)
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, events.AccountEventsStream, f.publisher.published[0].stream)
	assert.Equal(t, events.AccountRegistered, f.publisher.published[0].eventType)
}

func TestRegister_TokensDifferPerAccount(t *testing.T) {
	f := newFixture()
	a, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	b, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "bob", Password: "password1"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestRegister_UsernameTaken(t *testing.T) {
	f := newFixture()
	f.reader.accounts["ALICE"] = &models.Account{Username: "alice"}

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "ALICE", Password: "password1"})
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
	assert.Empty(t, f.writer.created)
	assert.Empty(t, f.publisher.published)
}

func TestRegister_RacingInsertHitsIndex(t *testing.T) {
	f := newFixture()
	f.writer.createFn = func(*models.Account) error { return models.ErrUsernameTaken }

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
}

func TestRegister_RetriesTokenCollision(t *testing.T) {
	f := newFixture()
	var tokens []string
	f.writer.createFn = func(a *models.Account) error {
		tokens = append(tokens, a.Token)
		if len(tokens) < 3 {
			return models.ErrTokenConflict
		}
		return nil
	}

	session, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, tokens[2], session.Token)
}

func TestRegister_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture()
	calls := 0
	f.writer.createFn = func(*models.Account) error {
		calls++
		return models.ErrTokenConflict
	}

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, models.ErrTokenConflict)
	assert.Equal(t, maxTokenAttempts, calls)
}

func TestRegister_StoreFailure(t *testing.T) {
	f := newFixture()
	f.reader.lookupErr = errors.New("connection refused")

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRegister_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("stream unavailable")

	_, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, f.logs.LastEntry().Level)
}

func TestRegister_CacheFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.reader.cacheErr = errors.New("redis down")

	session, err := f.svc.Register(context.Background(), cqrs.RegisterCommand{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Len(t, f.publisher.published, 1)
}

// ---- UpdateRole ----

func TestUpdateRole_Success(t *testing.T) {
	f := newFixture()
	f.writer.updateRoleFn = func(id string, role models.Role) (*models.Account, error) {
		return &models.Account{ID: id, Username: "bob", Token: "BOBTOKEN", Role: role}, nil
	}

	err := f.svc.UpdateRole(context.Background(), cqrs.UpdateRoleCommand{
		CallerToken: "MODTOKEN", AccountID: targetID, NewRole: "student",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]models.Role{"BOBTOKEN": models.RoleStudent}, f.reader.cached)
	require.Len(t, f.publisher.published, 1)
	payload := f.publisher.published[0].data.(events.AccountRoleUpdatedEvent)
	assert.Equal(t, "student", payload.NewRole)
	assert.Equal(t, "mod-id", payload.ModeratorID)
}

func TestUpdateRole_Failures(t *testing.T) {
	tests := []struct {
		name    string
		authErr error
		cmd     cqrs.UpdateRoleCommand
		repoErr error
		wantErr error
	}{
		{
			name:    "caller not moderator",
			authErr: models.ErrUnknownToken,
			cmd:     cqrs.UpdateRoleCommand{},
			wantErr: models.ErrUnknownToken,
		},
		{
			name:    "missing account id",
			cmd:     cqrs.UpdateRoleCommand{NewRole: "student"},
			wantErr: models.ErrMissingParameters,
		},
		{
			name:    "missing role",
			cmd:     cqrs.UpdateRoleCommand{AccountID: targetID},
			wantErr: models.ErrMissingParameters,
		},
		{
			name:    "moderator not assignable",
			cmd:     cqrs.UpdateRoleCommand{AccountID: targetID, NewRole: "moderator"},
			wantErr: models.ErrRoleNotAssignable,
		},
		{
			name:    "unknown role",
			cmd:     cqrs.UpdateRoleCommand{AccountID: targetID, NewRole: "admin"},
			wantErr: models.ErrRoleNotAssignable,
		},
		{
			name:    "malformed id",
			cmd:     cqrs.UpdateRoleCommand{AccountID: "not-an-id", NewRole: "ghost"},
			wantErr: models.ErrUnknownAccountID,
		},
		{
			name:    "unknown id",
			cmd:     cqrs.UpdateRoleCommand{AccountID: targetID, NewRole: "ghost"},
			repoErr: models.ErrAccountNotFound,
			wantErr: models.ErrUnknownAccountID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.authz.err = tt.authErr
			f.writer.updateRoleFn = func(string, models.Role) (*models.Account, error) {
				return nil, tt.repoErr
			}

			err := f.svc.UpdateRole(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.publisher.published)
			assert.Empty(t, f.reader.cached)
		})
	}
}

func TestUpdateRole_CacheFailureIsReturned(t *testing.T) {
	f := newFixture()
	f.reader.cacheErr = errors.New("failed to refresh account cache")
	f.writer.updateRoleFn = func(id string, role models.Role) (*models.Account, error) {
		return &models.Account{ID: id, Username: "bob", Token: "BOBTOKEN", Role: role}, nil
	}

	err := f.svc.UpdateRole(context.Background(), cqrs.UpdateRoleCommand{
		CallerToken: "MODTOKEN", AccountID: targetID, NewRole: "ghost",
	})
	assert.ErrorIs(t, err, f.reader.cacheErr)
	assert.Empty(t, f.publisher.published)
}

// ---- GrantModerator ----

func TestGrantModerator(t *testing.T) {
	f := newFixture()
	f.writer.updateByNameFn = func(username string, role models.Role) (*models.Account, error) {
		assert.Equal(t, models.RoleModerator, role)
		return &models.Account{ID: "id-1", Username: username, Token: "TOK", Role: role}, nil
	}

	view, err := f.svc.GrantModerator(context.Background(), cqrs.GrantModeratorCommand{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, view.Role)
	assert.Equal(t, models.RoleModerator, f.reader.cached["TOK"])
	require.Len(t, f.publisher.published, 1)
}

func TestGrantModerator_Errors(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GrantModerator(context.Background(), cqrs.GrantModeratorCommand{})
	assert.ErrorIs(t, err, models.ErrMissingParameters)

	f.writer.updateByNameFn = func(string, models.Role) (*models.Account, error) {
		return nil, models.ErrAccountNotFound
	}
	_, err = f.svc.GrantModerator(context.Background(), cqrs.GrantModeratorCommand{Username: "ghost"})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

// ---- HandleAccountEvent ----

func TestHandleAccountEvent_AuditLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.HandleAccountEvent(ctx, events.Event{
		Type:      events.AccountRegistered,
		Timestamp: time.Now(),
		Data:      map[string]any{"accountId": "id-1", "username": "alice", "role": "ghost"},
	}))
	entry := f.logs.LastEntry()
	assert.Equal(t, "audit: account registered", entry.Message)
	assert.Equal(t, "alice", entry.Data["username"])

	require.NoError(t, f.svc.HandleAccountEvent(ctx, events.Event{
		Type: events.AccountRoleUpdated,
		Data: map[string]any{"accountId": "id-1", "username": "alice", "newRole": "moderator"},
	}))
	entry = f.logs.LastEntry()
	assert.Equal(t, "audit: role updated", entry.Message)
	assert.Equal(t, "operator", entry.Data["moderator_id"])
}

func TestHandleAccountEvent_BadPayload(t *testing.T) {
	f := newFixture()
	err := f.svc.HandleAccountEvent(context.Background(), events.Event{
		Type: events.AccountRoleUpdated,
		Data: "not an object",
	})
	assert.Error(t, err)
}
