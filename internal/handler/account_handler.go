package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studyhub/account-service/shared/cqrs"
	"github.com/studyhub/account-service/shared/middleware"
	"github.com/studyhub/account-service/shared/models"
)

const (
	msgMissingCredentials = "Missing username or password parameters"
	msgBadCredentialForm  = "Incorrect username or password formation: illegal length or content"
	msgUsernameTaken      = "Username is already taken"
	msgUnknownCredentials = "Unknown username or password"
	msgUnknownToken       = "Unknown token"
	msgMissingRoleParams  = "Missing accountId or newRole parameters"
	msgUnexpectedRole     = "Unexpected role. Allowed: student, ghost"
	msgUnknownAccountID   = "Unknown account id"
	msgNoActionHandler    = "No action handler provided for action: "
	msgInternal           = "Internal server error"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	Register(context.Context, cqrs.RegisterCommand) (*models.SessionView, error)
	UpdateRole(context.Context, cqrs.UpdateRoleCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	Authenticate(context.Context, cqrs.AuthenticateQuery) (*models.SessionView, error)
	GetByToken(context.Context, cqrs.GetByTokenQuery) (*models.AccountView, error)
	Exists(context.Context, cqrs.ExistsQuery) (bool, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.ListingView, error)
}

// AccountHandler handles account-related HTTP requests. Actions are looked
// up in fixed tables; a name missing from its table is answered with a
// client failure.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
	logger   logrus.FieldLogger

	unauthorized map[string]gin.HandlerFunc
	authorized   map[string]map[string]gin.HandlerFunc
}

type RegisterRequest struct {
	Username string `form:"username" json:"username" validate:"required,username"`
	Password string `form:"password" json:"password" validate:"required,password"`
}

type AuthRequest struct {
	Username string `form:"username" json:"username" validate:"required"`
	Password string `form:"password" json:"password" validate:"required"`
}

type UpdateRoleRequest struct {
	AccountID string `form:"accountId" json:"accountId"`
	NewRole   string `form:"newRole" json:"newRole"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier, logger logrus.FieldLogger) *AccountHandler {
	h := &AccountHandler{commands: commands, queries: queries, logger: logger}
	h.unauthorized = map[string]gin.HandlerFunc{
		"auth": h.authenticate,
	}
	h.authorized = map[string]map[string]gin.HandlerFunc{
		http.MethodGet: {
			"exists":       h.exists,
			"listAccounts": h.listAccounts,
		},
		http.MethodPut: {
			"updateRole": h.updateRole,
		},
	}
	return h
}

// SetupRoutes mounts the account API under prefix. limiter throttles the
// unauthenticated POST endpoints per client IP and may be nil.
func SetupRoutes(router *gin.Engine, prefix string, h *AccountHandler, limiter *middleware.RateLimiter) {
	limit := middleware.RateLimit(limiter)

	api := router.Group(prefix, middleware.TokenMiddleware())
	{
		api.GET("", h.GetAccount)
		api.GET("/", h.GetAccount)
		api.GET("/:token", h.GetAccount)
		api.POST("", limit, h.CreateAccount)
		api.POST("/", limit, h.CreateAccount)
		api.POST("/:action", limit, h.UnauthorizedAction)
		api.GET("/:token/:action", h.AuthorizedAction)
		api.PUT("/:token/:action", h.AuthorizedAction)
	}
	router.NoRoute(h.NoRoute(prefix))
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	view, err := h.queries.GetByToken(c.Request.Context(), cqrs.GetByTokenQuery{Token: middleware.GetToken(c)})
	if err != nil {
		h.respondError(c, err, msgUnknownToken)
		return
	}
	middleware.RespondOK(c, view)
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.RespondFail(c, msgMissingCredentials)
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		if middleware.HasMissingField(validationErrors) {
			middleware.RespondFail(c, msgMissingCredentials)
			return
		}
		middleware.RespondFail(c, msgBadCredentialForm)
		return
	}

	session, err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err, msgMissingCredentials)
		return
	}
	middleware.RespondCreated(c, session)
}

func (h *AccountHandler) UnauthorizedAction(c *gin.Context) {
	action := c.Param("action")
	fn, ok := h.unauthorized[action]
	if !ok {
		middleware.RespondFail(c, msgNoActionHandler+action)
		return
	}
	fn(c)
}

func (h *AccountHandler) AuthorizedAction(c *gin.Context) {
	action := c.Param("action")
	fn, ok := h.authorized[c.Request.Method][action]
	if !ok {
		middleware.RespondFail(c, msgNoActionHandler+action)
		return
	}
	fn(c)
}

// NoRoute answers requests that match no registered route. Under prefix the
// last path segment is reported as the unknown action.
func (h *AccountHandler) NoRoute(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			middleware.RespondWithError(c, http.StatusNotFound, "Not found")
			return
		}
		rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
		action := rest[strings.LastIndex(rest, "/")+1:]
		middleware.RespondFail(c, msgNoActionHandler+action)
	}
}

func (h *AccountHandler) authenticate(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.RespondFail(c, msgMissingCredentials)
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondFail(c, msgMissingCredentials)
		return
	}

	session, err := h.queries.Authenticate(c.Request.Context(), cqrs.AuthenticateQuery{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err, msgMissingCredentials)
		return
	}
	middleware.RespondOK(c, session)
}

func (h *AccountHandler) exists(c *gin.Context) {
	ok, err := h.queries.Exists(c.Request.Context(), cqrs.ExistsQuery{Token: middleware.GetToken(c)})
	if err != nil {
		h.respondError(c, err, msgUnknownToken)
		return
	}
	middleware.RespondOK(c, ok)
}

func (h *AccountHandler) listAccounts(c *gin.Context) {
	views, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{CallerToken: middleware.GetToken(c)})
	if err != nil {
		h.respondError(c, err, msgUnknownToken)
		return
	}
	middleware.RespondOK(c, views)
}

func (h *AccountHandler) updateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.RespondFail(c, msgMissingRoleParams)
		return
	}

	err := h.commands.UpdateRole(c.Request.Context(), cqrs.UpdateRoleCommand{
		CallerToken: middleware.GetToken(c),
		AccountID:   req.AccountID,
		NewRole:     req.NewRole,
	})
	if err != nil {
		h.respondError(c, err, msgMissingRoleParams)
		return
	}
	middleware.RespondOK(c, nil)
}

// respondError maps domain errors to client failures. missing is the
// message for ErrMissingParameters, which differs per operation. Anything
// unrecognised is logged and answered with a 500.
func (h *AccountHandler) respondError(c *gin.Context, err error, missing string) {
	switch {
	case errors.Is(err, models.ErrMissingParameters):
		middleware.RespondFail(c, missing)
	case errors.Is(err, models.ErrUsernameTaken):
		middleware.RespondFail(c, msgUsernameTaken)
	case errors.Is(err, models.ErrInvalidCredentials):
		middleware.RespondFail(c, msgUnknownCredentials)
	case errors.Is(err, models.ErrUnknownToken):
		middleware.RespondFail(c, msgUnknownToken)
	case errors.Is(err, models.ErrRoleNotAssignable):
		middleware.RespondFail(c, msgUnexpectedRole)
	case errors.Is(err, models.ErrUnknownAccountID):
		middleware.RespondFail(c, msgUnknownAccountID)
	default:
		_ = c.Error(err)
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("unexpected error")
		middleware.RespondWithError(c, http.StatusInternalServerError, msgInternal)
	}
}
