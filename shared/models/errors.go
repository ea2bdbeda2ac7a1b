package models

import "errors"

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrTokenConflict      = errors.New("token already issued")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownToken       = errors.New("unknown token")
	ErrMissingParameters  = errors.New("missing parameters")
	ErrRoleNotAssignable  = errors.New("role not assignable")
	ErrUnknownAccountID   = errors.New("unknown account id")
)
