package cqrs

type RegisterCommand struct {
	Username string
	Password string
}

// UpdateRoleCommand is issued by a moderator, identified by CallerToken.
// AccountID and NewRole arrive unvalidated from the request.
type UpdateRoleCommand struct {
	CallerToken string
	AccountID   string
	NewRole     string
}

// GrantModeratorCommand is issued by an operator from the CLI.
type GrantModeratorCommand struct {
	Username string
}
