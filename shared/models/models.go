package models

import "time"

type Role string

const (
	RoleGhost     Role = "ghost"
	RoleStudent   Role = "student"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGhost, RoleStudent, RoleModerator:
		return true
	}
	return false
}

// Assignable reports whether a moderator may grant r through the API.
func (r Role) Assignable() bool {
	return r == RoleStudent || r == RoleGhost
}

// ListedRoles are the roles visible in moderator listings.
var ListedRoles = []Role{RoleStudent, RoleGhost}

// Account is the write model. Profile fields are nil until set.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Token        string    `json:"-"`
	Role         Role      `json:"role"`
	FirstName    *string   `json:"firstName"`
	LastName     *string   `json:"lastName"`
	Patronymic   *string   `json:"patronymic"`
	TgID         *string   `json:"tgId"`
	StudyGroup   *string   `json:"studyGroup"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
