package models

// SessionView is returned when a client obtains its credential: on
// registration and on authentication. It is the only projection carrying the token.
type SessionView struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Role      Role    `json:"role"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Token     string  `json:"token"`
}

// AccountView is the read-optimised projection of an account: every field
// except the token and the password hash. It is also the shape cached in Redis.
type AccountView struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Role       Role    `json:"role"`
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Patronymic *string `json:"patronymic"`
	TgID       *string `json:"tgId"`
	StudyGroup *string `json:"studyGroup"`
}

// ListingView is one row of a moderator account listing.
type ListingView struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Role      Role    `json:"role"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func NewSessionView(a *Account) *SessionView {
	return &SessionView{
		ID:        a.ID,
		Username:  a.Username,
		Role:      a.Role,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Token:     a.Token,
	}
}

func NewAccountView(a *Account) *AccountView {
	return &AccountView{
		ID:         a.ID,
		Username:   a.Username,
		Role:       a.Role,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Patronymic: a.Patronymic,
		TgID:       a.TgID,
		StudyGroup: a.StudyGroup,
	}
}
