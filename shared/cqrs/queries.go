package cqrs

// AuthenticateQuery checks a username/password pair. It is a query because
// authentication does not mutate account state.
type AuthenticateQuery struct {
	Username string
	Password string
}

// GetByTokenQuery fetches the account holding Token.
type GetByTokenQuery struct {
	Token string
}

// ExistsQuery reports whether any account holds Token.
type ExistsQuery struct {
	Token string
}

// ListAccountsQuery lists non-moderator accounts on behalf of a moderator.
type ListAccountsQuery struct {
	CallerToken string
}
