package domain

import "time"

// DefaultCredits is granted to users created without an explicit balance.
const DefaultCredits = 3

// User represents an account able to spend credits on video generation.
type User struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	Credits    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCredits reports whether the user can pay for at least amount credits.
func (u User) HasCredits(amount int) bool {
	return u.Credits >= amount
}
