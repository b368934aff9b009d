package model

import (
	"time"

	"instapulse/pkg/rbac"
)

type Account struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Subject returns the authorization identity of the account.
func (a *Account) Subject() rbac.Subject {
	return rbac.Subject{ID: a.ID, Role: a.Role}
}
