// Package user provides the User domain entity.
package user

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Registration holds the fields submitted when signing up.
type Registration struct {
	Username  string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"max=64"`
	LastName  string `json:"lastName" validate:"max=64"`
}

// Validate checks the registration fields.
func (r *Registration) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(err, "invalid registration")
	}
	return nil
}

// New creates a user from a registration and an already hashed password.
func New(id string, reg Registration, passwordHash string) *User {
	now := time.Now()
	return &User{
		ID:           id,
		Username:     reg.Username,
		Email:        strings.ToLower(reg.Email),
		PasswordHash: passwordHash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		IsAdmin:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DisplayName returns the first name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// IsEmailLogin reports whether a login identifier is an email address.
func IsEmailLogin(identifier string) bool {
	return strings.Contains(identifier, "@")
}
