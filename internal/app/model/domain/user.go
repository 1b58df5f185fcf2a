package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Phone              string     `json:"phone"`
	DateOfBirth        string     `json:"date_of_birth"`
	PasswordHash       string     `json:"-"`
	ResetCode          *string    `json:"-"`
	ResetCodeExpiresAt *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ResetInProgress reports whether a password-reset code is pending for the
// user. While a code is pending the password may not be changed through the
// reset endpoint.
func (u *User) ResetInProgress() bool {
	return u.ResetCode != nil && *u.ResetCode != ""
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
