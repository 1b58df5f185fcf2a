package db

import (
	"time"

	"github.com/uptrace/bun"
)

// EmailVerification is a pending registration verification. At most one live
// row exists per email; a new request for the same address overwrites the
// code, expiry and attempt counter instead of inserting a duplicate.
type EmailVerification struct {
	bun.BaseModel `bun:"table:email_verifications,alias:ev"`

	Email     string    `bun:"email,pk" json:"email"`
	Code      string    `bun:"code,notnull" json:"-"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Attempts  int       `bun:"attempts,notnull,default:0" json:"attempts"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
