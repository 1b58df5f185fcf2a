package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email              string     `bun:"email,unique,notnull" json:"email"`
	FirstName          string     `bun:"first_name,notnull" json:"first_name"`
	LastName           string     `bun:"last_name,notnull" json:"last_name"`
	Phone              string     `bun:"phone,unique,notnull" json:"phone"`
	DateOfBirth        string     `bun:"date_of_birth,notnull" json:"date_of_birth"`
	PasswordHash       string     `bun:"password_hash,notnull" json:"-"`
	ResetCode          *string    `bun:"reset_code" json:"-"`
	ResetCodeExpiresAt *time.Time `bun:"reset_code_expires_at" json:"-"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
