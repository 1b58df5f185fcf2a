package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshToken is one currently-valid refresh token grant. A refresh token
// is usable only while its row exists and is unexpired; revocation deletes
// the row rather than maintaining a blocklist.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Token     string    `bun:"token,unique,notnull" json:"-"`
	UserID    uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
