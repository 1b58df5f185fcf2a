package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"authd/internal/app/model/db"
)

// RefreshTokenRepository is the ledger of live refresh-token grants. A
// token is honored only while a matching, unexpired row exists; deleting
// rows is how revocation works.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	Exists(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db *bun.DB
}

func NewRefreshTokenRepository(db *bun.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	row := &db.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err := r.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create refresh token record: %w", err)
	}

	return nil
}

func (r *refreshTokenRepository) Exists(ctx context.Context, token string, now time.Time) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*db.RefreshToken)(nil)).
		Where("token = ?", token).
		Where("expires_at > ?", now).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token record: %w", err)
	}

	return count > 0, nil
}

func (r *refreshTokenRepository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*db.RefreshToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete refresh tokens for user: %w", err)
	}

	return nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*db.RefreshToken)(nil)).
		Where("expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	deleted, _ := res.RowsAffected()
	return deleted, nil
}
