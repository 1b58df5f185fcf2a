package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"authd/internal/app/model/db"
)

type VerificationRepository interface {
	// Upsert creates the pending verification for the email or, if one
	// already exists, replaces its code and expiry and resets the attempt
	// counter to zero.
	Upsert(ctx context.Context, record *db.EmailVerification) error
	GetByEmail(ctx context.Context, email string) (*db.EmailVerification, error)
	Delete(ctx context.Context, email string) error
	IncrementAttempts(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type verificationRepository struct {
	db *bun.DB
}

func NewVerificationRepository(db *bun.DB) VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Upsert(ctx context.Context, record *db.EmailVerification) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (email) DO UPDATE").
		Set("code = EXCLUDED.code").
		Set("expires_at = EXCLUDED.expires_at").
		Set("attempts = 0").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert verification record: %w", err)
	}

	return nil
}

func (r *verificationRepository) GetByEmail(ctx context.Context, email string) (*db.EmailVerification, error) {
	record := &db.EmailVerification{}
	err := r.db.NewSelect().Model(record).Where("email = ?", email).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification record: %w", err)
	}

	return record, nil
}

func (r *verificationRepository) Delete(ctx context.Context, email string) error {
	_, err := r.db.NewDelete().
		Model((*db.EmailVerification)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete verification record: %w", err)
	}

	return nil
}

func (r *verificationRepository) IncrementAttempts(ctx context.Context, email string) error {
	_, err := r.db.NewUpdate().
		Model((*db.EmailVerification)(nil)).
		Set("attempts = attempts + 1").
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}

	return nil
}

func (r *verificationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*db.EmailVerification)(nil)).
		Where("expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification records: %w", err)
	}

	deleted, _ := res.RowsAffected()
	return deleted, nil
}
