package main

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(addIndexesUp, addIndexesDown)
}

// Migration: 20240101000004_add_indexes
func addIndexesUp(ctx context.Context, db *bun.DB) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_email_verifications_expires_at ON email_verifications(expires_at)`,
	}

	for _, query := range queries {
		_, err := db.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func addIndexesDown(ctx context.Context, db *bun.DB) error {
	queries := []string{
		`DROP INDEX IF EXISTS idx_users_email`,
		`DROP INDEX IF EXISTS idx_users_phone`,
		`DROP INDEX IF EXISTS idx_refresh_tokens_user_id`,
		`DROP INDEX IF EXISTS idx_refresh_tokens_expires_at`,
		`DROP INDEX IF EXISTS idx_email_verifications_expires_at`,
	}

	for _, query := range queries {
		_, err := db.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to drop index: %w", err)
		}
	}

	return nil
}
