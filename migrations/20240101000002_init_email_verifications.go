package main

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(initEmailVerificationsUp, initEmailVerificationsDown)
}

// Migration: 20240101000002_init_email_verifications
//
// Pending registration verifications. Email is the primary key: a new
// request for the same address overwrites the existing row.
func initEmailVerificationsUp(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS email_verifications (
			email TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create email_verifications table: %w", err)
	}

	return nil
}

func initEmailVerificationsDown(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS email_verifications`)
	if err != nil {
		return fmt.Errorf("failed to drop email_verifications table: %w", err)
	}

	return nil
}
