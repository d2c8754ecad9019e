package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Schema DDL. All statements are idempotent so Migrate can run on every
// startup. Pools share one set of tables partitioned by the pool column;
// the uniqueness invariants are enforced per pool.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS voucher_pools (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS vouchers (
		id BIGSERIAL PRIMARY KEY,
		pool TEXT NOT NULL REFERENCES voucher_pools (name),
		operator TEXT NOT NULL,
		denomination TEXT NOT NULL,
		voucher TEXT NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		modified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (pool, operator, denomination, voucher)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vouchers_unused
		ON vouchers (pool, operator, denomination) WHERE NOT used`,
	`CREATE TABLE IF NOT EXISTS voucher_audit (
		id BIGSERIAL PRIMARY KEY,
		pool TEXT NOT NULL,
		request_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		request_data TEXT NOT NULL,
		response_data TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (pool, request_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_voucher_audit_transaction
		ON voucher_audit (pool, transaction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_voucher_audit_user
		ON voucher_audit (pool, user_id)`,
}

// Migrate creates the voucher schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	log.Info().Msg("database schema up to date")
	return nil
}
