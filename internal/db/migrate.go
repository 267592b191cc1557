// Package db holds the PostgreSQL schema and applies it.
package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"reelforge/internal/infra"
)

//go:embed schema.sql
var schema string

// Schema returns the embedded DDL.
func Schema() string {
	return schema
}

// Version identifies the embedded schema by content hash.
func Version() string {
	sum := sha256.Sum256([]byte(schema))
	return hex.EncodeToString(sum[:8])
}

// Open connects through database/sql with the lib/pq driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Migrate applies the schema inside one transaction. The DDL is idempotent,
// and the version row records which schema hash was applied last.
func Migrate(ctx context.Context, conn *sql.DB, logger infra.Logger) (applied bool, err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, schema); err != nil {
		return false, describe(err)
	}
	version := Version()
	res, err := tx.ExecContext(ctx,
		`insert into schema_migrations (version) values ($1) on conflict (version) do nothing`, version)
	if err != nil {
		return false, describe(err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration: %w", err)
	}
	n, _ := res.RowsAffected()
	applied = n > 0
	logger.Info().Str("version", version).Bool("applied", applied).Msg("schema migrated")
	return applied, nil
}

func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("apply schema: %s (%s): %w", pqErr.Message, pqErr.Code.Name(), err)
	}
	return fmt.Errorf("apply schema: %w", err)
}
