package account

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account/migrations"
)

// MigrationResult summarizes one applied migration.
type MigrationResult struct {
	Version int64
	Source  string
}

// Migrate applies every pending account migration to db and returns what ran.
// The goose version table lives in the connection's search_path.
func Migrate(ctx context.Context, db *sql.DB) ([]MigrationResult, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("account.Migrate: provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("account.Migrate: up: %w", err)
	}

	out := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		out = append(out, MigrationResult{Version: r.Source.Version, Source: r.Source.Path})
	}
	return out, nil
}
