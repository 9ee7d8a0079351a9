package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2026030102_create_collaborator_tables.sql
var createCollaboratorTablesSQL string

// The account, authoring and test-taking services own these tables in production.
// Creating them here lets a standalone deployment start from an empty database.
func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createCollaboratorTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS test_attempts; DROP TABLE IF EXISTS questions; DROP TABLE IF EXISTS students;`)
			return err
		},
	)
}
