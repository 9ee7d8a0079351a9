package cli

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/victornm/raindrop/internal/server"
	"github.com/victornm/raindrop/internal/store/postgres/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back the last group of) database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), c.Postgres, rollback)
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	return cmd
}

func runMigrations(ctx context.Context, c server.PostgresConfig, rollback bool) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(c.DSN()),
		pgdriver.WithInsecure(true),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}

	if err := migrator.Lock(ctx); err != nil {
		return err
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	if rollback {
		group, err := migrator.Rollback(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "migrate: rolled back", "group", group.String())
		return nil
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		slog.InfoContext(ctx, "migrate: nothing to apply")
		return nil
	}
	slog.InfoContext(ctx, "migrate: applied", "group", group.String())
	return nil
}
