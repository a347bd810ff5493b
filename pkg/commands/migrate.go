package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/backoffice/migrations"
)

// Migrator runs the embedded goose migrations over a pgx pool.
type Migrator struct {
	provider *goose.Provider
	close    func() error
}

func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	db := stdlib.OpenDBFromPool(pool)
	provider, err := migrations.NewProvider(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return &Migrator{provider: provider, close: db.Close}, nil
}

func (m *Migrator) Close() error {
	return m.close()
}

func (m *Migrator) Up(ctx context.Context, out io.Writer) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		writeResult(out, r)
	}
	return err
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context, out io.Writer) error {
	r, err := m.provider.Down(ctx)
	if r != nil {
		writeResult(out, r)
	}
	return err
}

func (m *Migrator) Status(ctx context.Context, out io.Writer) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return w.Flush()
}

func writeResult(out io.Writer, r *goose.MigrationResult) {
	if r.Error != nil {
		_, _ = fmt.Fprintf(out, "FAIL %s %s: %v\n", r.Direction, r.Source.Path, r.Error)
		return
	}
	_, _ = fmt.Fprintf(out, "OK   %s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
}

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	run := func(fn func(*Migrator, context.Context, io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			pool, err := GetDatabasePool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			m, err := NewMigrator(pool)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(m, cmd.Context(), cmd.OutOrStdout())
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run((*Migrator).Up)},
		&cobra.Command{Use: "down", Short: "Roll back the latest migration", RunE: run((*Migrator).Down)},
		&cobra.Command{Use: "status", Short: "Show migration status", RunE: run((*Migrator).Status)},
	)
	return cmd
}
