package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/database"
	"github.com/ayesh156/roxeleye-crud/internal/di"
	"github.com/ayesh156/roxeleye-crud/internal/tools/common"
	"github.com/ayesh156/roxeleye-crud/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations and ensure the bootstrap admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate up", func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()
				report, err := runner.Run(ctx)
				if err != nil {
					return nil, err
				}
				return append([]string{"schema migration applied"}, describeSeed(report)...), nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate status", func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.OpenDatabase(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDatabase(db)
				if err := ping(ctx, db); err != nil {
					return nil, err
				}
				details := []string{"database reachable (" + cfg.DBDriver + ")"}
				for _, st := range tableStatus(db) {
					state := "missing"
					if st.exists {
						state = "present"
					}
					details = append(details, fmt.Sprintf("table %s: %s", st.table, state))
				}
				return details, nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what migrate up would change (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate plan", func(ctx context.Context) ([]string, error) {
				_, db, err := common.OpenDatabase(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDatabase(db)
				if err := ping(ctx, db); err != nil {
					return nil, err
				}
				var details []string
				for _, st := range tableStatus(db) {
					if st.exists {
						details = append(details, "would reconcile columns and indexes of "+st.table)
					} else {
						details = append(details, "would create table "+st.table)
					}
				}
				return append(details, "no mutation executed in plan mode"), nil
			})
		},
	}
}

type status struct {
	table  string
	exists bool
}

func tableStatus(db *gorm.DB) []status {
	models := database.Models()
	out := make([]status, 0, len(models))
	for _, m := range models {
		stmt := &gorm.Statement{DB: db}
		name := fmt.Sprintf("%T", m)
		if err := stmt.Parse(m); err == nil {
			name = stmt.Schema.Table
		}
		out = append(out, status{table: name, exists: db.Migrator().HasTable(m)})
	}
	return out
}

func describeSeed(report *database.SeedReport) []string {
	switch {
	case report == nil || report.Noop:
		return []string{"bootstrap admin: unchanged"}
	case report.CreatedAdmin:
		return []string{"bootstrap admin: created"}
	default:
		return []string{"bootstrap admin: promoted to ADMIN"}
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func execute(opts *options, title string, fn func(context.Context) ([]string, error)) error {
	var details []string
	var err error
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		details, err = fn(ctx)
		cancel()
		common.PrintCIResult(err == nil, title, details, err)
	} else {
		details, err = ui.Run(title, opts.timeout, fn)
	}
	if err != nil {
		os.Exit(common.ExitDatabase)
	}
	return nil
}
