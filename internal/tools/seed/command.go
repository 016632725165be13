package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/config"
	"github.com/ayesh156/roxeleye-crud/internal/database"
	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/tools/common"
	"github.com/ayesh156/roxeleye-crud/internal/tools/ui"
)

type options struct {
	envFile             string
	bootstrapAdminEmail string
	bootstrapAdminName  string
	timeout             time.Duration
	ci                  bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Database seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.bootstrapAdminEmail, "bootstrap-admin-email", "", "override bootstrap admin email")
	cmd.PersistentFlags().StringVar(&opts.bootstrapAdminName, "bootstrap-admin-name", "", "override bootstrap admin display name")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts))
	return cmd
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create or promote the bootstrap admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed apply", func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.OpenDatabase(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDatabase(db)
				admin := opts.admin(cfg)
				report, err := database.Seed(ctx, db, security.NewPasswordHasher(security.DefaultArgon2Params), admin)
				if err != nil {
					return nil, err
				}
				return describe(admin.Email, report), nil
			})
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed dry-run", func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.OpenDatabase(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDatabase(db)
				return plan(ctx, db, opts.admin(cfg))
			})
		},
	}
}

func (o *options) admin(cfg *config.Config) database.BootstrapAdmin {
	admin := database.BootstrapAdmin{
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
		Name:     cfg.BootstrapAdminName,
	}
	if o.bootstrapAdminEmail != "" {
		admin.Email = o.bootstrapAdminEmail
	}
	if o.bootstrapAdminName != "" {
		admin.Name = o.bootstrapAdminName
	}
	return admin
}

func plan(ctx context.Context, db *gorm.DB, admin database.BootstrapAdmin) ([]string, error) {
	email := domain.NormalizeEmail(admin.Email)
	if email == "" {
		return []string{"no bootstrap admin email configured; nothing to do"}, nil
	}
	var u domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if len(admin.Password) < 6 {
			return nil, fmt.Errorf("bootstrap admin password must be at least 6 characters")
		}
		return []string{"would create ADMIN account: " + email}, nil
	case err != nil:
		return nil, fmt.Errorf("find bootstrap admin: %w", err)
	case u.Role == domain.RoleAdmin && u.IsActive:
		return []string{"account already an active ADMIN: " + email}, nil
	default:
		return []string{fmt.Sprintf("would promote %s (role %s, active %t) to active ADMIN; password unchanged", email, u.Role, u.IsActive)}, nil
	}
}

func describe(email string, report *database.SeedReport) []string {
	switch {
	case report.CreatedAdmin:
		return []string{"created ADMIN account: " + domain.NormalizeEmail(email)}
	case report.PromotedAdmin:
		return []string{"promoted to active ADMIN: " + domain.NormalizeEmail(email)}
	case email == "":
		return []string{"no bootstrap admin email configured; nothing to do"}
	default:
		return []string{"account already an active ADMIN: " + domain.NormalizeEmail(email)}
	}
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
