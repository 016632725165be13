package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/security"
)

// BootstrapAdmin describes the account that Seed guarantees holds the ADMIN
// role. An empty Email disables seeding.
type BootstrapAdmin struct {
	Email    string
	Password string
	Name     string
}

type SeedReport struct {
	CreatedAdmin  bool `json:"createdAdmin"`
	PromotedAdmin bool `json:"promotedAdmin"`
	Noop          bool `json:"noop"`
}

// Seed creates the bootstrap admin when missing, or promotes and reactivates
// an existing account with that email. The password of an existing account
// is never changed.
func Seed(ctx context.Context, db *gorm.DB, hasher *security.PasswordHasher, admin BootstrapAdmin) (*SeedReport, error) {
	start := time.Now()
	report := &SeedReport{}
	err := seed(ctx, db, hasher, admin, report)
	recordStartup(ctx, "seed", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	report.Noop = !report.CreatedAdmin && !report.PromotedAdmin
	return report, nil
}

func seed(ctx context.Context, db *gorm.DB, hasher *security.PasswordHasher, admin BootstrapAdmin, report *SeedReport) error {
	email := domain.NormalizeEmail(admin.Email)
	if email == "" {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		err := tx.Where("email = ?", email).First(&u).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if len(admin.Password) < 6 {
				return fmt.Errorf("bootstrap admin password must be at least 6 characters")
			}
			hash, err := hasher.Hash(admin.Password)
			if err != nil {
				return fmt.Errorf("hash bootstrap admin password: %w", err)
			}
			name := strings.TrimSpace(admin.Name)
			if name == "" {
				name = "Administrator"
			}
			u = domain.User{Email: email, PasswordHash: hash, Name: name, Role: domain.RoleAdmin, IsActive: true}
			if err := tx.Create(&u).Error; err != nil {
				return fmt.Errorf("create bootstrap admin: %w", err)
			}
			report.CreatedAdmin = true
			return nil
		case err != nil:
			return fmt.Errorf("find bootstrap admin: %w", err)
		}
		if u.Role == domain.RoleAdmin && u.IsActive {
			return nil
		}
		if err := tx.Model(&domain.User{}).Where("id = ?", u.ID).
			Updates(map[string]any{"role": domain.RoleAdmin, "is_active": true}).Error; err != nil {
			return fmt.Errorf("promote bootstrap admin: %w", err)
		}
		report.PromotedAdmin = true
		return nil
	})
}

func recordStartup(ctx context.Context, stage string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordDatabaseStartupEvent(ctx, stage, outcome)
	observability.RecordDatabaseStartupDuration(ctx, stage, elapsed)
}
