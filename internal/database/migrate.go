package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
)

// Models lists the persisted entities in migration order.
func Models() []any {
	return []any{&domain.User{}, &domain.Item{}}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	err := db.AutoMigrate(Models()...)
	recordStartup(context.Background(), "migrate", err, time.Since(start))
	return err
}
