package common

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/config"
	"github.com/ayesh156/roxeleye-crud/internal/database"
)

// LoadEnvFile loads KEY=VALUE pairs into the environment. Variables that
// are already set win; a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// OpenDatabase loads the env file and config and opens the configured
// database. The caller closes the connection.
func OpenDatabase(envFile string) (*config.Config, *gorm.DB, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func CloseDatabase(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
