package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/observability"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrItemNotFound = errors.New("item not found")
)

func record(ctx context.Context, entity, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrEmailTaken):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, entity, op, outcome)
}
