package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
)

//go:generate mockgen -source=item_repository.go -destination=gomock/item_repository_mock.go -package=gomock

type ItemRepository interface {
	List(ctx context.Context) ([]domain.Item, error)
	ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.Item], error)
	FindByID(ctx context.Context, id uint) (*domain.Item, error)
	Create(ctx context.Context, item *domain.Item) error
	Update(ctx context.Context, id uint, updates map[string]any) (before, after *domain.Item, err error)
	// Delete removes the row and returns it. A row that is already gone is
	// reported as (nil, nil) so overlapping deletes both succeed.
	Delete(ctx context.Context, id uint) (*domain.Item, error)
}

type GormItemRepository struct{ db *gorm.DB }

func NewItemRepository(db *gorm.DB) ItemRepository { return &GormItemRepository{db: db} }

func (r *GormItemRepository) List(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := r.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&items).Error
	record(ctx, "item", "list", err)
	return items, err
}

func (r *GormItemRepository) ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.Item], error) {
	req = req.Normalized()
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Item{}).Count(&total).Error; err != nil {
		record(ctx, "item", "list_paged", err)
		return PageResult[domain.Item]{}, err
	}
	var items []domain.Item
	err := r.db.WithContext(ctx).
		Order("created_at desc").Order("id desc").
		Offset(req.offset()).Limit(req.PageSize).
		Find(&items).Error
	record(ctx, "item", "list_paged", err)
	if err != nil {
		return PageResult[domain.Item]{}, err
	}
	return newPageResult(req, items, total), nil
}

func (r *GormItemRepository) FindByID(ctx context.Context, id uint) (*domain.Item, error) {
	var item domain.Item
	err := r.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrItemNotFound
	}
	record(ctx, "item", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GormItemRepository) Create(ctx context.Context, item *domain.Item) error {
	err := r.db.WithContext(ctx).Create(item).Error
	record(ctx, "item", "create", err)
	return err
}

func (r *GormItemRepository) Update(ctx context.Context, id uint, updates map[string]any) (*domain.Item, *domain.Item, error) {
	var before, after domain.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, id).Error; err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&domain.Item{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.First(&after, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrItemNotFound
	}
	record(ctx, "item", "update", err)
	if err != nil {
		return nil, nil, err
	}
	return &before, &after, nil
}

func (r *GormItemRepository) Delete(ctx context.Context, id uint) (*domain.Item, error) {
	var existing domain.Item
	found := true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Delete(&domain.Item{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			found = false
		}
		return nil
	})
	if err != nil {
		record(ctx, "item", "delete", err)
		return nil, err
	}
	if !found {
		observability.RecordRepositoryOperation(ctx, "item", "delete", "already_deleted")
		return nil, nil
	}
	record(ctx, "item", "delete", nil)
	return &existing, nil
}
