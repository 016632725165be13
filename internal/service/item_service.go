package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

type CreateItemInput struct {
	Name        string
	Description *string
	Price       float64
	Quantity    int
}

// UpdateItemInput holds the fields to change; nil fields keep their value.
type UpdateItemInput struct {
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int
}

// DeleteItemResult tells a first delete apart from a repeated one.
type DeleteItemResult struct {
	AlreadyDeleted bool
}

type ItemService struct {
	items   repository.ItemRepository
	uploads *upload.Pipeline
	logger  *slog.Logger
}

func NewItemService(items repository.ItemRepository, uploads *upload.Pipeline, logger *slog.Logger) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemService{items: items, uploads: uploads, logger: logger}
}

func (s *ItemService) List(ctx context.Context) ([]domain.Item, error) {
	items, err := s.items.List(ctx)
	observability.RecordItemOperation(ctx, "list", itemOutcome(err))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *ItemService) ListPaged(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.Item], error) {
	res, err := s.items.ListPaged(ctx, req)
	observability.RecordItemOperation(ctx, "list", itemOutcome(err))
	if err != nil {
		return repository.PageResult[domain.Item]{}, fmt.Errorf("list items: %w", err)
	}
	return res, nil
}

func (s *ItemService) Get(ctx context.Context, id uint) (*domain.Item, error) {
	item, err := s.items.FindByID(ctx, id)
	observability.RecordItemOperation(ctx, "get", itemOutcome(err))
	if err != nil {
		return nil, itemErr(err, "find item")
	}
	return item, nil
}

// Create inserts a new item. When image is set the row is written as the
// association step of the upload, so a failed insert removes the file.
func (s *ItemService) Create(ctx context.Context, in CreateItemInput, image *upload.Input) (*domain.Item, error) {
	item := &domain.Item{
		Name:        strings.TrimSpace(in.Name),
		Description: trimOptional(in.Description),
		Price:       in.Price,
		Quantity:    in.Quantity,
	}
	if err := errors.Join(checkItemName(item.Name), checkItemPrice(item.Price), checkItemQuantity(item.Quantity)); err != nil {
		observability.RecordItemOperation(ctx, "create", "invalid")
		return nil, err
	}

	if image == nil {
		err := s.items.Create(ctx, item)
		observability.RecordItemOperation(ctx, "create", itemOutcome(err))
		if err != nil {
			return nil, fmt.Errorf("create item: %w", err)
		}
		return item, nil
	}

	_, err := s.uploads.Process(ctx, upload.NamespaceItems, *image, func(ctx context.Context, ref string) (*string, error) {
		item.Image = &ref
		if err := s.items.Create(ctx, item); err != nil {
			item.Image = nil
			return nil, fmt.Errorf("create item: %w", err)
		}
		return nil, nil
	})
	observability.RecordItemOperation(ctx, "create", itemOutcome(err))
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "item created", "item_id", item.ID, "image", *item.Image)
	return item, nil
}

// Update changes the given fields. A new image replaces the old one, which is
// removed only after the row points at the new file.
func (s *ItemService) Update(ctx context.Context, id uint, in UpdateItemInput, image *upload.Input) (*domain.Item, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := checkItemName(name); err != nil {
			observability.RecordItemOperation(ctx, "update", "invalid")
			return nil, err
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = trimOptional(in.Description)
	}
	if in.Price != nil {
		if err := checkItemPrice(*in.Price); err != nil {
			observability.RecordItemOperation(ctx, "update", "invalid")
			return nil, err
		}
		updates["price"] = *in.Price
	}
	if in.Quantity != nil {
		if err := checkItemQuantity(*in.Quantity); err != nil {
			observability.RecordItemOperation(ctx, "update", "invalid")
			return nil, err
		}
		updates["quantity"] = *in.Quantity
	}

	if image == nil {
		_, after, err := s.items.Update(ctx, id, updates)
		observability.RecordItemOperation(ctx, "update", itemOutcome(err))
		if err != nil {
			return nil, itemErr(err, "update item")
		}
		return after, nil
	}

	var updated *domain.Item
	_, err := s.uploads.Process(ctx, upload.NamespaceItems, *image, func(ctx context.Context, ref string) (*string, error) {
		updates["image"] = ref
		before, after, err := s.items.Update(ctx, id, updates)
		if err != nil {
			return nil, itemErr(err, "update item")
		}
		updated = after
		return before.Image, nil
	})
	observability.RecordItemOperation(ctx, "update", itemOutcome(err))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the item. Deleting an item that is already gone succeeds
// with AlreadyDeleted set. The image file is removed after the row.
func (s *ItemService) Delete(ctx context.Context, id uint) (DeleteItemResult, error) {
	deleted, err := s.items.Delete(ctx, id)
	if err != nil {
		observability.RecordItemOperation(ctx, "delete", "error")
		return DeleteItemResult{}, fmt.Errorf("delete item: %w", err)
	}
	if deleted == nil {
		observability.RecordItemOperation(ctx, "delete", "already_deleted")
		return DeleteItemResult{AlreadyDeleted: true}, nil
	}
	if deleted.Image != nil && *deleted.Image != "" {
		s.uploads.Remove(ctx, *deleted.Image)
	}
	observability.RecordItemOperation(ctx, "delete", "success")
	s.logger.InfoContext(ctx, "item deleted", "item_id", id)
	return DeleteItemResult{}, nil
}

// DeleteImage clears the item's image reference and removes the file.
func (s *ItemService) DeleteImage(ctx context.Context, id uint) (*domain.Item, error) {
	current, err := s.items.FindByID(ctx, id)
	if err != nil {
		observability.RecordItemOperation(ctx, "delete_image", itemOutcome(err))
		return nil, itemErr(err, "find item")
	}
	if current.Image == nil || *current.Image == "" {
		observability.RecordItemOperation(ctx, "delete_image", "no_image")
		return nil, ErrItemHasNoImage
	}
	before, after, err := s.items.Update(ctx, id, map[string]any{"image": nil})
	if err != nil {
		observability.RecordItemOperation(ctx, "delete_image", itemOutcome(err))
		return nil, itemErr(err, "clear item image")
	}
	if before.Image == nil || *before.Image == "" {
		observability.RecordItemOperation(ctx, "delete_image", "no_image")
		return nil, ErrItemHasNoImage
	}
	s.uploads.Remove(ctx, *before.Image)
	observability.RecordItemOperation(ctx, "delete_image", "success")
	return after, nil
}

func checkItemName(name string) error {
	if n := len([]rune(name)); n < 2 || n > 100 {
		return ErrInvalidItem.WithMessage("Item name must be between 2 and 100 characters")
	}
	return nil
}

func checkItemPrice(price float64) error {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return ErrInvalidItem.WithMessage("Price must be a positive number")
	}
	return nil
}

func checkItemQuantity(quantity int) error {
	if quantity < 0 {
		return ErrInvalidItem.WithMessage("Quantity must be a non-negative integer")
	}
	return nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func itemErr(err error, op string) error {
	if errors.Is(err, repository.ErrItemNotFound) {
		return ErrItemNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func itemOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, repository.ErrItemNotFound), errors.Is(err, ErrItemNotFound):
		return "not_found"
	default:
		return "error"
	}
}
