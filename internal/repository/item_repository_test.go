package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
)

func TestItemRepositoryCRUDAndPagination(t *testing.T) {
	repo := NewItemRepository(newRepositoryDBForTest(t))
	ctx := context.Background()

	created := make([]*domain.Item, 0, 3)
	for i := 0; i < 3; i++ {
		it := &domain.Item{Name: fmt.Sprintf("Item %c", 'A'+i), Price: float64(10 + i), Quantity: i}
		if err := repo.Create(ctx, it); err != nil {
			t.Fatalf("create item %d: %v", i, err)
		}
		created = append(created, it)
	}

	page, err := repo.ListPaged(ctx, PageRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page result: %+v", page)
	}

	before, after, err := repo.Update(ctx, created[0].ID, map[string]any{"name": "Renamed", "image": "uploads/items/a.webp"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Name != "Item A" || before.Image != nil {
		t.Fatalf("unexpected before: %+v", before)
	}
	if after.Name != "Renamed" || after.Image == nil || *after.Image != "uploads/items/a.webp" {
		t.Fatalf("unexpected after: %+v", after)
	}

	if _, err := repo.FindByID(ctx, 999); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, _, err := repo.Update(ctx, 999, map[string]any{"name": "x"}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound on update, got %v", err)
	}
}

func TestItemRepositoryDeleteIsIdempotent(t *testing.T) {
	repo := NewItemRepository(newRepositoryDBForTest(t))
	ctx := context.Background()

	it := &domain.Item{Name: "Lamp", Price: 5, Quantity: 1, Image: strPtr("uploads/items/lamp.webp")}
	if err := repo.Create(ctx, it); err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := repo.Delete(ctx, it.ID)
	if err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if deleted == nil || deleted.Image == nil || *deleted.Image != "uploads/items/lamp.webp" {
		t.Fatalf("expected deleted row with image, got %+v", deleted)
	}

	again, err := repo.Delete(ctx, it.ID)
	if err != nil {
		t.Fatalf("second delete should succeed, got %v", err)
	}
	if again != nil {
		t.Fatalf("expected nil row on repeat delete, got %+v", again)
	}
}
