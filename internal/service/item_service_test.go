package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayesh156/roxeleye-crud/internal/apperror"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
)

func TestItemServiceCreate(t *testing.T) {
	ctx := context.Background()
	desc := "  a sturdy widget  "

	t.Run("without image", func(t *testing.T) {
		fx := newServiceFixture(t)
		item, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "  Widget ", Description: &desc, Price: 9.5, Quantity: 3}, nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if item.Name != "Widget" || item.Description == nil || *item.Description != "a sturdy widget" || item.Image != nil {
			t.Fatalf("unexpected item %+v", item)
		}
	})

	t.Run("invalid fields", func(t *testing.T) {
		fx := newServiceFixture(t)
		cases := []CreateItemInput{
			{Name: "x", Price: 1},
			{Name: "Widget", Price: -1},
			{Name: "Widget", Quantity: -2},
		}
		for _, in := range cases {
			_, err := fx.itemSvc.Create(ctx, in, nil)
			if !errors.Is(err, ErrInvalidItem) || apperror.KindOf(err) != apperror.KindValidation {
				t.Fatalf("expected validation error for %+v, got %v", in, err)
			}
		}
	})

	t.Run("with image stores a webp reference", func(t *testing.T) {
		fx := newServiceFixture(t)
		item, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Widget", Price: 1}, pngUpload(t, 900, 300))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if item.Image == nil || filepath.Ext(*item.Image) != ".webp" || !fx.assetExists(t, *item.Image) {
			t.Fatalf("expected stored webp image, got %+v", item.Image)
		}
	})

	t.Run("failed insert removes the new image", func(t *testing.T) {
		fx := newServiceFixture(t)
		fx.items.createErr = errors.New("disk I/O error")
		_, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Widget", Price: 1}, pngUpload(t, 20, 20))
		if apperror.KindOf(err) != apperror.KindInternal {
			t.Fatalf("expected internal failure, got %v", err)
		}
		entries, _ := os.ReadDir(filepath.Join(fx.store.Root(), "items"))
		if len(entries) != 0 {
			t.Fatalf("expected no orphaned files, found %d", len(entries))
		}
	})
}

func TestItemServiceUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("missing item with image rolls back", func(t *testing.T) {
		fx := newServiceFixture(t)
		name := "Renamed"
		_, err := fx.itemSvc.Update(ctx, 42, UpdateItemInput{Name: &name}, pngUpload(t, 20, 20))
		if !errors.Is(err, ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
		entries, _ := os.ReadDir(filepath.Join(fx.store.Root(), "items"))
		if len(entries) != 0 {
			t.Fatalf("expected rollback, found %d files", len(entries))
		}
	})

	t.Run("missing item without image", func(t *testing.T) {
		fx := newServiceFixture(t)
		if _, err := fx.itemSvc.Update(ctx, 42, UpdateItemInput{}, nil); !errors.Is(err, ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("partial update keeps other fields and replaces image", func(t *testing.T) {
		fx := newServiceFixture(t)
		item, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Widget", Price: 2, Quantity: 5}, pngUpload(t, 20, 20))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		oldRef := *item.Image
		price := 3.25
		updated, err := fx.itemSvc.Update(ctx, item.ID, UpdateItemInput{Price: &price}, pngUpload(t, 30, 30))
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.Name != "Widget" || updated.Quantity != 5 || updated.Price != 3.25 {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if *updated.Image == oldRef || fx.assetExists(t, oldRef) || !fx.assetExists(t, *updated.Image) {
			t.Fatal("expected old image replaced and removed")
		}
	})

	t.Run("negative quantity rejected", func(t *testing.T) {
		fx := newServiceFixture(t)
		q := -1
		if _, err := fx.itemSvc.Update(ctx, 1, UpdateItemInput{Quantity: &q}, nil); !errors.Is(err, ErrInvalidItem) {
			t.Fatalf("expected ErrInvalidItem, got %v", err)
		}
	})
}

func TestItemServiceDeleteIsIdempotent(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	item, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Widget", Price: 1}, pngUpload(t, 20, 20))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := fx.itemSvc.Delete(ctx, item.ID)
	if err != nil || res.AlreadyDeleted {
		t.Fatalf("first delete = %+v, %v", res, err)
	}
	if fx.assetExists(t, *item.Image) {
		t.Fatal("expected image removed with the item")
	}
	res, err = fx.itemSvc.Delete(ctx, item.ID)
	if err != nil || !res.AlreadyDeleted {
		t.Fatalf("repeat delete = %+v, %v", res, err)
	}
	if _, err := fx.itemSvc.Get(ctx, item.ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestItemServiceDeleteImage(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	if _, err := fx.itemSvc.DeleteImage(ctx, 9); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	plain, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Plain", Price: 1}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fx.itemSvc.DeleteImage(ctx, plain.ID); !errors.Is(err, ErrItemHasNoImage) {
		t.Fatalf("expected ErrItemHasNoImage, got %v", err)
	}

	pictured, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: "Pictured", Price: 1}, pngUpload(t, 20, 20))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ref := *pictured.Image
	cleared, err := fx.itemSvc.DeleteImage(ctx, pictured.ID)
	if err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if cleared.Image != nil || fx.assetExists(t, ref) {
		t.Fatal("expected image reference and file removed")
	}
}

func TestItemServiceListPaged(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	for _, name := range []string{"First", "Second", "Third"} {
		if _, err := fx.itemSvc.Create(ctx, CreateItemInput{Name: name, Price: 1}, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	all, err := fx.itemSvc.List(ctx)
	if err != nil || len(all) != 3 || all[0].Name != "Third" {
		t.Fatalf("List = %+v, %v", all, err)
	}
	page, err := fx.itemSvc.ListPaged(ctx, repository.PageRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListPaged: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].Name != "First" {
		t.Fatalf("unexpected page %+v", page)
	}
}
