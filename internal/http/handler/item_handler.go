package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/service"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

const msgInvalidItemID = "Invalid item ID"

type ItemService interface {
	List(ctx context.Context) ([]domain.Item, error)
	ListPaged(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.Item], error)
	Get(ctx context.Context, id uint) (*domain.Item, error)
	Create(ctx context.Context, in service.CreateItemInput, image *upload.Input) (*domain.Item, error)
	Update(ctx context.Context, id uint, in service.UpdateItemInput, image *upload.Input) (*domain.Item, error)
	Delete(ctx context.Context, id uint) (service.DeleteItemResult, error)
	DeleteImage(ctx context.Context, id uint) (*domain.Item, error)
}

type ItemHandler struct {
	itemSvc        ItemService
	uploadMaxBytes int64
}

func NewItemHandler(itemSvc ItemService, uploadMaxBytes int64) *ItemHandler {
	return &ItemHandler{itemSvc: itemSvc, uploadMaxBytes: uploadMaxBytes}
}

// Item bodies arrive as form fields, so numbers are validated as text.
type createItemRequest struct {
	Name        string  `json:"name" validate:"notblank,min=2,max=100" msg_notblank:"Item name is required" msg:"Item name must be between 2 and 100 characters"`
	Description *string `json:"description" validate:"omitnil,max=500" msg:"Description cannot exceed 500 characters"`
	Price       *string `json:"price" validate:"omitnil,nonnegfloat" msg:"Price must be a positive number"`
	Quantity    *string `json:"quantity" validate:"omitnil,nonnegint" msg:"Quantity must be a non-negative integer"`
}

func (r *createItemRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = trimPtr(r.Description)
}

type updateItemRequest struct {
	Name        *string `json:"name" validate:"omitnil,notblank,min=2,max=100" msg_notblank:"Item name cannot be empty" msg:"Item name must be between 2 and 100 characters"`
	Description *string `json:"description" validate:"omitnil,max=500" msg:"Description cannot exceed 500 characters"`
	Price       *string `json:"price" validate:"omitnil,nonnegfloat" msg:"Price must be a positive number"`
	Quantity    *string `json:"quantity" validate:"omitnil,nonnegint" msg:"Quantity must be a non-negative integer"`
}

func (r *updateItemRequest) normalize() {
	r.Name = trimPtr(r.Name)
	r.Description = trimPtr(r.Description)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("page") && !q.Has("pageSize") {
		items, err := h.itemSvc.List(r.Context())
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.OK(w, r, items)
		return
	}
	pageReq, err := parsePageRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.itemSvc.ListPaged(r.Context(), pageReq)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", msgInvalidItemID)
	if !ok {
		return
	}
	item, err := h.itemSvc.Get(r.Context(), id)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, item)
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	f, ok := parseForm(w, r, "image", h.uploadMaxBytes)
	if !ok {
		return
	}
	defer f.Close()

	req := createItemRequest{Description: f.value("description"), Price: f.value("price"), Quantity: f.value("quantity")}
	if name := f.value("name"); name != nil {
		req.Name = *name
	}
	if !validateRequest(w, r, &req) {
		return
	}
	in := service.CreateItemInput{Name: req.Name, Description: req.Description}
	if req.Price != nil {
		in.Price, _ = strconv.ParseFloat(strings.TrimSpace(*req.Price), 64)
	}
	if req.Quantity != nil {
		in.Quantity, _ = strconv.Atoi(strings.TrimSpace(*req.Quantity))
	}

	item, err := h.itemSvc.Create(r.Context(), in, f.file)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Created(w, r, item)
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", msgInvalidItemID)
	if !ok {
		return
	}
	f, ok := parseForm(w, r, "image", h.uploadMaxBytes)
	if !ok {
		return
	}
	defer f.Close()

	req := updateItemRequest{
		Name:        f.value("name"),
		Description: f.value("description"),
		Price:       f.value("price"),
		Quantity:    f.value("quantity"),
	}
	if !validateRequest(w, r, &req) {
		return
	}
	in := service.UpdateItemInput{Name: req.Name, Description: req.Description}
	if req.Price != nil {
		price, _ := strconv.ParseFloat(strings.TrimSpace(*req.Price), 64)
		in.Price = &price
	}
	if req.Quantity != nil {
		quantity, _ := strconv.Atoi(strings.TrimSpace(*req.Quantity))
		in.Quantity = &quantity
	}

	item, err := h.itemSvc.Update(r.Context(), id, in, f.file)
	if err != nil {
		observability.Audit(r, "item.update", "failure", "item_id", id, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "item.update", "success", "item_id", id)
	response.OK(w, r, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", msgInvalidItemID)
	if !ok {
		return
	}
	res, err := h.itemSvc.Delete(r.Context(), id)
	if err != nil {
		observability.Audit(r, "item.delete", "failure", "item_id", id, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	if res.AlreadyDeleted {
		response.Message(w, r, nil, "Item already deleted")
		return
	}
	observability.Audit(r, "item.delete", "success", "item_id", id)
	response.Message(w, r, nil, "Item deleted successfully")
}

func (h *ItemHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", msgInvalidItemID)
	if !ok {
		return
	}
	item, err := h.itemSvc.DeleteImage(r.Context(), id)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "item.image.delete", "success", "item_id", id)
	response.Message(w, r, item, "Image deleted successfully")
}

func parsePageRequest(r *http.Request) (repository.PageRequest, error) {
	page := repository.DefaultPage
	pageSize := repository.DefaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page must be a positive integer")
		}
		page = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("pageSize must be a positive integer")
		}
		if v > repository.MaxPageSize {
			return repository.PageRequest{}, fmt.Errorf("pageSize must be <= %d", repository.MaxPageSize)
		}
		pageSize = v
	}
	return repository.PageRequest{Page: page, PageSize: pageSize}, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
