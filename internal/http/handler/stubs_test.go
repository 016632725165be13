package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/http/middleware"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/service"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

var errNotImplemented = errors.New("not implemented")

type stubAuthSvc struct {
	registerFn func(in service.RegisterInput) (*service.AuthResult, error)
	loginFn    func(email, password string) (*service.AuthResult, error)
}

func (s *stubAuthSvc) Register(_ context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	if s.registerFn != nil {
		return s.registerFn(in)
	}
	return nil, errNotImplemented
}

func (s *stubAuthSvc) Login(_ context.Context, email, password string) (*service.AuthResult, error) {
	if s.loginFn != nil {
		return s.loginFn(email, password)
	}
	return nil, errNotImplemented
}

type stubUserSvc struct {
	getProfileFn    func(actor security.Identity) (*domain.User, error)
	getUserFn       func(id uint) (*domain.User, error)
	updateProfileFn func(actor security.Identity, in service.ProfileUpdate) (*domain.User, error)
	listFn          func() ([]domain.User, error)
	roleFn          func(actor security.Identity, targetID uint, role string) (*domain.User, error)
	toggleFn        func(actor security.Identity, targetID uint) (*domain.User, error)
	deleteFn        func(actor security.Identity, targetID uint) error
	avatarFn        func(actor security.Identity, in upload.Input) (*domain.User, error)
	deleteAvatarFn  func(actor security.Identity) (*domain.User, error)
}

func (s *stubUserSvc) GetProfile(_ context.Context, actor security.Identity) (*domain.User, error) {
	if s.getProfileFn != nil {
		return s.getProfileFn(actor)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) GetUser(_ context.Context, id uint) (*domain.User, error) {
	if s.getUserFn != nil {
		return s.getUserFn(id)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) UpdateProfile(_ context.Context, actor security.Identity, in service.ProfileUpdate) (*domain.User, error) {
	if s.updateProfileFn != nil {
		return s.updateProfileFn(actor, in)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) ListUsers(context.Context) ([]domain.User, error) {
	if s.listFn != nil {
		return s.listFn()
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) UpdateUserRole(_ context.Context, actor security.Identity, targetID uint, role string) (*domain.User, error) {
	if s.roleFn != nil {
		return s.roleFn(actor, targetID, role)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) ToggleUserStatus(_ context.Context, actor security.Identity, targetID uint) (*domain.User, error) {
	if s.toggleFn != nil {
		return s.toggleFn(actor, targetID)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) DeleteUser(_ context.Context, actor security.Identity, targetID uint) error {
	if s.deleteFn != nil {
		return s.deleteFn(actor, targetID)
	}
	return errNotImplemented
}

func (s *stubUserSvc) UpdateAvatar(_ context.Context, actor security.Identity, in upload.Input) (*domain.User, error) {
	if s.avatarFn != nil {
		return s.avatarFn(actor, in)
	}
	return nil, errNotImplemented
}

func (s *stubUserSvc) DeleteAvatar(_ context.Context, actor security.Identity) (*domain.User, error) {
	if s.deleteAvatarFn != nil {
		return s.deleteAvatarFn(actor)
	}
	return nil, errNotImplemented
}

type stubItemSvc struct {
	listFn        func() ([]domain.Item, error)
	listPagedFn   func(req repository.PageRequest) (repository.PageResult[domain.Item], error)
	getFn         func(id uint) (*domain.Item, error)
	createFn      func(in service.CreateItemInput, image *upload.Input) (*domain.Item, error)
	updateFn      func(id uint, in service.UpdateItemInput, image *upload.Input) (*domain.Item, error)
	deleteFn      func(id uint) (service.DeleteItemResult, error)
	deleteImageFn func(id uint) (*domain.Item, error)
}

func (s *stubItemSvc) List(context.Context) ([]domain.Item, error) {
	if s.listFn != nil {
		return s.listFn()
	}
	return nil, errNotImplemented
}

func (s *stubItemSvc) ListPaged(_ context.Context, req repository.PageRequest) (repository.PageResult[domain.Item], error) {
	if s.listPagedFn != nil {
		return s.listPagedFn(req)
	}
	return repository.PageResult[domain.Item]{}, errNotImplemented
}

func (s *stubItemSvc) Get(_ context.Context, id uint) (*domain.Item, error) {
	if s.getFn != nil {
		return s.getFn(id)
	}
	return nil, errNotImplemented
}

func (s *stubItemSvc) Create(_ context.Context, in service.CreateItemInput, image *upload.Input) (*domain.Item, error) {
	if s.createFn != nil {
		return s.createFn(in, image)
	}
	return nil, errNotImplemented
}

func (s *stubItemSvc) Update(_ context.Context, id uint, in service.UpdateItemInput, image *upload.Input) (*domain.Item, error) {
	if s.updateFn != nil {
		return s.updateFn(id, in, image)
	}
	return nil, errNotImplemented
}

func (s *stubItemSvc) Delete(_ context.Context, id uint) (service.DeleteItemResult, error) {
	if s.deleteFn != nil {
		return s.deleteFn(id)
	}
	return service.DeleteItemResult{}, errNotImplemented
}

func (s *stubItemSvc) DeleteImage(_ context.Context, id uint) (*domain.Item, error) {
	if s.deleteImageFn != nil {
		return s.deleteImageFn(id)
	}
	return nil, errNotImplemented
}

var (
	adminActor = security.Identity{UserID: 1, Email: "admin@example.com", Role: domain.RoleAdmin}
	userActor  = security.Identity{UserID: 7, Email: "user@example.com", Role: domain.RoleUser}
)

func withActor(r *http.Request, id security.Identity) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), id))
}

func withURLParam(r *http.Request, key, val string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, val)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	return env
}

// fieldMessages maps each reported field to its message.
func (e envelope) fieldMessages() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field] = fe.Message
	}
	return out
}

func strPtr(s string) *string { return &s }
