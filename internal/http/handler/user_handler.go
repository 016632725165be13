package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/http/middleware"
	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/service"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

type UserService interface {
	GetProfile(ctx context.Context, actor security.Identity) (*domain.User, error)
	GetUser(ctx context.Context, id uint) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor security.Identity, in service.ProfileUpdate) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserRole(ctx context.Context, actor security.Identity, targetID uint, role string) (*domain.User, error)
	ToggleUserStatus(ctx context.Context, actor security.Identity, targetID uint) (*domain.User, error)
	DeleteUser(ctx context.Context, actor security.Identity, targetID uint) error
	UpdateAvatar(ctx context.Context, actor security.Identity, in upload.Input) (*domain.User, error)
	DeleteAvatar(ctx context.Context, actor security.Identity) (*domain.User, error)
}

type UserHandler struct {
	userSvc        UserService
	uploadMaxBytes int64
}

func NewUserHandler(userSvc UserService, uploadMaxBytes int64) *UserHandler {
	return &UserHandler{userSvc: userSvc, uploadMaxBytes: uploadMaxBytes}
}

type profileRequest struct {
	Name            *string `json:"name" validate:"omitnil,min=2,max=50" msg:"Name must be between 2 and 50 characters"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
}

// normalize drops a blank name so it counts as not sent.
func (r *profileRequest) normalize() {
	if r.Name == nil {
		return
	}
	name := strings.TrimSpace(*r.Name)
	if name == "" {
		r.Name = nil
		return
	}
	r.Name = &name
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	user, err := h.userSvc.GetProfile(r.Context(), actor)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userSvc.UpdateProfile(r.Context(), actor, service.ProfileUpdate{
		Name:            req.Name,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		observability.Audit(r, "user.profile.update", "failure", "user_id", actor.UserID, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "user.profile.update", "success", "user_id", actor.UserID, "password_changed", req.NewPassword != "")
	response.OK(w, r, user)
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	f, ok := parseForm(w, r, "avatar", h.uploadMaxBytes)
	if !ok {
		return
	}
	defer f.Close()
	if f.file == nil {
		response.Fail(w, r, upload.ErrMissingFile)
		return
	}
	user, err := h.userSvc.UpdateAvatar(r.Context(), actor, *f.file)
	if err != nil {
		observability.Audit(r, "user.avatar.update", "failure", "user_id", actor.UserID, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "user.avatar.update", "success", "user_id", actor.UserID)
	response.OK(w, r, user)
}

func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	user, err := h.userSvc.DeleteAvatar(r.Context(), actor)
	if err != nil {
		observability.Audit(r, "user.avatar.delete", "failure", "user_id", actor.UserID, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "user.avatar.delete", "success", "user_id", actor.UserID)
	response.OK(w, r, user)
}

// actorFrom reads the authenticated identity or writes a 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (security.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "Not authenticated")
		return security.Identity{}, false
	}
	return id, true
}
