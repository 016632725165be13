package handler

import (
	"net/http"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
)

const msgInvalidUserID = "Invalid user ID"

// AdminHandler serves account management. Routes are mounted behind
// RequireRole(ADMIN), except GetUser which also admits the account owner.
type AdminHandler struct {
	userSvc UserService
}

func NewAdminHandler(userSvc UserService) *AdminHandler {
	return &AdminHandler{userSvc: userSvc}
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN USER" msg_required:"Role is required" msg_oneof:"Role must be either ADMIN or USER"`
}

func (r *roleRequest) normalize() {
	r.Role = strings.ToUpper(strings.TrimSpace(r.Role))
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.ListUsers(r.Context())
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, users)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", msgInvalidUserID)
	if !ok {
		return
	}
	user, err := h.userSvc.GetUser(r.Context(), id)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, user)
}

func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", msgInvalidUserID)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userSvc.UpdateUserRole(r.Context(), actor, id, req.Role)
	if err != nil {
		observability.Audit(r, "admin.user.role", "failure", "actor_id", actor.UserID, "target_id", id, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "admin.user.role", "success", "actor_id", actor.UserID, "target_id", id, "role", user.Role)
	response.OK(w, r, user)
}

func (h *AdminHandler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", msgInvalidUserID)
	if !ok {
		return
	}
	user, err := h.userSvc.ToggleUserStatus(r.Context(), actor, id)
	if err != nil {
		observability.Audit(r, "admin.user.status", "failure", "actor_id", actor.UserID, "target_id", id, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "admin.user.status", "success", "actor_id", actor.UserID, "target_id", id, "is_active", user.IsActive)
	response.OK(w, r, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", msgInvalidUserID)
	if !ok {
		return
	}
	if err := h.userSvc.DeleteUser(r.Context(), actor, id); err != nil {
		observability.Audit(r, "admin.user.delete", "failure", "actor_id", actor.UserID, "target_id", id, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "admin.user.delete", "success", "actor_id", actor.UserID, "target_id", id)
	response.Message(w, r, nil, "User deleted successfully")
}
