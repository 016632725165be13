package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
}

type AuthHandler struct {
	authSvc AuthService
}

func NewAuthHandler(authSvc AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email" msg_required:"Email is required" msg_email:"Please provide a valid email"`
	Password string `json:"password" validate:"required,min=6,containsany=0123456789" msg_required:"Password is required" msg_min:"Password must be at least 6 characters" msg_containsany:"Password must contain at least one number"`
	Name     string `json:"name" validate:"required,min=2,max=50" msg_required:"Name is required" msg:"Name must be between 2 and 50 characters"`
}

func (r *registerRequest) normalize() {
	r.Email = domain.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email" msg_required:"Email is required" msg_email:"Please provide a valid email"`
	Password string `json:"password" validate:"required" msg:"Password is required"`
}

func (r *loginRequest) normalize() {
	r.Email = domain.NormalizeEmail(r.Email)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		observability.Audit(r, "auth.register", "invalid")
		return
	}
	result, err := h.authSvc.Register(r.Context(), service.RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		observability.Audit(r, "auth.register", "failure", "email", req.Email, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "success", "user_id", result.User.ID)
	response.Created(w, r, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		observability.Audit(r, "auth.login", "invalid")
		return
	}
	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.Audit(r, "auth.login", "failure", "email", req.Email, "reason", err.Error())
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "success", "user_id", result.User.ID)
	response.OK(w, r, result)
}
