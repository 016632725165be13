package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/service"
)

func TestAdminHandlerRejectsInvalidUserID(t *testing.T) {
	h := NewAdminHandler(&stubUserSvc{})
	for _, raw := range []string{"0", "-3", "abc", "1.5", ""} {
		req := withURLParam(withActor(httptest.NewRequest(http.MethodDelete, "/", nil), adminActor), "id", raw)
		rr := httptest.NewRecorder()
		h.DeleteUser(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected 400, got %d", raw, rr.Code)
		}
		if msg := decodeEnvelope(t, rr).fieldMessages()["id"]; msg != "Invalid user ID" {
			t.Fatalf("id %q: unexpected message %q", raw, msg)
		}
	}
}

func TestAdminHandlerUpdateUserRole(t *testing.T) {
	var gotRole string
	var gotTarget uint
	h := NewAdminHandler(&stubUserSvc{roleFn: func(actor security.Identity, targetID uint, role string) (*domain.User, error) {
		if actor.UserID == targetID {
			return nil, service.ErrSelfModificationForbidden.WithMessage("Cannot change your own role")
		}
		gotRole, gotTarget = role, targetID
		return &domain.User{ID: targetID, Role: domain.Role(role)}, nil
	}})

	cases := []struct {
		name   string
		id     string
		body   string
		status int
		errMsg string
	}{
		{"lowercase accepted", "5", `{"role":"admin"}`, http.StatusOK, ""},
		{"missing role", "5", `{}`, http.StatusBadRequest, "Validation failed"},
		{"unknown role", "5", `{"role":"ROOT"}`, http.StatusBadRequest, "Validation failed"},
		{"self target", "1", `{"role":"USER"}`, http.StatusBadRequest, "Cannot change your own role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tc.body))
			req = withURLParam(withActor(req, adminActor), "id", tc.id)
			rr := httptest.NewRecorder()
			h.UpdateUserRole(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.errMsg != "" && decodeEnvelope(t, rr).Error != tc.errMsg {
				t.Fatalf("unexpected body %s", rr.Body.String())
			}
		})
	}
	if gotRole != "ADMIN" || gotTarget != 5 {
		t.Fatalf("unexpected service call role=%q target=%d", gotRole, gotTarget)
	}

	rr := httptest.NewRecorder()
	req := withURLParam(withActor(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"role":"ROOT"}`)), adminActor), "id", "5")
	h.UpdateUserRole(rr, req)
	if msg := decodeEnvelope(t, rr).fieldMessages()["role"]; msg != "Role must be either ADMIN or USER" {
		t.Fatalf("unexpected role message %q", msg)
	}
}

func TestAdminHandlerToggleAndDelete(t *testing.T) {
	h := NewAdminHandler(&stubUserSvc{
		toggleFn: func(_ security.Identity, id uint) (*domain.User, error) {
			if id == 404 {
				return nil, service.ErrUserNotFound
			}
			return &domain.User{ID: id, IsActive: false}, nil
		},
		deleteFn: func(_ security.Identity, id uint) error {
			if id == 404 {
				return service.ErrUserNotFound
			}
			return nil
		},
	})

	rr := httptest.NewRecorder()
	h.ToggleUserStatus(rr, withURLParam(withActor(httptest.NewRequest(http.MethodPatch, "/", nil), adminActor), "id", "5"))
	if rr.Code != http.StatusOK || !strings.Contains(string(decodeEnvelope(t, rr).Data), `"isActive":false`) {
		t.Fatalf("toggle: got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ToggleUserStatus(rr, withURLParam(withActor(httptest.NewRequest(http.MethodPatch, "/", nil), adminActor), "id", "404"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("toggle missing: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.DeleteUser(rr, withURLParam(withActor(httptest.NewRequest(http.MethodDelete, "/", nil), adminActor), "id", "5"))
	env := decodeEnvelope(t, rr)
	if rr.Code != http.StatusOK || env.Message != "User deleted successfully" {
		t.Fatalf("delete: got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.DeleteUser(rr, withURLParam(withActor(httptest.NewRequest(http.MethodDelete, "/", nil), adminActor), "id", "404"))
	if rr.Code != http.StatusNotFound || decodeEnvelope(t, rr).Error != "User not found" {
		t.Fatalf("repeat delete: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlerListUsersHidesHashes(t *testing.T) {
	h := NewAdminHandler(&stubUserSvc{listFn: func() ([]domain.User, error) {
		return []domain.User{{ID: 2, Email: "b@example.com", PasswordHash: "secret-hash"}, {ID: 1, Email: "a@example.com"}}, nil
	}})
	rr := httptest.NewRecorder()
	h.ListUsers(rr, withActor(httptest.NewRequest(http.MethodGet, "/", nil), adminActor))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret-hash") {
		t.Fatal("password hash serialised")
	}
}
