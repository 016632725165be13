package inventoryctl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeAPI struct {
	t     *testing.T
	token string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	write := func(status int, v any) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	if r.URL.Path == "/api/auth/login" {
		write(http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"token": f.token,
			"user":  map[string]any{"id": 1, "email": "admin@example.com", "name": "Admin", "role": "ADMIN", "isActive": true},
		}})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		write(http.StatusUnauthorized, map[string]any{"success": false, "error": "No token provided"})
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/items":
		write(http.StatusOK, map[string]any{"success": true, "data": []map[string]any{
			{"id": 4, "name": "Hammer", "price": 12.5, "quantity": 3},
		}})
	case r.Method == http.MethodDelete && r.URL.Path == "/api/items/4":
		write(http.StatusOK, map[string]any{"success": true, "message": "Item deleted successfully"})
	case r.Method == http.MethodPatch && r.URL.Path == "/api/auth/users/2/role":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		write(http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"id": 2, "email": "u@example.com", "name": "U", "role": body["role"], "isActive": true,
		}})
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		write(http.StatusNotFound, map[string]any{"success": false, "error": "Route not found"})
	}
}

func run(t *testing.T, baseURL, sessionFile string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", "", "--base-url", baseURL, "--session-file", sessionFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionLifecycle(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": 1, "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	srv := httptest.NewServer(&fakeAPI{t: t, token: token})
	defer srv.Close()
	sessionFile := filepath.Join(t.TempDir(), "session.json")

	out, err := run(t, srv.URL, sessionFile, "status")
	if err != nil || !strings.Contains(out, "not logged in") {
		t.Fatalf("status before login: %q %v", out, err)
	}
	if _, err := run(t, srv.URL, sessionFile, "items", "list"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected items list to require login, got %v", err)
	}

	out, err = run(t, srv.URL, sessionFile, "login", "--email", "admin@example.com", "--password", "admin123")
	if err != nil || !strings.Contains(out, "admin@example.com") {
		t.Fatalf("login: %q %v", out, err)
	}

	out, err = run(t, srv.URL, sessionFile, "--json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st statusView
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	if !st.Authenticated || st.User == nil || st.User.Role != "ADMIN" || !st.Permissions.ManageUsers {
		t.Fatalf("unexpected status: %+v", st)
	}

	out, err = run(t, srv.URL, sessionFile, "items", "list")
	if err != nil || !strings.Contains(out, "Hammer") || !strings.Contains(out, "12.50") {
		t.Fatalf("items list: %q %v", out, err)
	}
	out, err = run(t, srv.URL, sessionFile, "items", "delete", "4")
	if err != nil || !strings.Contains(out, "Item deleted successfully") {
		t.Fatalf("items delete: %q %v", out, err)
	}
	out, err = run(t, srv.URL, sessionFile, "users", "role", "2", "admin")
	if err != nil || !strings.Contains(out, "ADMIN") {
		t.Fatalf("users role: %q %v", out, err)
	}
	if _, err := run(t, srv.URL, sessionFile, "items", "get", "zero"); err == nil {
		t.Fatal("expected invalid id error")
	}

	out, err = run(t, srv.URL, sessionFile, "logout")
	if err != nil || !strings.Contains(out, "logged out") {
		t.Fatalf("logout: %q %v", out, err)
	}
	out, err = run(t, srv.URL, sessionFile, "status")
	if err != nil || !strings.Contains(out, "not logged in") {
		t.Fatalf("status after logout: %q %v", out, err)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("12"); err != nil || id != 12 {
		t.Fatalf("parseID(12) = %d, %v", id, err)
	}
	for _, raw := range []string{"0", "-1", "x", ""} {
		if _, err := parseID(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
