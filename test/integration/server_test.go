package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ayesh156/roxeleye-crud/internal/database"
	"github.com/ayesh156/roxeleye-crud/internal/health"
	"github.com/ayesh156/roxeleye-crud/internal/http/handler"
	"github.com/ayesh156/roxeleye-crud/internal/http/router"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/service"
	"github.com/ayesh156/roxeleye-crud/internal/storage"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin123"
	uploadMax     = 2 << 20
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type testServer struct {
	baseURL string
	db      *gorm.DB
	store   *storage.LocalStore
}

// newTestServer assembles the production router over sqlite and a local
// upload directory, with a bootstrap admin already seeded.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "inventory.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hasher := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	if _, err := database.Seed(context.Background(), db, hasher, database.BootstrapAdmin{
		Email: adminEmail, Password: adminPassword, Name: "Admin",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	items := repository.NewItemRepository(db)
	jwtMgr := security.NewJWTManager("integration-secret-integration-secret", "roxeleye-test", time.Hour)
	cache := service.NewUserListCache(service.NewInMemoryListCacheStore(), time.Minute, log)
	pipeline := upload.NewPipeline(store, upload.Options{MaxBytes: uploadMax, MaxDimension: 800, Quality: 80}, log)

	authSvc := service.NewAuthService(users, hasher, jwtMgr, cache, log)
	userSvc := service.NewUserService(users, hasher, pipeline, cache, log)
	itemSvc := service.NewItemService(items, pipeline, log)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:   handler.NewAuthHandler(authSvc),
		UserHandler:   handler.NewUserHandler(userSvc, uploadMax),
		AdminHandler:  handler.NewAdminHandler(userSvc),
		ItemHandler:   handler.NewItemHandler(itemSvc, uploadMax),
		UploadHandler: handler.NewUploadHandler(store),
		JWTManager:    jwtMgr,
		Readiness:     health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db), health.NewStorageChecker(store)),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{baseURL: srv.URL, db: db, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, token)
}

func (s *testServer) doMultipart(t *testing.T, method, path, token, fileField string, file []byte, fields map[string]string) (int, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="` + fileField + `"; filename="photo.png"`}
		hdr["Content-Type"] = []string{"image/png"}
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(file)
	}
	_ = mw.Close()
	req, err := http.NewRequest(method, s.baseURL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) (int, apiEnvelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var env apiEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, email, password string) (string, uint) {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		t.Fatalf("login %s: status=%d error=%q", email, status, env.Error)
	}
	var data struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	decodeData(t, env, &data)
	return data.Token, data.User.ID
}

func decodeData(t *testing.T, env apiEnvelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
