package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/health"
	"github.com/ayesh156/roxeleye-crud/internal/http/handler"
	"github.com/ayesh156/roxeleye-crud/internal/http/middleware"
	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/security"
)

// jsonBodyLimit caps non-upload request bodies. Upload routes parse their
// own limit from the configured maximum image size.
const jsonBodyLimit = 1 << 20

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AdminHandler   *handler.AdminHandler
	ItemHandler    *handler.ItemHandler
	UploadHandler  *handler.UploadHandler
	JWTManager     *security.JWTManager
	CORSOrigins    []string
	Readiness      *health.ProbeRunner
	RequestLogger  func(http.Handler) http.Handler
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	if dep.RequestLogger != nil {
		r.Use(dep.RequestLogger)
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ready, results := dep.Readiness.Ready(r.Context())
		if results == nil {
			results = []health.CheckResult{}
		}
		if ready {
			response.OK(w, r, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.JSON(w, r, http.StatusServiceUnavailable, response.Envelope{
			Success: false,
			Error:   "Dependencies are not ready",
			Data:    map[string]any{"status": "unready", "checks": results},
		})
	})
	r.Get("/uploads/*", dep.UploadHandler.Serve)
	r.Head("/uploads/*", dep.UploadHandler.Serve)

	authn := middleware.AuthMiddleware(dep.JWTManager)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)
	jsonLimit := middleware.BodyLimit(jsonBodyLimit)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(jsonLimit).Post("/register", dep.AuthHandler.Register)
		r.With(jsonLimit).Post("/login", dep.AuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/profile", dep.UserHandler.Profile)
			r.With(jsonLimit).Patch("/profile", dep.UserHandler.UpdateProfile)
			r.Post("/avatar", dep.UserHandler.UploadAvatar)
			r.Delete("/avatar", dep.UserHandler.DeleteAvatar)

			r.With(middleware.RequireSelfOrRole("id", domain.RoleAdmin)).Get("/users/{id}", dep.AdminHandler.GetUser)
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/users", dep.AdminHandler.ListUsers)
				r.With(jsonLimit).Patch("/users/{id}/role", dep.AdminHandler.UpdateUserRole)
				r.Patch("/users/{id}/status", dep.AdminHandler.ToggleUserStatus)
				r.Delete("/users/{id}", dep.AdminHandler.DeleteUser)
			})
		})
	})

	r.Route("/api/items", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", dep.ItemHandler.List)
		r.Get("/{id}", dep.ItemHandler.Get)
		r.Post("/", dep.ItemHandler.Create)
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Put("/{id}", dep.ItemHandler.Update)
			r.Delete("/{id}", dep.ItemHandler.Delete)
			r.Delete("/{id}/image", dep.ItemHandler.DeleteImage)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
