package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Routes wires the public API. /jobs/{id}/status is an alias of /job/{id}
// kept for older clients.
func Routes(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Post("/upload", h.Upload)
	r.Get("/job/{id}", h.GetStatus)
	r.Get("/jobs/{id}/status", h.GetStatus)
	r.Get("/result/{id}", h.GetResult)

	r.Post("/dimension/validate/{id}", h.ValidateDimension)
	r.Post("/dimension/update/{id}", h.UpdateDimension)

	r.Get("/download/{id}/{format}", h.Download)

	r.Get("/health", h.Health)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
