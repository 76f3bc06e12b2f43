package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"mesh-pipeline-service/internal/repository/postgresql"
	"mesh-pipeline-service/internal/service"
	"mesh-pipeline-service/internal/storage"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeServiceErr maps the service error taxonomy onto status codes:
// unknown job 404, not-ready 409, bad input 400, everything else 5xx.
func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, postgresql.ErrNotFound):
		writeErr(w, http.StatusNotFound, "job not found")
	case errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotReady):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidUpload),
		errors.Is(err, service.ErrInvalidScale),
		errors.Is(err, service.ErrUnknownFormat):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
