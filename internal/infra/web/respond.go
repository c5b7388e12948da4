package web

import (
	"encoding/json"
	"net/http"

	"profile-enrichment/internal/domain"
)

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.CategoryOf(err) {
	case domain.CategoryValidation:
		status = http.StatusBadRequest
	case domain.CategoryNotFound:
		status = http.StatusNotFound
	case domain.CategoryConflict:
		status = http.StatusConflict
	case domain.CategoryUpstream:
		status = http.StatusBadGateway
	case domain.CategoryStorage:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{
		Error:    err.Error(),
		Category: string(domain.CategoryOf(err)),
	})
}
