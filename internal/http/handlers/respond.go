package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"bess-analytics/internal/analytics"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// analyticsStatus maps core errors onto HTTP statuses: structural problems
// with the request data are the caller's fault.
func analyticsStatus(err error) int {
	var missingCol *analytics.MissingColumnError
	var schema *analytics.SchemaError
	switch {
	case errors.As(err, &missingCol),
		errors.As(err, &schema),
		errors.Is(err, analytics.ErrInvalidContamination):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
