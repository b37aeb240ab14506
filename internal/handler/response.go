package handler

import (
	"encoding/json"
	"net/http"

	"github.com/choisimo/proxy-rotator/internal/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a pool error to its HTTP status and writes the standard
// error envelope
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.GetHTTPStatusCode(err), map[string]string{
		"error": err.Error(),
	})
}

// writeErrorMessage writes an error envelope with an explicit status code
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
