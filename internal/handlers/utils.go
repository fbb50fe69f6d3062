package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"video-pipeline/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatusCode sets the JSON content type and status before the body.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status string) {
	writeJSONStatusCode(w, statusCode, map[string]string{"status": status})
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
