package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prismkeys/prism/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an {"error": message} envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{Error: message})
}

// writeMessage writes a {"message": message} envelope, the shape older
// dashboard clients expect from the auth routes.
func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{Message: message})
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing, cannot be parsed or is zero.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n == 0 {
		return defaultVal
	}
	return n
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
