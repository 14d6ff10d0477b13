// Package respond writes JSON responses for the HTTP handlers.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Message writes {"message": message}.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// Error logs err and writes message. Server errors are logged at error
// level, client errors at debug level.
func Error(w http.ResponseWriter, logger *zap.Logger, status int, message string, err error) {
	if logger != nil {
		if status >= http.StatusInternalServerError {
			logger.Error(message, zap.Int("status", status), zap.Error(err))
		} else {
			logger.Debug(message, zap.Int("status", status), zap.Error(err))
		}
	}
	Message(w, status, message)
}

// DecodeJSON reads the request body into v. It writes a 400 response and
// returns false if the body is not valid JSON.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Message(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// RequireMethod writes a 405 response and returns false unless the request
// uses one of methods.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	Message(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	return false
}

// PathID parses the last path segment after prefix as an id.
func PathID(r *http.Request, prefix string) (int64, bool) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
