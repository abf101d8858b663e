package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxJSONBody caps JSON request bodies. Imports have their own limit.
const maxJSONBody = 1 << 20

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseBoolParam returns nil when the parameter is absent.
func parseBoolParam(r *http.Request, name string) (*bool, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, badRequest("invalid "+name, err)
	}
	return &b, nil
}

// parseTimeParam accepts RFC 3339 or a bare YYYY-MM-DD date.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, val)
	if err != nil {
		return time.Time{}, badRequest("invalid "+name, err)
	}
	return t, nil
}

// uuidParam reads a UUID path parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, badRequest("invalid "+name, err)
	}
	return id, nil
}
