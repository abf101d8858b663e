package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/logging"
)

var (
	errNoFile      = errors.New("no file provided")
	errRateLimited = errors.New("rate limit exceeded")
)

// badRequestError marks malformed input the core never saw: bad JSON,
// a bad UUID in the path, an unparsable query parameter.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &badRequestError{msg: msg, err: err}
}

// ErrorResponse is the JSON body of every error. Code is machine readable;
// Message and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var (
		parseErr *core.ParseError
		badReq   *badRequestError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFormat),
		errors.As(err, &parseErr),
		errors.As(err, &badReq),
		errors.Is(err, errNoFile),
		core.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail responds with the status statusFor picks.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, statusFor(err))
}

// respondError logs the technical error with the request ID and writes the
// coded user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"user_id", core.UserIDFromContext(r.Context()),
	)

	// Validation messages name the field and the allowed values; show them as is.
	text := msg.Message
	if core.IsValidationError(err) {
		text = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   text,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v with status. Encoding errors are only logged since
// the header has been sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("invalid request body", err)
	}
	return nil
}
