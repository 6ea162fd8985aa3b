package middleware

import "net/http"

// StatusRecorder captures the status code written by a handler
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
}

// NewStatusRecorder wraps w; the status defaults to 200
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader captures the status code and passes it on
func (sr *StatusRecorder) WriteHeader(code int) {
	sr.StatusCode = code
	sr.ResponseWriter.WriteHeader(code)
}
