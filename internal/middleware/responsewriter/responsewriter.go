// Package responsewriter records the status code written by a handler so
// middlewares can report it after the handler returns.
package responsewriter

import (
	"context"
	"errors"
	"net/http"
)

// Using an unexported type prevents key collisions from other packages.
type recorderKey string

// RecorderKey is the context key for the status recorder.
const RecorderKey recorderKey = "status-recorder"

// StatusRecorder wraps a http.ResponseWriter and remembers the status code.
type StatusRecorder struct {
	http.ResponseWriter

	status int
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w}
}

func (r *StatusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}

// Status returns the written status code, 200 when the handler wrote
// nothing.
func (r *StatusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *StatusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware wraps the response writer in a StatusRecorder and makes the
// recorder available from the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewStatusRecorder(w)
		ctx := context.WithValue(r.Context(), RecorderKey, rec)
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// RecorderFromContext returns the recorder installed by Middleware.
func RecorderFromContext(ctx context.Context) (*StatusRecorder, error) {
	rec, ok := ctx.Value(RecorderKey).(*StatusRecorder)
	if !ok {
		return nil, errors.New("status recorder not found in context")
	}
	return rec, nil
}
