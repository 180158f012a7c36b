// Package middleware holds the HTTP middleware chain of the API.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"cardpress/internal/httpkit"
	apperr "cardpress/internal/pkg/errors"
	"cardpress/internal/pkg/ids"
	"cardpress/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach Flush on the wrapped writer,
// which the job event stream needs.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = ids.Request()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

// Logging emits one line per request, at warn for 4xx and error for 5xx.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			logFn := log.FromContext(r.Context()).Info
			switch {
			case status >= 500:
				logFn = log.FromContext(r.Context()).Error
			case status >= 400:
				logFn = log.FromContext(r.Context()).Warn
			}
			logFn("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"size", sw.size,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery turns handler panics into a 500 envelope.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.FromContext(r.Context()).Error("panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				httpkit.WriteErr(w, http.StatusInternalServerError, string(apperr.CodeInternal), "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context. Handlers that honour ctx and return
// context.DeadlineExceeded are answered with 504 by HandleError.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandlerFunc is an http handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap adapts fn to http.HandlerFunc, routing returned errors through
// HandleError.
func Wrap(log *logger.Logger, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err and writes the error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	if errors.Is(err, context.DeadlineExceeded) && !apperr.IsCode(err, apperr.CodeTimeout) {
		err = apperr.WrapWithCode(err, apperr.CodeTimeout, "", "request timed out")
	}

	status := apperr.GetHTTPStatus(err)
	fields := []any{
		"error", err.Error(),
		"code", string(apperr.GetCode(err)),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	reqLog := log.FromContext(r.Context())
	if status >= 500 {
		var e *apperr.Error
		if apperr.As(err, &e) && len(e.Stack) > 0 {
			fields = append(fields, "stack", e.StackTrace())
		}
		reqLog.Error("request failed", fields...)
	} else {
		reqLog.Warn("request rejected", fields...)
	}

	httpkit.WriteError(w, err)
}
