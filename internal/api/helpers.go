package api

import (
	"encoding/json"
	"net/http"
	"time"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type errorResponse struct {
	Error      string               `json:"error"`
	Category   errors.ErrorCategory `json:"category,omitempty"`
	Code       errors.ErrorCode     `json:"code,omitempty"`
	Suggestion string               `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps an error category to an HTTP status.
func statusFor(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryValidation, errors.CategoryContext:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleError(w http.ResponseWriter, err error, log logger.Logger) {
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		log.WithError(err).Error("unexpected error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	status := statusFor(rerr.Category)
	entry := log.WithFields(logger.Fields{"category": rerr.Category, "code": rerr.Code})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug(rerr.Message)
	}

	writeJSON(w, status, errorResponse{
		Error:      rerr.Message,
		Category:   rerr.Category,
		Code:       rerr.Code,
		Suggestion: rerr.Suggestion,
	})
}

func requestLogger(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				entry := log.WithFields(logger.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"latency":     time.Since(start),
					"request_id":  middleware.GetReqID(r.Context()),
					"remote_addr": r.RemoteAddr,
					"tenant_id":   r.Header.Get(HeaderTenantID),
				})
				switch {
				case status >= 500:
					entry.Error("http request")
				case status >= 400:
					entry.Warn("http request")
				default:
					entry.Info("http request")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
