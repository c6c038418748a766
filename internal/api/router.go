// Package api serves a read-only HTTP view of reconciliation history.
//
// Every /v1 route is tenant scoped through the X-Tenant-ID header. The
// optional X-User-ID header is carried into the actor for log fields.
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang-bank-reconciliation/internal/history"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request headers carrying the caller's identity.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

var tracer = observability.Tracer("api")

// History is the part of the history index the API reads from.
type History interface {
	List(ctx context.Context, actor models.Actor, filter history.Filter) (*history.Page, error)
	Open(ctx context.Context, actor models.Actor, id string) (*models.Session, error)
	Export(ctx context.Context, actor models.Actor, id string, format reporter.OutputFormat, w io.Writer) error
}

// NewRouter creates the HTTP router with all routes and middleware. A nil
// metrics serves an empty /metrics page.
func NewRouter(idx History, metrics *observability.Metrics, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("api")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler())
	r.Handle("/metrics", metricsHandler(metrics))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", listSessionsHandler(idx, log))
		r.Get("/sessions/{id}", getSessionHandler(idx, log))
		r.Get("/sessions/{id}/export", exportSessionHandler(idx, log))
	})

	return r
}

func metricsHandler(metrics *observability.Metrics) http.Handler {
	if metrics == nil {
		return promhttp.HandlerFor(observability.NewMetrics().Registry, promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func listSessionsHandler(idx History, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), tracer, "api.list_sessions", r.Header.Get(HeaderTenantID), "")
		var err error
		defer func() { observability.EndSpan(span, err) }()

		filter, err := parseFilter(r)
		if err != nil {
			handleError(w, err, log)
			return
		}

		page, err := idx.List(ctx, actorFrom(r), filter)
		if err != nil {
			handleError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func getSessionHandler(idx History, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, span := observability.StartSpan(r.Context(), tracer, "api.get_session", r.Header.Get(HeaderTenantID), id)
		var err error
		defer func() { observability.EndSpan(span, err) }()

		session, err := idx.Open(ctx, actorFrom(r), id)
		if err != nil {
			handleError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func exportSessionHandler(idx History, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, span := observability.StartSpan(r.Context(), tracer, "api.export_session", r.Header.Get(HeaderTenantID), id)
		var err error
		defer func() { observability.EndSpan(span, err) }()

		raw := r.URL.Query().Get("format")
		if raw == "" {
			raw = string(reporter.FormatJSON)
		}
		format, err := reporter.ParseFormat(raw)
		if err != nil {
			handleError(w, errors.ValidationError(errors.CodeInvalidValue, "format", raw, err), log)
			return
		}

		// Rendered into a buffer so a failure can still answer with a status.
		var buf bytes.Buffer
		if err = idx.Export(ctx, actorFrom(r), id, format, &buf); err != nil {
			handleError(w, err, log)
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		if format != reporter.FormatConsole {
			w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+string(format)+`"`)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func actorFrom(r *http.Request) models.Actor {
	return models.Actor{
		TenantID: strings.TrimSpace(r.Header.Get(HeaderTenantID)),
		ID:       strings.TrimSpace(r.Header.Get(HeaderUserID)),
	}
}

func parseFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	filter := history.Filter{
		Type:        models.MovementType(q.Get("type")),
		Status:      models.SessionStatus(q.Get("status")),
		Search:      q.Get("search"),
		CreatedFrom: q.Get("created_from"),
		CreatedTo:   q.Get("created_to"),
		Sort:        q.Get("sort"),
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errors.ValidationError(errors.CodeInvalidValue, "page", v, err)
		}
		filter.Page = page
	}
	return filter, nil
}
