// Package history lists a tenant's reconciliation sessions and opens them
// for detail views and exports.
//
// Listing works on metadata only. Opening a session hydrates its movement
// snapshots on demand and caches the hydrated copy per session version, so
// repeated reads of the same record skip the store and a new draft save is
// picked up on the next read.
package history

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/store"
	"golang-bank-reconciliation/internal/textnorm"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
)

// Sort orders for List.
const (
	SortUpdatedDesc = "updated_desc"
	SortUpdatedAsc  = "updated_asc"
)

// Config tunes the index.
type Config struct {
	PageSize        int
	CacheExpiration time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns a page size of 10 and a 15 minute hydration cache.
func DefaultConfig() *Config {
	return &Config{
		PageSize:        10,
		CacheExpiration: 15 * time.Minute,
		CleanupInterval: 30 * time.Minute,
	}
}

// Filter narrows a listing. Zero fields do not filter. CreatedFrom and
// CreatedTo are inclusive YYYY-MM-DD days.
type Filter struct {
	Type        models.MovementType
	Status      models.SessionStatus
	Search      string
	CreatedFrom string
	CreatedTo   string
	Sort        string
	Page        int
}

// Page is one page of session metadata.
type Page struct {
	Items      []*models.Session `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
}

// Index serves session listings and hydrated reads.
type Index struct {
	sessions ports.SessionStore
	config   *Config
	cache    *cache.Cache
	metrics  *observability.Metrics
	logger   logger.Logger
	tracer   trace.Tracer
}

// NewIndex creates an index over sessions. A nil config uses DefaultConfig;
// a given config is copied and never modified.
func NewIndex(sessions ports.SessionStore, config *Config, metrics *observability.Metrics) *Index {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	config = &cfg
	return &Index{
		sessions: sessions,
		config:   config,
		cache:    cache.New(config.CacheExpiration, config.CleanupInterval),
		metrics:  metrics,
		logger:   logger.GetGlobalLogger().WithComponent("history"),
		tracer:   observability.Tracer("history"),
	}
}

// List returns one page of the tenant's sessions, both flows included,
// filtered and sorted client side. Items never carry movement arrays.
// Pages are 1-based; a page past the end is returned empty.
func (x *Index) List(ctx context.Context, actor models.Actor, filter Filter) (page *Page, err error) {
	ctx, span := observability.StartSpan(ctx, x.tracer, "history.list", actor.TenantID, "")
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(actor.TenantID) == "" {
		return nil, errors.ContextError("tenant")
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	all, err := x.sessions.ListSessions(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Session, 0, len(all))
	for _, s := range all {
		if filter.matches(s) {
			matched = append(matched, s.Metadata())
		}
	}
	sortSessions(matched, filter.Sort)

	number := filter.Page
	if number < 1 {
		number = 1
	}
	size := x.config.PageSize
	total := len(matched)

	start := (number - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return &Page{
		Items:      matched[start:end],
		Page:       number,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Open returns the session with both movement sets loaded. The caller gets
// its own copy and may modify it.
func (x *Index) Open(ctx context.Context, actor models.Actor, id string) (session *models.Session, err error) {
	ctx, span := observability.StartSpan(ctx, x.tracer, "history.open", actor.TenantID, id)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(actor.TenantID) == "" {
		return nil, errors.ContextError("tenant")
	}

	meta, err := x.sessions.GetSession(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if meta.Hydrated() {
		return meta.Clone(), nil
	}

	key := cacheKey(actor.TenantID, meta.ID, meta.Version)
	if cached, found := x.cache.Get(key); found {
		x.metrics.IncrCacheHit()
		return cached.(*models.Session).Clone(), nil
	}
	x.metrics.IncrCacheMiss()

	start := time.Now()
	hydrated, err := store.Hydrate(ctx, x.sessions, meta)
	if err != nil {
		return nil, err
	}
	x.metrics.RecordHydration(time.Since(start))

	x.cache.Set(key, hydrated, cache.DefaultExpiration)
	x.logger.WithFields(logger.Fields{
		"session_id": meta.ID,
		"version":    meta.Version,
		"bank":       len(hydrated.BankMovements),
		"internal":   len(hydrated.InternalMovements),
		"duration":   time.Since(start),
	}).Debug("Session hydrated")

	return hydrated.Clone(), nil
}

// Export opens the session and renders it to w in format.
func (x *Index) Export(ctx context.Context, actor models.Actor, id string, format reporter.OutputFormat, w io.Writer) error {
	generator, err := reporter.NewReportGenerator(reporter.ConfigForFormat(format))
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "format", format, err)
	}

	session, err := x.Open(ctx, actor, id)
	if err != nil {
		return err
	}
	return generator.GenerateReport(session, w)
}

func cacheKey(tenantID, id string, version int) string {
	return fmt.Sprintf("%s/%s/v%d", tenantID, id, version)
}

func (f Filter) validate() error {
	if f.Type != "" && !f.Type.IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "type", f.Type, nil)
	}
	if f.Status != "" && f.Status != models.SessionDraft && f.Status != models.SessionCompleted {
		return errors.ValidationError(errors.CodeInvalidValue, "status", f.Status, nil)
	}
	if f.Sort != "" && f.Sort != SortUpdatedDesc && f.Sort != SortUpdatedAsc {
		return errors.ValidationError(errors.CodeInvalidValue, "sort", f.Sort, nil)
	}
	created := models.DateRange{From: f.CreatedFrom, To: f.CreatedTo}
	if err := created.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidRange, "created", created.String(), err)
	}
	return nil
}

func (f Filter) matches(s *models.Session) bool {
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	created := models.DateRange{From: f.CreatedFrom, To: f.CreatedTo}
	if !created.IsZero() {
		day := s.CreatedAt.UTC()
		if !created.Contains(&day) {
			return false
		}
	}
	if query := textnorm.Fold(f.Search); query != "" {
		haystack := textnorm.Fold(strings.Join([]string{s.Name, s.ID, s.CreatedBy.ID}, " "))
		if !strings.Contains(haystack, query) {
			return false
		}
	}
	return true
}

func sortSessions(sessions []*models.Session, order string) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].UpdatedAt, sessions[j].UpdatedAt
		if a.Equal(b) {
			return sessions[i].ID < sessions[j].ID
		}
		if order == SortUpdatedAsc {
			return a.Before(b)
		}
		return a.After(b)
	})
}
