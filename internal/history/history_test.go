package history

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/store/memory"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actor = models.Actor{TenantID: "tenant-1", ID: "user-1"}

type countingStore struct {
	*memory.Store
	loads atomic.Int32
}

func (s *countingStore) LoadMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection) ([]models.MovementDocument, error) {
	s.loads.Add(1)
	return s.Store.LoadMovements(ctx, tenantID, sessionID, collection)
}

func seedSession(t *testing.T, st *memory.Store, id, name string, kind models.MovementType, status models.SessionStatus, created time.Time, updatedOffset time.Duration) *models.Session {
	t.Helper()
	ctx := context.Background()

	session := &models.Session{
		ID:        id,
		TenantID:  actor.TenantID,
		Name:      name,
		Type:      kind,
		Status:    status,
		Version:   1,
		CreatedBy: models.Actor{ID: "user-" + id},
		CreatedAt: created,
		UpdatedAt: created.Add(updatedOffset),
	}
	require.NoError(t, st.UpsertSession(ctx, session))

	bank := []*models.BankMovement{
		models.NewBankMovement(id+"-b1", nil, decimal.NewFromInt(100), "Pago", "REF-1"),
	}
	internal := []*models.InternalMovement{
		{ID: id + "-p1", Kind: kind, Amount: decimal.NewFromInt(100), ReferenceText: "REF-1"},
	}
	bankDocs, err := models.EncodeBankMovements(bank)
	require.NoError(t, err)
	internalDocs, err := models.EncodeInternalMovements(internal)
	require.NoError(t, err)
	require.NoError(t, st.ReplaceMovements(ctx, actor.TenantID, id, models.CollectionBank, bankDocs))
	require.NoError(t, st.ReplaceMovements(ctx, actor.TenantID, id, models.CollectionInternal, internalDocs))
	return session
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, st, "s1", "Marzo ingresos", models.MovementIncome, models.SessionCompleted, base, time.Hour)
	seedSession(t, st, "s2", "March expenses", models.MovementExpense, models.SessionDraft, base.AddDate(0, 0, 1), 5*time.Hour)
	seedSession(t, st, "s3", "Conciliación abril", models.MovementIncome, models.SessionDraft, base.AddDate(0, 1, 0), time.Hour)
	return st
}

func ids(items []*models.Session) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.ID
	}
	return out
}

func TestIndex_List(t *testing.T) {
	index := NewIndex(seeded(t), nil, nil)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"s3", "s2", "s1"}},
		{"oldest first", Filter{Sort: SortUpdatedAsc}, []string{"s1", "s2", "s3"}},
		{"by type", Filter{Type: models.MovementIncome}, []string{"s3", "s1"}},
		{"by status", Filter{Status: models.SessionDraft}, []string{"s3", "s2"}},
		{"search folds case", Filter{Search: "MARZO"}, []string{"s1"}},
		{"search folds accents", Filter{Search: "conciliacion"}, []string{"s3"}},
		{"search by id", Filter{Search: "s2"}, []string{"s2"}},
		{"search by creator", Filter{Search: "user-s3"}, []string{"s3"}},
		{"created window", Filter{CreatedFrom: "2024-03-01", CreatedTo: "2024-03-02"}, []string{"s2", "s1"}},
		{"open ended window", Filter{CreatedFrom: "2024-03-02"}, []string{"s3", "s2"}},
		{"nothing matches", Filter{Search: "nope"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := index.List(context.Background(), actor, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page.Items))
			assert.Equal(t, len(tt.want), page.TotalItems)
			for _, item := range page.Items {
				assert.False(t, item.Hydrated())
				assert.Nil(t, item.BankMovements)
			}
		})
	}
}

func TestIndex_ListPagination(t *testing.T) {
	index := NewIndex(seeded(t), &Config{PageSize: 2}, nil)
	ctx := context.Background()

	first, err := index.List(ctx, actor, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s2"}, ids(first.Items))
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.PageSize)
	assert.Equal(t, 3, first.TotalItems)
	assert.Equal(t, 2, first.TotalPages)

	second, err := index.List(ctx, actor, Filter{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(second.Items))

	beyond, err := index.List(ctx, actor, Filter{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 3, beyond.TotalItems)
}

func TestNewIndex_DefaultsDoNotLeakIntoCallerConfig(t *testing.T) {
	cfg := &Config{PageSize: 0, CacheExpiration: time.Minute}
	index := NewIndex(seeded(t), cfg, nil)

	page, err := index.List(context.Background(), actor, Filter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PageSize, page.PageSize)
	assert.Zero(t, cfg.PageSize, "caller config must stay untouched")
	assert.Equal(t, time.Minute, cfg.CacheExpiration)
}

func TestIndex_ListValidation(t *testing.T) {
	index := NewIndex(seeded(t), nil, nil)
	ctx := context.Background()

	_, err := index.List(ctx, models.Actor{}, Filter{})
	assert.True(t, errors.IsContext(err))

	bad := []Filter{
		{Type: "transfer"},
		{Status: "archived"},
		{Sort: "name"},
		{CreatedFrom: "2024-04-01", CreatedTo: "2024-03-01"},
		{CreatedFrom: "01/03/2024"},
	}
	for i, filter := range bad {
		_, err := index.List(ctx, actor, filter)
		assert.True(t, errors.IsValidation(err), "filter %d", i)
	}
}

func TestIndex_ListIsTenantScoped(t *testing.T) {
	index := NewIndex(seeded(t), nil, nil)
	page, err := index.List(context.Background(), models.Actor{TenantID: "other", ID: "u"}, Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestIndex_OpenHydratesAndCaches(t *testing.T) {
	st := &countingStore{Store: seeded(t)}
	metrics := observability.NewMetrics()
	index := NewIndex(st, nil, metrics)
	ctx := context.Background()

	first, err := index.Open(ctx, actor, "s1")
	require.NoError(t, err)
	require.True(t, first.Hydrated())
	require.Len(t, first.BankMovements, 1)
	assert.Equal(t, "s1-b1", first.BankMovements[0].ID)
	assert.Equal(t, "s1-p1", first.InternalMovements[0].ID)
	assert.Equal(t, int32(2), st.loads.Load())

	// Mutating the returned copy must not leak into the cache.
	first.BankMovements[0].Description = "changed"

	second, err := index.Open(ctx, actor, "s1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.loads.Load(), "second open is served from cache")
	assert.Equal(t, "Pago", second.BankMovements[0].Description)

	expected := `
# HELP reconciler_history_cache_total Hydrated session cache lookups, by result.
# TYPE reconciler_history_cache_total counter
reconciler_history_cache_total{result="hit"} 1
reconciler_history_cache_total{result="miss"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry, strings.NewReader(expected), "reconciler_history_cache_total"))
}

func TestIndex_OpenReloadsNewVersion(t *testing.T) {
	st := &countingStore{Store: seeded(t)}
	index := NewIndex(st, nil, nil)
	ctx := context.Background()

	_, err := index.Open(ctx, actor, "s2")
	require.NoError(t, err)

	meta, err := st.GetSession(ctx, actor.TenantID, "s2")
	require.NoError(t, err)
	meta.Version++
	require.NoError(t, st.UpsertSession(ctx, meta))

	_, err = index.Open(ctx, actor, "s2")
	require.NoError(t, err)
	assert.Equal(t, int32(4), st.loads.Load())
}

func TestIndex_OpenMissing(t *testing.T) {
	index := NewIndex(seeded(t), nil, nil)
	_, err := index.Open(context.Background(), actor, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestIndex_Export(t *testing.T) {
	index := NewIndex(seeded(t), nil, nil)
	ctx := context.Background()

	tests := []struct {
		format reporter.OutputFormat
		want   string
	}{
		{reporter.FormatCSV, "bank,s1-b1,,100.00,Pago,REF-1,pending"},
		{reporter.FormatJSON, `"id": "s1"`},
		{reporter.FormatConsole, "Session:  Marzo ingresos (s1)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, index.Export(ctx, actor, "s1", tt.format, &buf))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	err := index.Export(ctx, actor, "s1", "pdf", &bytes.Buffer{})
	assert.True(t, errors.IsValidation(err))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "t/s/v3", cacheKey("t", "s", 3))
	assert.NotEqual(t, cacheKey("t", "s", 3), cacheKey("t", "s", 4))
	assert.NotEqual(t, cacheKey("a", "s", 1), cacheKey("b", "s", 1))
}
