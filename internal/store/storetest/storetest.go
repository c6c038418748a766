// Package storetest holds behavior checks shared by every store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the full set of ports a backing store provides.
type Store interface {
	ports.SessionStore
	ports.AuditWriter
	ports.Notifier
	ports.InternalMovementLoader
	ports.LedgerWriter
}

var base = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

func session(tenant, id string, kind models.MovementType, status models.SessionStatus, updated time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		TenantID:  tenant,
		Name:      id + " reconciliation",
		Type:      kind,
		Status:    status,
		Version:   1,
		DateRange: models.DateRange{From: "2024-03-01", To: "2024-03-31"},
		Summary: models.Summary{
			BankTotal:           decimal.RequireFromString("1500.50"),
			UnmatchedDifference: decimal.RequireFromString("250.25"),
			BankCount:           2,
		},
		Traceability: models.Traceability{BankMovementsCount: 2, LastAction: models.ActionSaveDraft},
		CreatedBy:    models.Actor{ID: "user-1", Role: "admin"},
		CreatedAt:    base,
		UpdatedAt:    updated,
	}
}

func date(s string) *time.Time {
	t, _ := time.Parse(models.DateLayout, s)
	return &t
}

// RunSessionStore checks metadata upsert, listing and draft lookup.
func RunSessionStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.GetSession(ctx, "t1", "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	none, err := store.LatestDraft(ctx, "t1", models.MovementIncome)
	require.NoError(t, err)
	assert.Nil(t, none)

	older := session("t1", "s-old", models.MovementIncome, models.SessionDraft, base)
	newer := session("t1", "s-new", models.MovementIncome, models.SessionDraft, base.Add(time.Hour))
	done := session("t1", "s-done", models.MovementIncome, models.SessionCompleted, base.Add(2*time.Hour))
	expense := session("t1", "s-exp", models.MovementExpense, models.SessionDraft, base.Add(3*time.Hour))
	other := session("t2", "s-other", models.MovementIncome, models.SessionDraft, base.Add(4*time.Hour))
	other.CSVSource = &models.CSVSource{FileRef: "t2/s-other/a.csv", FileName: "a.csv", Size: 10}
	for _, s := range []*models.Session{older, newer, done, expense, other} {
		require.NoError(t, store.UpsertSession(ctx, s))
	}

	latest, err := store.LatestDraft(ctx, "t1", models.MovementIncome)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "s-new", latest.ID)

	got, err := store.GetSession(ctx, "t1", "s-new")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, models.MovementIncome, got.Type)
	assert.True(t, got.Summary.BankTotal.Equal(decimal.RequireFromString("1500.50")))
	assert.Equal(t, models.DateRange{From: "2024-03-01", To: "2024-03-31"}, got.DateRange)
	assert.Equal(t, "user-1", got.CreatedBy.ID)
	assert.True(t, got.UpdatedAt.Equal(newer.UpdatedAt))
	assert.Nil(t, got.BankMovements)
	assert.False(t, got.Hydrated())

	list, err := store.ListSessions(ctx, "t1")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"s-exp", "s-done", "s-new", "s-old"}, ids)

	otherGot, err := store.GetSession(ctx, "t2", "s-other")
	require.NoError(t, err)
	require.NotNil(t, otherGot.CSVSource)
	assert.Equal(t, "a.csv", otherGot.CSVSource.FileName)
	_, err = store.GetSession(ctx, "t1", "s-other")
	assert.True(t, errors.IsNotFound(err), "sessions are tenant scoped")

	newer.Version = 2
	newer.Status = models.SessionCompleted
	newer.UpdatedAt = base.Add(5 * time.Hour)
	require.NoError(t, store.UpsertSession(ctx, newer))

	got, err = store.GetSession(ctx, "t1", "s-new")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, models.SessionCompleted, got.Status)

	latest, err = store.LatestDraft(ctx, "t1", models.MovementIncome)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "s-old", latest.ID)
}

// RunMovements checks that ReplaceMovements replaces rather than merges.
func RunMovements(t *testing.T, store Store) {
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, session("t1", "s1", models.MovementIncome, models.SessionDraft, base)))

	first := []*models.BankMovement{
		models.NewBankMovement("b1", date("2024-03-10"), decimal.RequireFromString("100"), "uno", "R1"),
		models.NewBankMovement("b2", nil, decimal.RequireFromString("200"), "dos", ""),
		models.NewBankMovement("b3", date("2024-03-12"), decimal.RequireFromString("300"), "tres", "R3"),
	}
	first[0].Assign(models.StatusMatched, "p1", 0.75)
	docs, err := models.EncodeBankMovements(first)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceMovements(ctx, "t1", "s1", models.CollectionBank, docs))

	loaded, err := store.LoadMovements(ctx, "t1", "s1", models.CollectionBank)
	require.NoError(t, err)
	bank, err := models.DecodeBankMovements(loaded)
	require.NoError(t, err)
	require.Len(t, bank, 3)
	assert.Equal(t, "b1", bank[0].ID)
	assert.Equal(t, "p1", *bank[0].MatchedInternalID)
	assert.Nil(t, bank[1].Date)
	assert.Equal(t, "2024-03-12", models.FormatDate(bank[2].Date))

	docs, err = models.EncodeBankMovements(first[1:2])
	require.NoError(t, err)
	require.NoError(t, store.ReplaceMovements(ctx, "t1", "s1", models.CollectionBank, docs))

	loaded, err = store.LoadMovements(ctx, "t1", "s1", models.CollectionBank)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b2", loaded[0].ID)

	internal, err := store.LoadMovements(ctx, "t1", "s1", models.CollectionInternal)
	require.NoError(t, err)
	assert.NotNil(t, internal)
	assert.Empty(t, internal)
}

// RunEvents checks the audit log and notification dedupe.
func RunEvents(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.WriteAudit(ctx, &models.AuditEntry{
		ID:          "a1",
		TenantID:    "t1",
		Module:      "finance",
		EntityType:  "reconciliation_session",
		EntityID:    "s1",
		Action:      models.ActionSaveDraft,
		Summary:     "Saved draft",
		Metadata:    map[string]interface{}{"version": 1},
		PerformedBy: models.Actor{ID: "user-1", Role: "admin"},
		CreatedAt:   base,
	}))

	event := &models.NotificationEvent{
		ID:         "n1",
		TenantID:   "t1",
		EventType:  models.EventNetDifference,
		Priority:   models.PriorityHigh,
		DedupeKey:  models.EventNetDifference + ":s1",
		EntityID:   "s1",
		EntityType: "reconciliation_session",
		Title:      "Difference",
		Body:       "1250.00",
		CreatedAt:  base,
	}
	created, err := store.Emit(ctx, event)
	require.NoError(t, err)
	assert.True(t, created)

	again := *event
	again.ID = "n2"
	created, err = store.Emit(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created, "same dedupe key is recorded once")

	otherTenant := *event
	otherTenant.ID = "n3"
	otherTenant.TenantID = "t2"
	created, err = store.Emit(ctx, &otherTenant)
	require.NoError(t, err)
	assert.True(t, created)
}

// RunLedger checks ledger import and period filtering.
func RunLedger(t *testing.T, store Store) {
	ctx := context.Background()

	movements := []*models.InternalMovement{
		{ID: "p1", Kind: models.MovementIncome, Amount: decimal.RequireFromString("100"), MovementDate: date("2024-03-01"), ReferenceText: "R1"},
		{ID: "p2", Kind: models.MovementIncome, Amount: decimal.RequireFromString("200"), MovementDate: date("2024-03-31"), ReferenceText: "R2"},
		{ID: "p3", Kind: models.MovementIncome, Amount: decimal.RequireFromString("300"), MovementDate: date("2024-04-01"), ReferenceText: "R3"},
		{ID: "p4", Kind: models.MovementIncome, Amount: decimal.RequireFromString("400"), ReferenceText: "R4"},
		{ID: "e1", Kind: models.MovementExpense, Amount: decimal.RequireFromString("50"), MovementDate: date("2024-03-15"), ReferenceText: "F-1",
			Expense: &models.ExpenseDetails{Folio: "F-1"}},
	}
	n, err := store.ImportInternalMovements(ctx, "t1", movements)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	all, err := store.LoadInternalMovements(ctx, "t1", models.MovementIncome, models.DateRange{})
	require.NoError(t, err)
	assert.Len(t, all, 4, "an unbounded period includes undated movements")

	march, err := store.LoadInternalMovements(ctx, "t1", models.MovementIncome, models.DateRange{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "p1", march[0].ID)
	assert.Equal(t, "p2", march[1].ID)

	expenses, err := store.LoadInternalMovements(ctx, "t1", models.MovementExpense, models.DateRange{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	require.NotNil(t, expenses[0].Expense)
	assert.Equal(t, "F-1", expenses[0].Expense.Folio)

	updated := movements[0].Clone()
	updated.Amount = decimal.RequireFromString("150")
	_, err = store.ImportInternalMovements(ctx, "t1", []*models.InternalMovement{updated})
	require.NoError(t, err)

	all, err = store.LoadInternalMovements(ctx, "t1", models.MovementIncome, models.DateRange{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "p1", all[0].ID)
	assert.True(t, all[0].Amount.Equal(decimal.RequireFromString("150")))

	none, err := store.LoadInternalMovements(ctx, "t2", models.MovementIncome, models.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// RunAll runs every check against a fresh store per check.
func RunAll(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("sessions", func(t *testing.T) { RunSessionStore(t, newStore(t)) })
	t.Run("movements", func(t *testing.T) { RunMovements(t, newStore(t)) })
	t.Run("events", func(t *testing.T) { RunEvents(t, newStore(t)) })
	t.Run("ledger", func(t *testing.T) { RunLedger(t, newStore(t)) })
}
