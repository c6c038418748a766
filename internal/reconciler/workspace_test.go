package reconciler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/internal/store/memory"
	"golang-bank-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const incomeCSV = `Fecha,Descripcion,Referencia,Monto
10/03/2024,Pago depto 101,PAGO-778,"1.500,00"
12/03/2024,Transferencia,SIN-REF,1250.00
`

var (
	testActor = models.Actor{TenantID: "tenant-1", ID: "user-1", Role: "admin"}
	testNow   = time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	store *memory.Store
	files *memory.FileStore
	deps  Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	_, err := st.ImportInternalMovements(context.Background(), testActor.TenantID, []*models.InternalMovement{
		{
			ID:            "p1",
			Kind:          models.MovementIncome,
			Amount:        decimal.RequireFromString("1500.00"),
			MovementDate:  mustDate("2024-03-10"),
			ReferenceText: "pago-778",
			Payment:       &models.PaymentDetails{UnitNumber: "101", ResidentName: "Ana"},
		},
		{
			ID:            "p2",
			Kind:          models.MovementIncome,
			Amount:        decimal.RequireFromString("300.00"),
			MovementDate:  mustDate("2024-03-20"),
			ReferenceText: "PAGO-900",
		},
	})
	require.NoError(t, err)

	files := memory.NewFileStore()
	return &fixture{
		store: st,
		files: files,
		deps: Dependencies{
			Loader:      st,
			Sessions:    st,
			Files:       files,
			Audit:       st,
			Notifier:    st,
			Clock:       ports.FixedClock{At: testNow},
			IDGenerator: ports.IDGenerator(parsers.SequentialIDs("id")),
		},
	}
}

func (f *fixture) workspace(t *testing.T, actor models.Actor) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(models.MovementIncome, actor, f.deps, nil)
	require.NoError(t, err)
	return ws
}

func mustDate(s string) *time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// prepared imports the statement, loads the ledger and auto-matches.
func prepared(t *testing.T, f *fixture) *Workspace {
	t.Helper()
	ctx := context.Background()

	ws := f.workspace(t, testActor)
	_, err := ws.ImportBankCSV(incomeCSV)
	require.NoError(t, err)
	require.NoError(t, ws.LoadInternalMovements(ctx, models.DateRange{}))
	_, err = ws.RunAutoMatch(nil)
	require.NoError(t, err)
	return ws
}

func rows(bank []*models.BankMovement) []string {
	out := make([]string, len(bank))
	for i, m := range bank {
		matched := ""
		if m.MatchedInternalID != nil {
			matched = *m.MatchedInternalID
		}
		out[i] = strings.Join([]string{m.ID, models.FormatDate(m.Date), m.Amount.StringFixed(2), string(m.Status), matched}, "|")
	}
	return out
}

func TestWorkspace_ImportAndAutoMatch(t *testing.T) {
	f := newFixture(t)
	ws := prepared(t, f)

	state := ws.State()
	require.NoError(t, state.Err)
	require.Len(t, state.BankMovements, 2)
	require.Len(t, state.InternalMovements, 2)

	first := state.BankMovements[0]
	assert.Equal(t, models.StatusMatched, first.Status)
	require.NotNil(t, first.MatchedInternalID)
	assert.Equal(t, "p1", *first.MatchedInternalID)
	assert.Equal(t, models.StatusPending, state.BankMovements[1].Status)

	assert.Equal(t, "2750.00", state.Summary.BankTotal.StringFixed(2))
	assert.Equal(t, "1500.00", state.Summary.InternalMatched.StringFixed(2))
	assert.Equal(t, "1250.00", state.Summary.UnmatchedDifference.StringFixed(2))
}

func TestWorkspace_ImportMalformedCSV(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, testActor)

	_, err := ws.ImportBankCSV("Fecha,Descripcion,Monto")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	state := ws.State()
	assert.Empty(t, state.BankMovements)
	assert.Equal(t, err, state.Err)
	assert.True(t, state.Summary.BankTotal.IsZero())
}

func TestWorkspace_FailedImportKeepsPreviousSet(t *testing.T) {
	f := newFixture(t)
	ws := prepared(t, f)
	before := rows(ws.State().BankMovements)

	_, err := ws.ImportBankCSV("just a header")
	require.Error(t, err)

	state := ws.State()
	assert.Equal(t, before, rows(state.BankMovements))
	assert.Error(t, state.Err)
}

func TestWorkspace_ManualOperations(t *testing.T) {
	f := newFixture(t)
	ws := prepared(t, f)
	second := ws.State().BankMovements[1].ID

	require.NoError(t, ws.SetManualMatch(second, "p2"))
	state := ws.State()
	assert.Equal(t, models.StatusManualMatch, state.BankMovements[1].Status)
	assert.Equal(t, "1800.00", state.Summary.InternalMatched.StringFixed(2))

	require.NoError(t, ws.IgnoreMovement(second))
	state = ws.State()
	assert.Equal(t, models.StatusIgnored, state.BankMovements[1].Status)
	assert.Equal(t, "1250.00", state.Summary.BankIgnored.StringFixed(2))

	require.NoError(t, ws.ClearMatch(second))
	assert.Equal(t, models.StatusPending, ws.State().BankMovements[1].Status)

	before := rows(ws.State().BankMovements)
	err := ws.SetManualMatch("missing", "p2")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	state = ws.State()
	assert.Equal(t, before, rows(state.BankMovements))
	assert.True(t, errors.IsNotFound(state.Err))

	require.NoError(t, ws.ClearMatch(second))
	assert.NoError(t, ws.State().Err, "a successful call clears the previous error")
}

func TestWorkspace_SummaryConsistency(t *testing.T) {
	f := newFixture(t)
	ws := prepared(t, f)
	ids := []string{ws.State().BankMovements[0].ID, ws.State().BankMovements[1].ID}

	steps := []func() error{
		func() error { return ws.IgnoreMovement(ids[0]) },
		func() error { return ws.SetManualMatch(ids[1], "p1") },
		func() error { _, err := ws.RunAutoMatch(nil); return err },
		func() error { return ws.ClearMatch(ids[1]) },
		func() error { _, err := ws.RunAutoMatch(nil); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		state := ws.State()
		s := state.Summary
		assert.True(t, s.BankTotal.Equal(s.BankPending.Add(s.BankMatched).Add(s.BankIgnored)), "step %d", i)
		assert.Equal(t, CanonicalSummary(ComputeSummary(state.BankMovements, state.InternalMovements)), CanonicalSummary(s))
	}
}

func TestWorkspace_SaveProgressAndResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := prepared(t, f)
	require.NoError(t, ws.IgnoreMovement(ws.State().BankMovements[1].ID))
	period := models.DateRange{From: "2024-03-01", To: "2024-03-31"}

	saved, err := ws.SaveProgress(ctx, "March income", period, &SourceFile{Name: "march.csv", Data: []byte(incomeCSV)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionDraft, saved.Status)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "March income", saved.Name)
	assert.Equal(t, period, saved.DateRange)
	require.NotNil(t, saved.CSVSource)
	assert.Equal(t, "march.csv", saved.CSVSource.FileName)
	assert.Equal(t, int64(len(incomeCSV)), saved.CSVSource.Size)
	assert.Equal(t, SnapshotHash(saved.Summary), saved.Traceability.SnapshotHash)
	assert.Equal(t, models.ActionSaveDraft, saved.Traceability.LastAction)
	assert.Equal(t, saved.ID, ws.State().ActiveSessionID)

	original := ws.State()

	resumedWS := f.workspace(t, testActor)
	resumed, err := resumedWS.ResumeDraftByID(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.True(t, resumed.Hydrated())

	state := resumedWS.State()
	require.NoError(t, state.Err)
	assert.Equal(t, saved.ID, state.ActiveSessionID)
	assert.Equal(t, period, state.DateRange)
	assert.Equal(t, rows(original.BankMovements), rows(state.BankMovements))
	require.Len(t, state.InternalMovements, len(original.InternalMovements))
	for i := range original.InternalMovements {
		assert.Equal(t, original.InternalMovements[i].ID, state.InternalMovements[i].ID)
		assert.True(t, original.InternalMovements[i].Amount.Equal(state.InternalMovements[i].Amount))
	}
	assert.Equal(t, CanonicalSummary(original.Summary), CanonicalSummary(state.Summary))
}

func TestWorkspace_SaveProgressUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := prepared(t, f)

	first, err := ws.SaveProgress(ctx, "March", models.DateRange{}, &SourceFile{Name: "march.csv", Data: []byte(incomeCSV)})
	require.NoError(t, err)
	second, err := ws.SaveProgress(ctx, "", models.DateRange{}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "March", second.Name, "a blank name keeps the previous one")
	assert.Equal(t, first.CSVSource, second.CSVSource)

	sessions, err := f.store.ListSessions(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	audit := f.store.AuditEntries(testActor.TenantID)
	require.Len(t, audit, 2)
	assert.Empty(t, audit[0].Before)
	assert.NotEmpty(t, audit[1].Before)
	assert.Equal(t, models.ActionSaveDraft, audit[1].Action)
	assert.Equal(t, AuditModule, audit[1].Module)
	assert.Equal(t, testActor, audit[1].PerformedBy)
}

func TestWorkspace_SessionNames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markup stripped", "<b>March</b> & co", "March & co"},
		{"whitespace collapsed", "  March \n income ", "March income"},
		{"blank uses default", "   ", "income reconciliation 2024-04-01"},
		{"script removed", "<script>alert(1)</script>", "income reconciliation 2024-04-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ws := prepared(t, f)
			saved, err := ws.SaveProgress(context.Background(), tt.in, models.DateRange{}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, saved.Name)
		})
	}
}

func TestWorkspace_MissingContext(t *testing.T) {
	tests := []struct {
		name  string
		actor models.Actor
	}{
		{"no tenant", models.Actor{ID: "user-1"}},
		{"no user", models.Actor{TenantID: testActor.TenantID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			ws := f.workspace(t, tt.actor)
			_, err := ws.ImportBankCSV(incomeCSV)
			require.NoError(t, err)

			_, err = ws.SaveProgress(ctx, "x", models.DateRange{}, nil)
			require.Error(t, err)
			assert.True(t, errors.IsContext(err))

			_, err = ws.SaveSession(ctx, "x")
			assert.True(t, errors.IsContext(err))

			assert.True(t, errors.IsContext(ws.LoadInternalMovements(ctx, models.DateRange{})))

			_, err = ws.ResumeLatestDraft(ctx)
			assert.True(t, errors.IsContext(err))

			sessions, err := f.store.ListSessions(ctx, testActor.TenantID)
			require.NoError(t, err)
			assert.Empty(t, sessions)
			assert.Empty(t, f.store.AuditEntries(testActor.TenantID))
		})
	}
}

func TestWorkspace_SaveSessionNotifiesOncePerSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := prepared(t, f)

	first, err := ws.SaveSession(ctx, "March")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, first.Status)
	assert.Equal(t, models.ActionComplete, first.Traceability.LastAction)
	assert.Empty(t, ws.State().ActiveSessionID)

	events := f.store.Notifications(testActor.TenantID)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNetDifference, events[0].EventType)
	assert.Contains(t, events[0].DedupeKey, first.ID)
	assert.Equal(t, models.PriorityHigh, events[0].Priority)
	assert.Equal(t, "1250.00", events[0].Metadata["unmatchedDifference"])
	assert.Equal(t, first.ID, events[0].Metadata["sessionId"])

	second, err := ws.SaveSession(ctx, "March again")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	events = f.store.Notifications(testActor.TenantID)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].DedupeKey, events[1].DedupeKey)
}

func TestWorkspace_SaveSessionBalancedDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ws := prepared(t, f)
	require.NoError(t, ws.IgnoreMovement(ws.State().BankMovements[1].ID))
	// Ignored rows still count toward the bank total.
	assert.Equal(t, "1250.00", ws.State().Summary.UnmatchedDifference.StringFixed(2))

	balanced := f.workspace(t, testActor)
	_, err := balanced.ImportBankCSV("Fecha,Referencia,Monto\n10/03/2024,PAGO-778,1500.00\n")
	require.NoError(t, err)
	require.NoError(t, balanced.LoadInternalMovements(context.Background(), models.DateRange{}))
	_, err = balanced.RunAutoMatch(nil)
	require.NoError(t, err)

	_, err = balanced.SaveSession(context.Background(), "balanced")
	require.NoError(t, err)
	assert.Empty(t, f.store.Notifications(testActor.TenantID))
}

func TestWorkspace_NormalPriorityBelowThreshold(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, testActor)
	_, err := ws.ImportBankCSV("Fecha,Referencia,Monto\n10/03/2024,X-1,12.50\n")
	require.NoError(t, err)

	_, err = ws.SaveSession(context.Background(), "small")
	require.NoError(t, err)

	events := f.store.Notifications(testActor.TenantID)
	require.Len(t, events, 1)
	assert.Equal(t, models.PriorityNormal, events[0].Priority)
}

type failingNotifier struct {
	failures int
	inner    ports.Notifier
}

func (n *failingNotifier) Emit(ctx context.Context, event *models.NotificationEvent) (bool, error) {
	if n.failures > 0 {
		n.failures--
		return false, fmt.Errorf("notification bus unavailable")
	}
	return n.inner.Emit(ctx, event)
}

func TestWorkspace_SaveSessionRetryAfterNotifyFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deps.Notifier = &failingNotifier{failures: 1, inner: f.store}
	ws := prepared(t, f)

	_, err := ws.SaveSession(ctx, "March")
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	activeID := ws.State().ActiveSessionID
	require.NotEmpty(t, activeID, "the completed session stays active until the event is emitted")

	_, err = ws.SaveProgress(ctx, "", models.DateRange{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err), "a completed session cannot be saved as draft")

	done, err := ws.SaveSession(ctx, "March")
	require.NoError(t, err)
	assert.Equal(t, activeID, done.ID)
	assert.Len(t, f.store.Notifications(testActor.TenantID), 1)
	assert.Empty(t, ws.State().ActiveSessionID)
}

func TestWorkspace_FailedNotificationFreezesCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deps.Notifier = &failingNotifier{failures: 1, inner: f.store}
	ws := prepared(t, f)
	first := ws.State().BankMovements[0].ID
	second := ws.State().BankMovements[1].ID

	_, err := ws.SaveSession(ctx, "March")
	require.Error(t, err)
	stored, err := f.store.GetSession(ctx, testActor.TenantID, ws.State().ActiveSessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, stored.Status)
	before := rows(ws.State().BankMovements)

	mutations := map[string]func() error{
		"ignore":      func() error { return ws.IgnoreMovement(second) },
		"clear":       func() error { return ws.ClearMatch(first) },
		"manual":      func() error { return ws.SetManualMatch(second, "p2") },
		"auto match":  func() error { _, err := ws.RunAutoMatch(nil); return err },
		"import":      func() error { _, err := ws.ImportBankCSV(incomeCSV); return err },
		"load ledger": func() error { return ws.LoadInternalMovements(ctx, models.DateRange{}) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			err := mutate()
			require.Error(t, err)
			reconErr, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CodeSessionCompleted, reconErr.Code)
		})
	}
	assert.Equal(t, before, rows(ws.State().BankMovements))

	done, err := ws.SaveSession(ctx, "Rewritten")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, done.ID)
	assert.Equal(t, "March", done.Name)

	after, err := f.store.GetSession(ctx, testActor.TenantID, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, after.Version)
	assert.Equal(t, stored.Name, after.Name)
	assert.Equal(t, stored.Traceability.SnapshotHash, after.Traceability.SnapshotHash)
	assert.Len(t, f.store.Notifications(testActor.TenantID), 1)

	require.NoError(t, ws.IgnoreMovement(second), "the workspace reopens once the notification is out")
}

func TestWorkspace_SaveProgressRejectsCompletedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := prepared(t, f)
	draft, err := ws.SaveProgress(ctx, "March", models.DateRange{}, nil)
	require.NoError(t, err)

	other := f.workspace(t, testActor)
	_, err = other.ResumeDraftByID(ctx, draft.ID)
	require.NoError(t, err)
	_, err = other.SaveSession(ctx, "")
	require.NoError(t, err)

	_, err = ws.SaveProgress(ctx, "March", models.DateRange{}, nil)
	require.Error(t, err)
	reconErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeSessionCompleted, reconErr.Code)
	assert.Equal(t, draft.ID, ws.State().ActiveSessionID)
}

type flakyMovements struct {
	*memory.Store
	failures int
}

func (s *flakyMovements) ReplaceMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection, docs []models.MovementDocument) error {
	if s.failures > 0 {
		s.failures--
		return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", fmt.Errorf("disk full"))
	}
	return s.Store.ReplaceMovements(ctx, tenantID, sessionID, collection, docs)
}

func TestWorkspace_SaveProgressRetryDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deps.Sessions = &flakyMovements{Store: f.store, failures: 1}
	ws := prepared(t, f)

	_, err := ws.SaveProgress(ctx, "March", models.DateRange{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
	assert.Empty(t, ws.State().ActiveSessionID)

	saved, err := ws.SaveProgress(ctx, "March", models.DateRange{}, nil)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, ws.State().ActiveSessionID)

	sessions, err := f.store.ListSessions(ctx, testActor.TenantID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, saved.ID, sessions[0].ID)
}

func TestWorkspace_ResumeDraftByIDRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ws := prepared(t, f)
	completed, err := ws.SaveSession(ctx, "done")
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
	}{
		{"missing", "no-such-session"},
		{"completed", completed.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := prepared(t, f)
			before := rows(target.State().BankMovements)

			resumed, err := target.ResumeDraftByID(ctx, tt.id)
			require.NoError(t, err)
			assert.Nil(t, resumed)

			state := target.State()
			assert.True(t, errors.IsNotFound(state.Err))
			assert.Empty(t, state.ActiveSessionID)
			assert.Equal(t, before, rows(state.BankMovements))
		})
	}
}

func TestWorkspace_ResumeLatestDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ws := f.workspace(t, testActor)
	resumed, err := ws.ResumeLatestDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, resumed)
	assert.NoError(t, ws.State().Err)

	saver := prepared(t, f)
	draft, err := saver.SaveProgress(ctx, "March", models.DateRange{}, nil)
	require.NoError(t, err)

	resumed, err = ws.ResumeLatestDraft(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, draft.ID, resumed.ID)
	assert.Len(t, ws.State().BankMovements, 2)

	expense, err := NewWorkspace(models.MovementExpense, testActor, f.deps, nil)
	require.NoError(t, err)
	resumed, err = expense.ResumeLatestDraft(ctx)
	require.NoError(t, err)
	assert.Nil(t, resumed, "drafts are scoped to their flow")
}

func TestNewWorkspace_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewWorkspace("transfer", testActor, f.deps, nil)
	assert.True(t, errors.IsValidation(err))

	deps := f.deps
	deps.Sessions = nil
	_, err = NewWorkspace(models.MovementIncome, testActor, deps, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	cfg := DefaultConfig()
	cfg.Matching.DateToleranceDays = -1
	_, err = NewWorkspace(models.MovementIncome, testActor, f.deps, cfg)
	assert.Error(t, err)
}
