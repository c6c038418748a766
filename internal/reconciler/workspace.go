// Package reconciler holds the reconciliation workspace: the live working
// set of one tenant's bank and internal movements for one flow, and the
// session lifecycle that saves, resumes and finalizes it.
//
// A Workspace is single-writer. Every mutating call recomputes the summary
// before it returns, and a failed call leaves the working set unchanged.
//
// Example usage:
//
//	ws, err := reconciler.NewWorkspace(models.MovementIncome, actor, deps, nil)
//	if _, err := ws.ImportBankCSV(text); err != nil {
//		return err
//	}
//	if err := ws.LoadInternalMovements(ctx, period); err != nil {
//		return err
//	}
//	stats, err := ws.RunAutoMatch(nil)
//	session, err := ws.SaveProgress(ctx, "March", period, nil)
package reconciler

import (
	"strings"
	"sync"

	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators a workspace talks to. Files is only
// needed when a source file is saved with a draft; Metrics may be nil.
type Dependencies struct {
	Loader      ports.InternalMovementLoader
	Sessions    ports.SessionStore
	Files       ports.FileStore
	Audit       ports.AuditWriter
	Notifier    ports.Notifier
	Metrics     *observability.Metrics
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
}

// SourceFile is an original statement retained alongside a draft.
type SourceFile struct {
	Name string
	Data []byte
}

// State is a snapshot of the workspace. Its movement slices are copies.
type State struct {
	Type              models.MovementType
	BankMovements     []*models.BankMovement
	InternalMovements []*models.InternalMovement
	Summary           models.Summary
	ActiveSessionID   string
	DateRange         models.DateRange
	Err               error
}

// Workspace is the working set of one flow for one actor.
type Workspace struct {
	mu sync.Mutex

	flow   models.MovementType
	actor  models.Actor
	deps   Dependencies
	config *Config
	engine *matcher.Engine
	logger logger.Logger
	tracer trace.Tracer

	bank      []*models.BankMovement
	internal  []*models.InternalMovement
	summary   models.Summary
	activeID  string
	pendingID string
	version   int
	dateRange models.DateRange
	lastParse *parsers.ParseStats
	err       error

	// finalized is a completed session whose net difference notification
	// has not been emitted yet. While it is set the working set is frozen
	// and SaveSession only retries the notification.
	finalized *models.Session
}

// NewWorkspace creates an empty workspace for flow. A nil cfg uses
// DefaultConfig.
func NewWorkspace(flow models.MovementType, actor models.Actor, deps Dependencies, cfg *Config) (*Workspace, error) {
	if !flow.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "movement type", flow, nil)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", cfg, err)
	}
	if deps.Loader == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "internal movement loader", nil, nil)
	}
	if deps.Sessions == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "session store", nil, nil)
	}
	if deps.Audit == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "audit writer", nil, nil)
	}
	if deps.Notifier == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "notifier", nil, nil)
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}

	w := &Workspace{
		flow:     flow,
		actor:    actor,
		deps:     deps,
		config:   cfg,
		engine:   matcher.NewEngine(cfg.Matching),
		logger:   logger.GetGlobalLogger().WithComponent("workspace").WithField("flow", flow),
		tracer:   observability.Tracer("reconciler"),
		bank:     []*models.BankMovement{},
		internal: []*models.InternalMovement{},
	}
	w.recompute()
	return w, nil
}

// State returns a copy of the current working set.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return State{
		Type:              w.flow,
		BankMovements:     models.CloneBankMovements(w.bank),
		InternalMovements: models.CloneInternalMovements(w.internal),
		Summary:           w.summary,
		ActiveSessionID:   w.activeID,
		DateRange:         w.dateRange,
		Err:               w.err,
	}
}

// LastParseStats returns the statistics of the most recent import attempt.
func (w *Workspace) LastParseStats() *parsers.ParseStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastParse
}

// ImportBankCSV replaces the bank set with the movements parsed from text.
// Any previous import is discarded, not merged. On failure the bank set is
// left as it was.
func (w *Workspace) ImportBankCSV(text string) (*parsers.ParseStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpen(); err != nil {
		return nil, w.fail(err)
	}

	op := logger.StartOperation("import_bank_csv", w.logger, nil)
	movements, stats, err := parsers.ParseBankCSV(text, w.flow, &parsers.NormalizerOptions{
		Parse:       w.config.Parsing,
		IDGenerator: parsers.IDGenerator(w.deps.IDGenerator),
	})
	w.lastParse = stats
	if err != nil {
		op.Done(err)
		return stats, w.fail(err)
	}

	w.deps.Metrics.RecordCSVRows(stats.RecordsKept, stats.RecordsDropped)
	w.bank = movements
	w.recompute()
	op.With("kept", stats.RecordsKept).With("dropped", stats.RecordsDropped).Done(nil)
	return stats, w.succeed()
}

// RunAutoMatch re-evaluates every pending or matched row. A nil cfg uses
// the workspace matching config scoped to the current date range.
func (w *Workspace) RunAutoMatch(cfg *matcher.Config) (*matcher.MatchStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpen(); err != nil {
		return nil, w.fail(err)
	}

	if cfg == nil {
		cfg = w.config.Matching.Clone()
		if cfg.Scope.IsZero() {
			cfg.Scope = w.dateRange
		}
	}

	out, stats, err := w.engine.AutoMatch(w.flow, w.bank, w.internal, cfg)
	if err != nil {
		return nil, w.fail(err)
	}

	w.bank = out
	w.recompute()
	w.deps.Metrics.RecordAutoMatch(stats.Duration, StatusCounts(w.bank))
	return stats, w.succeed()
}

// SetManualMatch forces bankID onto internalID. Unknown ids return a
// NotFoundError and change nothing.
func (w *Workspace) SetManualMatch(bankID, internalID string) error {
	return w.applyManual("set_manual_match", func(bank []*models.BankMovement) ([]*models.BankMovement, error) {
		return matcher.SetManualMatch(bank, w.internal, bankID, internalID)
	})
}

// ClearMatch resets bankID to pending.
func (w *Workspace) ClearMatch(bankID string) error {
	return w.applyManual("clear_match", func(bank []*models.BankMovement) ([]*models.BankMovement, error) {
		return matcher.ClearMatch(bank, bankID)
	})
}

// IgnoreMovement marks bankID as ignored.
func (w *Workspace) IgnoreMovement(bankID string) error {
	return w.applyManual("ignore_movement", func(bank []*models.BankMovement) ([]*models.BankMovement, error) {
		return matcher.IgnoreMovement(bank, bankID)
	})
}

func (w *Workspace) applyManual(name string, apply func([]*models.BankMovement) ([]*models.BankMovement, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpen(); err != nil {
		return w.fail(err)
	}

	out, err := apply(w.bank)
	if err != nil {
		w.logger.WithError(err).WithField("operation", name).Warn("Manual operation rejected")
		return w.fail(err)
	}

	w.bank = out
	w.recompute()
	if dupes := matcher.CheckAssignments(w.bank); len(dupes) > 0 {
		w.logger.WithFields(logger.Fields{
			"operation":    name,
			"internal_ids": dupes,
		}).Warn("Internal movements assigned to more than one bank row")
	}
	return w.succeed()
}

func (w *Workspace) recompute() {
	w.summary = ComputeSummary(w.bank, w.internal)
}

func (w *Workspace) fail(err error) error {
	w.err = err
	return err
}

func (w *Workspace) succeed() error {
	w.err = nil
	return nil
}

// requireOpen rejects changes to a working set that has already been
// persisted as a completed session.
func (w *Workspace) requireOpen() error {
	if w.finalized == nil {
		return nil
	}
	return errors.ValidationError(errors.CodeSessionCompleted, "session", w.finalized.ID, nil).
		WithSuggestion("retry SaveSession to emit the pending notification, or resume a draft")
}

func (w *Workspace) requireActor() error {
	if strings.TrimSpace(w.actor.TenantID) == "" {
		return errors.ContextError("tenant")
	}
	if strings.TrimSpace(w.actor.ID) == "" {
		return errors.ContextError("user")
	}
	return nil
}
