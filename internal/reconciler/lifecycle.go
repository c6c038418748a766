package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/store"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	namePolicy = bluemonday.StrictPolicy()
	titleCase  = cases.Title(language.Und)
)

// LoadInternalMovements replaces the internal set with the tenant's ledger
// for period and makes period the workspace date range.
func (w *Workspace) LoadInternalMovements(ctx context.Context, period models.DateRange) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, w.tracer, "workspace.load_internal", w.actor.TenantID, w.activeID)
	defer func() { observability.EndSpan(span, err) }()

	if err := w.requireActor(); err != nil {
		return w.fail(err)
	}
	if err := w.requireOpen(); err != nil {
		return w.fail(err)
	}
	if err := period.Validate(); err != nil {
		return w.fail(errors.ValidationError(errors.CodeInvalidRange, "period", period.String(), err))
	}

	movements, err := w.deps.Loader.LoadInternalMovements(ctx, w.actor.TenantID, w.flow, period)
	if err != nil {
		return w.fail(asPersistence(err, errors.CodeReadFailed, "load internal movements"))
	}
	if movements == nil {
		movements = []*models.InternalMovement{}
	}

	w.internal = movements
	w.dateRange = period
	w.recompute()
	w.logger.WithFields(logger.Fields{
		"period":   period.String(),
		"internal": len(movements),
	}).Info("Internal movements loaded")
	return w.succeed()
}

// SaveProgress persists the working set as a draft. The first call creates
// the session; later calls update it in place under the same id, so a
// failed save can be retried without creating a duplicate. When source is
// given it is retained by the file store and referenced from the session.
func (w *Workspace) SaveProgress(ctx context.Context, name string, dateRange models.DateRange, source *SourceFile) (saved *models.Session, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, w.tracer, "workspace.save_progress", w.actor.TenantID, w.activeID)
	defer func() { observability.EndSpan(span, err) }()

	op := logger.StartOperation("save_progress", w.logger, logger.Fields{"session_id": w.activeID})
	defer func() { op.Done(err) }()

	if err := w.requireActor(); err != nil {
		return nil, w.fail(err)
	}
	if err := w.requireOpen(); err != nil {
		return nil, w.fail(err)
	}
	if err := dateRange.Validate(); err != nil {
		return nil, w.fail(errors.ValidationError(errors.CodeInvalidRange, "date range", dateRange.String(), err))
	}

	session, err := w.persist(ctx, name, dateRange, source, models.SessionDraft, models.ActionSaveDraft)
	if err != nil {
		return nil, w.fail(err)
	}

	w.activeID = session.ID
	w.version = session.Version
	w.dateRange = session.DateRange
	w.deps.Metrics.IncrSessionSaved(string(models.SessionDraft))
	op.With("session_id", session.ID).With("version", session.Version)
	return session, w.succeed()
}

// SaveSession finalizes the working set. The session is stamped completed
// with a snapshot hash and an audit entry; an off-balance result emits one
// notification per session. The active session is cleared on success so
// further work starts a new session.
//
// When the notification fails the completed session stays as written and
// the workspace is frozen; calling SaveSession again only retries the
// notification and name is ignored.
func (w *Workspace) SaveSession(ctx context.Context, name string) (saved *models.Session, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, w.tracer, "workspace.save_session", w.actor.TenantID, w.activeID)
	defer func() { observability.EndSpan(span, err) }()

	op := logger.StartOperation("save_session", w.logger, logger.Fields{"session_id": w.activeID})
	defer func() { op.Done(err) }()

	if err := w.requireActor(); err != nil {
		return nil, w.fail(err)
	}

	session := w.finalized
	if session == nil {
		if session, err = w.persist(ctx, name, w.dateRange, nil, models.SessionCompleted, models.ActionComplete); err != nil {
			return nil, w.fail(err)
		}
		w.activeID = session.ID
		w.version = session.Version
		w.deps.Metrics.IncrSessionSaved(string(models.SessionCompleted))
	} else {
		w.logger.WithField("session_id", session.ID).Info("Retrying notification for completed session")
	}

	if err := w.notifyDifference(ctx, session); err != nil {
		w.finalized = session
		return nil, w.fail(err)
	}

	w.finalized = nil
	w.activeID = ""
	w.version = 0
	op.With("session_id", session.ID).With("snapshot_hash", session.Traceability.SnapshotHash)
	return session, w.succeed()
}

// ResumeLatestDraft loads the most recently updated draft of the workspace
// flow. It returns nil without error when the tenant has no draft.
func (w *Workspace) ResumeLatestDraft(ctx context.Context) (resumed *models.Session, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, w.tracer, "workspace.resume_latest", w.actor.TenantID, "")
	defer func() { observability.EndSpan(span, err) }()

	if err := w.requireActor(); err != nil {
		return nil, w.fail(err)
	}

	meta, err := w.deps.Sessions.LatestDraft(ctx, w.actor.TenantID, w.flow)
	if err != nil {
		return nil, w.fail(asPersistence(err, errors.CodeReadFailed, "find latest draft"))
	}
	if meta == nil {
		w.logger.Debug("No draft to resume")
		return nil, w.succeed()
	}
	return w.resume(ctx, meta)
}

// ResumeDraftByID loads the draft id. A session that is missing, completed
// or of the other flow is reported through State().Err as a NotFoundError
// and nil is returned without error; the working set is left untouched.
func (w *Workspace) ResumeDraftByID(ctx context.Context, id string) (resumed *models.Session, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, w.tracer, "workspace.resume_by_id", w.actor.TenantID, id)
	defer func() { observability.EndSpan(span, err) }()

	if err := w.requireActor(); err != nil {
		return nil, w.fail(err)
	}

	meta, err := w.deps.Sessions.GetSession(ctx, w.actor.TenantID, id)
	switch {
	case errors.IsNotFound(err):
		w.err = errors.NotFoundError("draft session", id)
		return nil, nil
	case err != nil:
		return nil, w.fail(asPersistence(err, errors.CodeReadFailed, "get session"))
	}
	if meta.Status != models.SessionDraft || meta.Type != w.flow {
		w.logger.WithFields(logger.Fields{
			"session_id": id,
			"status":     meta.Status,
			"type":       meta.Type,
		}).Warn("Resume target is not a draft of this flow")
		w.err = errors.NotFoundError("draft session", id).WithContext("status", meta.Status)
		return nil, nil
	}
	return w.resume(ctx, meta)
}

func (w *Workspace) resume(ctx context.Context, meta *models.Session) (*models.Session, error) {
	start := time.Now()
	full, err := store.Hydrate(ctx, w.deps.Sessions, meta)
	if err != nil {
		return nil, w.fail(asPersistence(err, errors.CodeReadFailed, "hydrate session"))
	}
	w.deps.Metrics.RecordHydration(time.Since(start))

	w.bank = models.CloneBankMovements(full.BankMovements)
	w.internal = models.CloneInternalMovements(full.InternalMovements)
	w.recompute()
	if w.finalized != nil {
		w.logger.WithField("session_id", w.finalized.ID).Warn("Dropping pending notification of completed session")
		w.finalized = nil
	}
	w.activeID = full.ID
	w.pendingID = ""
	w.version = full.Version
	w.dateRange = full.DateRange

	if hash := SnapshotHash(w.summary); meta.Traceability.SnapshotHash != "" && hash != meta.Traceability.SnapshotHash {
		w.logger.WithFields(logger.Fields{
			"session_id": full.ID,
			"stored":     meta.Traceability.SnapshotHash,
			"computed":   hash,
		}).Warn("Snapshot hash differs from the stored movements")
	}

	w.logger.WithFields(logger.Fields{
		"session_id": full.ID,
		"version":    full.Version,
		"bank":       len(w.bank),
		"internal":   len(w.internal),
	}).Info("Draft resumed")

	full.Summary = w.summary
	return full, w.succeed()
}

// persist writes the session in a fixed order: source file, metadata, bank
// movements, internal movements, audit entry. The caller updates the
// in-memory session state only after persist succeeds.
func (w *Workspace) persist(
	ctx context.Context,
	name string,
	dateRange models.DateRange,
	source *SourceFile,
	status models.SessionStatus,
	action string,
) (*models.Session, error) {
	tenantID := w.actor.TenantID
	now := w.deps.Clock.Now()

	// A save that failed part way left its id in pendingID; reusing it
	// keeps the retry from creating a second session.
	id := w.activeID
	if id == "" {
		id = w.pendingID
	}
	retrying := id != "" && id == w.pendingID

	var previous *models.Session
	if id != "" {
		existing, err := w.deps.Sessions.GetSession(ctx, tenantID, id)
		switch {
		case err == nil:
			previous = existing
		case errors.IsNotFound(err):
			if w.activeID != "" {
				w.logger.WithField("session_id", id).Warn("Active session is missing from the store, recreating it")
			}
		default:
			return nil, asPersistence(err, errors.CodeReadFailed, "get session")
		}
	} else {
		id = w.deps.IDGenerator()
	}
	// A completed session is never rewritten. The one exception is a
	// finalize that failed part way and is now being retried.
	if previous != nil && previous.Status == models.SessionCompleted &&
		!(status == models.SessionCompleted && retrying) {
		return nil, errors.ValidationError(errors.CodeSessionCompleted, "session", previous.ID, nil)
	}
	w.pendingID = id

	bankDocs, err := models.EncodeBankMovements(w.bank)
	if err != nil {
		return nil, errors.InternalError("encode bank movements", err)
	}
	internalDocs, err := models.EncodeInternalMovements(w.internal)
	if err != nil {
		return nil, errors.InternalError("encode internal movements", err)
	}

	session := w.buildSession(id, name, dateRange, status, action, previous, now)

	if source != nil {
		if w.deps.Files == nil {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "file store", nil, nil)
		}
		ref, err := w.deps.Files.Put(ctx, tenantID, session.ID, source.Name, source.Data)
		if err != nil {
			return nil, asPersistence(err, errors.CodeWriteFailed, "store source file")
		}
		session.CSVSource = ref
	}

	if err := w.deps.Sessions.UpsertSession(ctx, session); err != nil {
		return nil, asPersistence(err, errors.CodeWriteFailed, "upsert session")
	}
	if err := w.deps.Sessions.ReplaceMovements(ctx, tenantID, session.ID, models.CollectionBank, bankDocs); err != nil {
		return nil, asPersistence(err, errors.CodeWriteFailed, "replace bank movements")
	}
	if err := w.deps.Sessions.ReplaceMovements(ctx, tenantID, session.ID, models.CollectionInternal, internalDocs); err != nil {
		return nil, asPersistence(err, errors.CodeWriteFailed, "replace internal movements")
	}

	entry, err := w.auditEntry(session, previous, action, now)
	if err != nil {
		return nil, errors.InternalError("build audit entry", err)
	}
	if err := w.deps.Audit.WriteAudit(ctx, entry); err != nil {
		return nil, asPersistence(err, errors.CodeWriteFailed, "write audit entry")
	}

	w.pendingID = ""
	session.BankMovements = models.CloneBankMovements(w.bank)
	session.InternalMovements = models.CloneInternalMovements(w.internal)
	return session, nil
}

func (w *Workspace) buildSession(
	id string,
	name string,
	dateRange models.DateRange,
	status models.SessionStatus,
	action string,
	previous *models.Session,
	now time.Time,
) *models.Session {
	summary := ComputeSummary(w.bank, w.internal)
	session := &models.Session{
		ID:        id,
		TenantID:  w.actor.TenantID,
		Type:      w.flow,
		Status:    status,
		Version:   w.version + 1,
		Summary:   summary,
		DateRange: dateRange,
		Traceability: models.Traceability{
			SnapshotHash:           SnapshotHash(summary),
			BankMovementsCount:     summary.BankCount,
			InternalMovementsCount: summary.InternalCount,
			MatchedMovementsCount:  summary.MatchedCount,
			LastAction:             action,
		},
		CreatedBy: w.actor,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var previousName string
	if previous != nil {
		if previous.Version >= session.Version {
			session.Version = previous.Version + 1
		}
		session.CreatedBy = previous.CreatedBy
		session.CreatedAt = previous.CreatedAt
		session.CSVSource = previous.CSVSource
		previousName = previous.Name
	}
	session.Name = w.sessionName(name, previousName, now)
	return session
}

// sessionName strips markup from name. A blank name keeps the previous
// one, or falls back to "<type> reconciliation <date>".
func (w *Workspace) sessionName(name, previous string, now time.Time) string {
	clean := html.UnescapeString(namePolicy.Sanitize(name))
	clean = strings.Join(strings.Fields(clean), " ")
	if runes := []rune(clean); len(runes) > w.config.MaxNameLength {
		clean = strings.TrimSpace(string(runes[:w.config.MaxNameLength]))
	}
	if clean != "" {
		return clean
	}
	if previous != "" {
		return previous
	}
	return fmt.Sprintf("%s reconciliation %s", w.flow, now.Format(models.DateLayout))
}

func (w *Workspace) auditEntry(session, previous *models.Session, action string, now time.Time) (*models.AuditEntry, error) {
	after, err := json.Marshal(session.Metadata())
	if err != nil {
		return nil, err
	}
	var before json.RawMessage
	if previous != nil {
		if before, err = json.Marshal(previous.Metadata()); err != nil {
			return nil, err
		}
	}

	var text string
	switch action {
	case models.ActionComplete:
		text = fmt.Sprintf("Completed %s reconciliation %q with unmatched difference %s",
			session.Type, session.Name, session.Summary.UnmatchedDifference.StringFixed(2))
	default:
		text = fmt.Sprintf("Saved %s reconciliation draft %q (v%d): %d bank, %d internal, %d matched",
			session.Type, session.Name, session.Version,
			session.Summary.BankCount, session.Summary.InternalCount, session.Summary.MatchedCount)
	}

	return &models.AuditEntry{
		ID:         w.deps.IDGenerator(),
		TenantID:   session.TenantID,
		Module:     AuditModule,
		EntityType: EntityType,
		EntityID:   session.ID,
		Action:     action,
		Summary:    text,
		Metadata: map[string]interface{}{
			"reconciliationType":  string(session.Type),
			"version":             session.Version,
			"status":              string(session.Status),
			"snapshotHash":        session.Traceability.SnapshotHash,
			"unmatchedDifference": session.Summary.UnmatchedDifference.StringFixed(2),
			"bankMovementsCount":  session.Summary.BankCount,
			"matchedCount":        session.Summary.MatchedCount,
		},
		Before:      before,
		After:       after,
		PerformedBy: w.actor,
		CreatedAt:   now,
	}, nil
}

// notifyDifference emits the net difference event when the finalized
// session is off balance by at least the notify threshold.
func (w *Workspace) notifyDifference(ctx context.Context, session *models.Session) error {
	diff := session.Summary.UnmatchedDifference
	if diff.Abs().LessThan(w.config.NotifyThreshold) {
		return nil
	}

	priority := models.PriorityNormal
	if diff.Abs().GreaterThanOrEqual(w.config.HighPriorityThreshold) {
		priority = models.PriorityHigh
	}

	event := &models.NotificationEvent{
		ID:         w.deps.IDGenerator(),
		TenantID:   session.TenantID,
		EventType:  models.EventNetDifference,
		Priority:   priority,
		DedupeKey:  DedupeKey(session.ID),
		EntityID:   session.ID,
		EntityType: EntityType,
		Title:      fmt.Sprintf("%s reconciliation closed with a difference", titleCase.String(string(session.Type))),
		Body: fmt.Sprintf("%q was finalized with an unmatched difference of %s (bank %s, matched internal %s).",
			session.Name, diff.StringFixed(2),
			session.Summary.BankTotal.StringFixed(2), session.Summary.InternalMatched.StringFixed(2)),
		Metadata: map[string]interface{}{
			"reconciliationType":  string(session.Type),
			"sessionId":           session.ID,
			"sessionName":         session.Name,
			"unmatchedDifference": diff.StringFixed(2),
			"bankTotal":           session.Summary.BankTotal.StringFixed(2),
			"internalMatched":     session.Summary.InternalMatched.StringFixed(2),
		},
		CreatedAt: w.deps.Clock.Now(),
	}

	emitted, err := w.deps.Notifier.Emit(ctx, event)
	if err != nil {
		w.deps.Metrics.IncrNotification("failed")
		return asPersistence(err, errors.CodeWriteFailed, "emit notification")
	}
	if !emitted {
		w.deps.Metrics.IncrNotification("deduplicated")
		w.logger.WithField("dedupe_key", event.DedupeKey).Info("Notification already emitted for session")
		return nil
	}
	w.deps.Metrics.IncrNotification("emitted")
	w.logger.WithFields(logger.Fields{
		"session_id": session.ID,
		"priority":   priority,
		"difference": diff.StringFixed(2),
	}).Info("Net difference notification emitted")
	return nil
}

// DedupeKey is the notification key of the net difference event for a
// session.
func DedupeKey(sessionID string) string {
	return models.EventNetDifference + ":" + sessionID
}

// asPersistence keeps categorized errors as they are and wraps anything
// else as a persistence failure.
func asPersistence(err error, code errors.ErrorCode, operation string) error {
	if _, ok := errors.AsReconcilerError(err); ok {
		return err
	}
	return errors.PersistenceError(code, operation, err)
}
