// Package ports declares the collaborators the reconciliation workspace
// depends on. Implementations live under internal/store.
package ports

import (
	"context"
	"time"

	"golang-bank-reconciliation/internal/models"
)

// InternalMovementLoader returns the tenant's recorded payments (income) or
// expenses (expense). A zero period loads everything.
type InternalMovementLoader interface {
	LoadInternalMovements(ctx context.Context, tenantID string, kind models.MovementType, period models.DateRange) ([]*models.InternalMovement, error)
}

// LedgerWriter seeds the internal ledger. Movements with an existing id are
// replaced.
type LedgerWriter interface {
	ImportInternalMovements(ctx context.Context, tenantID string, movements []*models.InternalMovement) (int, error)
}

// SessionStore persists session metadata and the two movement
// subcollections of each session.
type SessionStore interface {
	// UpsertSession creates or replaces the metadata document. Movement
	// arrays on s are ignored.
	UpsertSession(ctx context.Context, s *models.Session) error

	// GetSession returns metadata only. A missing session is a NotFoundError.
	GetSession(ctx context.Context, tenantID, id string) (*models.Session, error)

	// ListSessions returns metadata for every session of the tenant.
	ListSessions(ctx context.Context, tenantID string) ([]*models.Session, error)

	// LatestDraft returns the most recently updated draft of the given type,
	// or nil when there is none.
	LatestDraft(ctx context.Context, tenantID string, kind models.MovementType) (*models.Session, error)

	// ReplaceMovements deletes every document in the collection and inserts
	// docs in their place.
	ReplaceMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection, docs []models.MovementDocument) error

	// LoadMovements returns the collection ordered by position.
	LoadMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection) ([]models.MovementDocument, error)
}

// FileStore retains original statement files. Put is write-once per
// tenant, session and name: a second Put returns the existing reference.
type FileStore interface {
	Put(ctx context.Context, tenantID, sessionID, name string, data []byte) (*models.CSVSource, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// AuditWriter records lifecycle actions.
type AuditWriter interface {
	WriteAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Notifier emits domain events. Emit reports false when an event with the
// same dedupe key was already recorded.
type Notifier interface {
	Emit(ctx context.Context, event *models.NotificationEvent) (bool, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// IDGenerator produces opaque identifiers.
type IDGenerator func() string
