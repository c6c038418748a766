// Package memory provides an in-process implementation of every store
// port. It backs tests and the "memory" store driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
)

type movementKey struct {
	tenant     string
	session    string
	collection models.Collection
}

// Store keeps sessions, movement subcollections, the audit log, the
// notification outbox and the internal ledger in maps.
type Store struct {
	mu sync.RWMutex

	sessions  map[string]map[string]*models.Session
	movements map[movementKey][]models.MovementDocument
	audit     []*models.AuditEntry
	outbox    map[string]*models.NotificationEvent
	ledger    map[string][]*models.InternalMovement
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]map[string]*models.Session),
		movements: make(map[movementKey][]models.MovementDocument),
		outbox:    make(map[string]*models.NotificationEvent),
		ledger:    make(map[string][]*models.InternalMovement),
	}
}

func (s *Store) UpsertSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.sessions[session.TenantID]
	if tenant == nil {
		tenant = make(map[string]*models.Session)
		s.sessions[session.TenantID] = tenant
	}
	tenant[session.ID] = session.Metadata()
	return nil
}

func (s *Store) GetSession(ctx context.Context, tenantID, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tenantID][id]
	if !ok {
		return nil, errors.NotFoundError("session", id)
	}
	return session.Metadata(), nil
}

func (s *Store) ListSessions(ctx context.Context, tenantID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Session, 0, len(s.sessions[tenantID]))
	for _, session := range s.sessions[tenantID] {
		out = append(out, session.Metadata())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) LatestDraft(ctx context.Context, tenantID string, kind models.MovementType) (*models.Session, error) {
	sessions, err := s.ListSessions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.Status == models.SessionDraft && session.Type == kind {
			return session, nil
		}
	}
	return nil, nil
}

func (s *Store) ReplaceMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection, docs []models.MovementDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]models.MovementDocument, len(docs))
	copy(copied, docs)
	s.movements[movementKey{tenantID, sessionID, collection}] = copied
	return nil
}

func (s *Store) LoadMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection) ([]models.MovementDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.movements[movementKey{tenantID, sessionID, collection}]
	out := make([]models.MovementDocument, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) WriteAudit(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.audit = append(s.audit, &copied)
	return nil
}

// AuditEntries returns the tenant's audit log in write order.
func (s *Store) AuditEntries(tenantID string) []*models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditEntry
	for _, entry := range s.audit {
		if entry.TenantID == tenantID {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out
}

// Emit records the event unless its dedupe key was already seen.
func (s *Store) Emit(ctx context.Context, event *models.NotificationEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.TenantID + "/" + event.DedupeKey
	if _, exists := s.outbox[key]; exists {
		return false, nil
	}
	copied := *event
	s.outbox[key] = &copied
	return true, nil
}

// Notifications returns the tenant's recorded events ordered by creation.
func (s *Store) Notifications(tenantID string) []*models.NotificationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.NotificationEvent
	for _, event := range s.outbox {
		if event.TenantID == tenantID {
			copied := *event
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DedupeKey < out[j].DedupeKey
	})
	return out
}

func (s *Store) ImportInternalMovements(ctx context.Context, tenantID string, movements []*models.InternalMovement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.ledger[tenantID]
	positions := make(map[string]int, len(existing))
	for i, m := range existing {
		positions[m.ID] = i
	}
	for _, m := range movements {
		if i, ok := positions[m.ID]; ok {
			existing[i] = m.Clone()
			continue
		}
		positions[m.ID] = len(existing)
		existing = append(existing, m.Clone())
	}
	s.ledger[tenantID] = existing
	return len(movements), nil
}

func (s *Store) LoadInternalMovements(ctx context.Context, tenantID string, kind models.MovementType, period models.DateRange) ([]*models.InternalMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.InternalMovement, 0)
	for _, m := range s.ledger[tenantID] {
		if m.Kind == kind && period.Contains(m.MovementDate) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

var (
	_ ports.SessionStore           = (*Store)(nil)
	_ ports.AuditWriter            = (*Store)(nil)
	_ ports.Notifier               = (*Store)(nil)
	_ ports.InternalMovementLoader = (*Store)(nil)
	_ ports.LedgerWriter           = (*Store)(nil)
)
