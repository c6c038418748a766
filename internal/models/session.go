package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a reconciliation session.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionCompleted SessionStatus = "completed"
)

// Audit actions recorded by the session lifecycle.
const (
	ActionSaveDraft = "save_draft"
	ActionComplete  = "complete"
)

// Summary holds reconciliation KPIs. It is always derived from the current
// movement sets and never edited by hand.
type Summary struct {
	BankTotal           decimal.Decimal `json:"bankTotal"`
	BankMatched         decimal.Decimal `json:"bankMatched"`
	BankPending         decimal.Decimal `json:"bankPending"`
	BankIgnored         decimal.Decimal `json:"bankIgnored"`
	InternalTotal       decimal.Decimal `json:"internalTotal"`
	InternalMatched     decimal.Decimal `json:"internalMatched"`
	UnmatchedDifference decimal.Decimal `json:"unmatchedDifference"`

	BankCount     int `json:"bankCount"`
	InternalCount int `json:"internalCount"`
	MatchedCount  int `json:"matchedCount"`
	PendingCount  int `json:"pendingCount"`
	IgnoredCount  int `json:"ignoredCount"`
}

// Traceability stamps a session with counts and a consistency hash.
type Traceability struct {
	SnapshotHash           string `json:"snapshotHash,omitempty"`
	BankMovementsCount     int    `json:"bankMovementsCount"`
	InternalMovementsCount int    `json:"internalMovementsCount"`
	MatchedMovementsCount  int    `json:"matchedMovementsCount"`
	LastAction             string `json:"lastAction"`
}

// CSVSource references the retained original statement file.
type CSVSource struct {
	FileRef  string `json:"fileRef"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// Session is the persisted unit of work. BankMovements and
// InternalMovements are nil on metadata reads and populated once hydrated.
type Session struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"-"`
	Name         string        `json:"name"`
	Type         MovementType  `json:"type"`
	Status       SessionStatus `json:"status"`
	Version      int           `json:"version"`
	Summary      Summary       `json:"summary"`
	DateRange    DateRange     `json:"dateRange"`
	Traceability Traceability  `json:"traceability"`
	CreatedBy    Actor         `json:"createdBy"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	CSVSource    *CSVSource    `json:"csvSource,omitempty"`

	BankMovements     []*BankMovement     `json:"bankMovements,omitempty"`
	InternalMovements []*InternalMovement `json:"internalMovements,omitempty"`
}

// Hydrated reports whether the movement snapshots are loaded.
func (s *Session) Hydrated() bool {
	return s.BankMovements != nil && s.InternalMovements != nil
}

// Metadata returns a shallow copy without the movement arrays.
func (s *Session) Metadata() *Session {
	c := *s
	c.BankMovements = nil
	c.InternalMovements = nil
	if s.CSVSource != nil {
		src := *s.CSVSource
		c.CSVSource = &src
	}
	return &c
}

// Clone returns a deep copy including hydrated movements.
func (s *Session) Clone() *Session {
	c := s.Metadata()
	if s.BankMovements != nil {
		c.BankMovements = CloneBankMovements(s.BankMovements)
	}
	if s.InternalMovements != nil {
		c.InternalMovements = CloneInternalMovements(s.InternalMovements)
	}
	return c
}

// Collection names a movement subcollection of a session.
type Collection string

const (
	CollectionBank     Collection = "bankMovements"
	CollectionInternal Collection = "internalMovements"
)

// MovementDocument is one stored row of a movement subcollection.
type MovementDocument struct {
	ID       string          `json:"id"`
	Position int             `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// AuditEntry is written for every draft save and finalize.
type AuditEntry struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"-"`
	Module      string                 `json:"module"`
	EntityType  string                 `json:"entityType"`
	EntityID    string                 `json:"entityId"`
	Action      string                 `json:"action"`
	Summary     string                 `json:"summary"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Before      json.RawMessage        `json:"before,omitempty"`
	After       json.RawMessage        `json:"after,omitempty"`
	PerformedBy Actor                  `json:"performedBy"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// NotificationPriority grades notification urgency.
type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// EventNetDifference is emitted when a session is finalized off balance.
const EventNetDifference = "finance.reconciliation_net_difference"

// NotificationEvent is emitted to the notification collaborator.
type NotificationEvent struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"-"`
	EventType  string                 `json:"eventType"`
	Priority   NotificationPriority   `json:"priority"`
	DedupeKey  string                 `json:"dedupeKey"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
