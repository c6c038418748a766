package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
)

func (s *Store) WriteAudit(ctx context.Context, entry *models.AuditEntry) error {
	metadata, err := encodeOptional(entry.Metadata)
	if err != nil {
		return errors.InternalError("encode audit metadata", err)
	}
	performedBy, err := json.Marshal(entry.PerformedBy)
	if err != nil {
		return errors.InternalError("encode audit actor", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, module, entity_type, entity_id, action, summary,
			metadata, before_data, after_data, performed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.Module, entry.EntityType, entry.EntityID, entry.Action, entry.Summary,
		metadata, nullString(string(entry.Before)), nullString(string(entry.After)), string(performedBy),
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "write audit", err)
	}
	return nil
}

// AuditEntries returns the tenant's audit entries for entityID, oldest first.
func (s *Store) AuditEntries(ctx context.Context, tenantID, entityID string) ([]*models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module, entity_type, entity_id, action, summary, metadata, before_data, after_data,
			performed_by, created_at
		FROM audit_log
		WHERE tenant_id = ? AND entity_id = ?
		ORDER BY created_at, rowid`, tenantID, entityID)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "read audit", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var (
			entry                   = &models.AuditEntry{TenantID: tenantID}
			metadata, before, after sql.NullString
			performedBy, createdAt  string
		)
		if err := rows.Scan(&entry.ID, &entry.Module, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.Summary, &metadata, &before, &after, &performedBy, &createdAt); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "read audit", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, errors.PersistenceError(errors.CodeReadFailed, "decode audit metadata", err)
			}
		}
		if before.Valid {
			entry.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			entry.After = json.RawMessage(after.String)
		}
		if err := json.Unmarshal([]byte(performedBy), &entry.PerformedBy); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "decode audit actor", err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "decode audit time", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "read audit", err)
	}
	return entries, nil
}

// Emit inserts the event into the outbox. A conflicting dedupe key leaves
// the existing row in place and reports false.
func (s *Store) Emit(ctx context.Context, event *models.NotificationEvent) (bool, error) {
	metadata, err := encodeOptional(event.Metadata)
	if err != nil {
		return false, errors.InternalError("encode notification metadata", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, tenant_id, dedupe_key, event_type, priority, entity_id,
			entity_type, title, body, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, dedupe_key) DO NOTHING`,
		event.ID, event.TenantID, event.DedupeKey, event.EventType, string(event.Priority), event.EntityID,
		event.EntityType, event.Title, event.Body, metadata, formatTime(event.CreatedAt),
	)
	if err != nil {
		return false, errors.PersistenceError(errors.CodeWriteFailed, "emit notification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.PersistenceError(errors.CodeWriteFailed, "emit notification", err)
	}
	return n == 1, nil
}

// Notifications returns the tenant's outbox, oldest first.
func (s *Store) Notifications(ctx context.Context, tenantID string) ([]*models.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dedupe_key, event_type, priority, entity_id, entity_type, title, body, metadata, created_at
		FROM notification_outbox
		WHERE tenant_id = ?
		ORDER BY created_at, rowid`, tenantID)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "read notifications", err)
	}
	defer rows.Close()

	var events []*models.NotificationEvent
	for rows.Next() {
		var (
			event     = &models.NotificationEvent{TenantID: tenantID}
			priority  string
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&event.ID, &event.DedupeKey, &event.EventType, &priority, &event.EntityID,
			&event.EntityType, &event.Title, &event.Body, &metadata, &createdAt); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "read notifications", err)
		}
		event.Priority = models.NotificationPriority(priority)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, errors.PersistenceError(errors.CodeReadFailed, "decode notification metadata", err)
			}
		}
		if event.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "decode notification time", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "read notifications", err)
	}
	return events, nil
}

func encodeOptional(v map[string]interface{}) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return nullString(string(data)), nil
}

var (
	_ ports.AuditWriter = (*Store)(nil)
	_ ports.Notifier    = (*Store)(nil)
)
