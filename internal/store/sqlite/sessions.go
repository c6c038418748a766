package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
)

const sessionColumns = `tenant_id, id, name, type, status, version, summary, date_from, date_to,
	traceability, created_by, csv_source, created_at, updated_at`

// UpsertSession inserts the metadata row or updates it in place. Updating in
// place keeps the movement rows that reference the session.
func (s *Store) UpsertSession(ctx context.Context, session *models.Session) error {
	summary, err := json.Marshal(session.Summary)
	if err != nil {
		return errors.InternalError("encode summary", err)
	}
	trace, err := json.Marshal(session.Traceability)
	if err != nil {
		return errors.InternalError("encode traceability", err)
	}
	createdBy, err := json.Marshal(session.CreatedBy)
	if err != nil {
		return errors.InternalError("encode creator", err)
	}
	var source sql.NullString
	if session.CSVSource != nil {
		data, err := json.Marshal(session.CSVSource)
		if err != nil {
			return errors.InternalError("encode csv source", err)
		}
		source = nullString(string(data))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			status = excluded.status,
			version = excluded.version,
			summary = excluded.summary,
			date_from = excluded.date_from,
			date_to = excluded.date_to,
			traceability = excluded.traceability,
			created_by = excluded.created_by,
			csv_source = excluded.csv_source,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		session.TenantID, session.ID, session.Name, string(session.Type), string(session.Status), session.Version,
		string(summary), session.DateRange.From, session.DateRange.To, string(trace), string(createdBy), source,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	)
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "upsert session", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, tenantID, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	session, err := scanSession(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError("session", id)
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "get session", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, tenantID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = ?
		ORDER BY updated_at DESC, id ASC`, tenantID)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "list sessions", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "list sessions", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "list sessions", err)
	}
	return sessions, nil
}

func (s *Store) LatestDraft(ctx context.Context, tenantID string, kind models.MovementType) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = ? AND type = ? AND status = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT 1`, tenantID, string(kind), string(models.SessionDraft))
	session, err := scanSession(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "latest draft", err)
	}
	return session, nil
}

// ReplaceMovements deletes and re-inserts the collection in one transaction.
func (s *Store) ReplaceMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection, docs []models.MovementDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_movements
		WHERE tenant_id = ? AND session_id = ? AND collection = ?`,
		tenantID, sessionID, string(collection)); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_movements (tenant_id, session_id, collection, position, movement_id, data)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, tenantID, sessionID, string(collection), doc.Position, doc.ID, string(doc.Data)); err != nil {
			return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", err).
				WithContext("movement_id", doc.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "replace movements", err)
	}
	return nil
}

func (s *Store) LoadMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection) ([]models.MovementDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT movement_id, position, data FROM session_movements
		WHERE tenant_id = ? AND session_id = ? AND collection = ?
		ORDER BY position`, tenantID, sessionID, string(collection))
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "load movements", err)
	}
	defer rows.Close()

	docs := make([]models.MovementDocument, 0)
	for rows.Next() {
		var doc models.MovementDocument
		var data string
		if err := rows.Scan(&doc.ID, &doc.Position, &data); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "load movements", err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "load movements", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session                   models.Session
		kind, status              string
		summary, trace, createdBy string
		source                    sql.NullString
		createdAt, updatedAt      string
	)
	if err := row.Scan(
		&session.TenantID, &session.ID, &session.Name, &kind, &status, &session.Version,
		&summary, &session.DateRange.From, &session.DateRange.To, &trace, &createdBy, &source,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	session.Type = models.MovementType(kind)
	session.Status = models.SessionStatus(status)
	if err := json.Unmarshal([]byte(summary), &session.Summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(trace), &session.Traceability); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(createdBy), &session.CreatedBy); err != nil {
		return nil, err
	}
	if source.Valid {
		session.CSVSource = &models.CSVSource{}
		if err := json.Unmarshal([]byte(source.String), session.CSVSource); err != nil {
			return nil, err
		}
	}

	var err error
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &session, nil
}

var _ ports.SessionStore = (*Store)(nil)
