package sqlite

import (
	"context"
	"encoding/json"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
)

// ImportInternalMovements upserts ledger rows in a single transaction.
func (s *Store) ImportInternalMovements(ctx context.Context, tenantID string, movements []*models.InternalMovement) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.PersistenceError(errors.CodeWriteFailed, "import ledger", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO internal_movements (tenant_id, id, kind, movement_date, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			kind = excluded.kind,
			movement_date = excluded.movement_date,
			data = excluded.data`)
	if err != nil {
		return 0, errors.PersistenceError(errors.CodeWriteFailed, "import ledger", err)
	}
	defer stmt.Close()

	for _, m := range movements {
		data, err := json.Marshal(m)
		if err != nil {
			return 0, errors.InternalError("encode internal movement", err)
		}
		date := nullString(models.FormatDate(m.MovementDate))
		if _, err := stmt.ExecContext(ctx, tenantID, m.ID, string(m.Kind), date, string(data)); err != nil {
			return 0, errors.PersistenceError(errors.CodeWriteFailed, "import ledger", err).
				WithContext("movement_id", m.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.PersistenceError(errors.CodeWriteFailed, "import ledger", err)
	}
	return len(movements), nil
}

// LoadInternalMovements filters by kind and period. A bounded period skips
// undated movements; dates compare as YYYY-MM-DD text.
func (s *Store) LoadInternalMovements(ctx context.Context, tenantID string, kind models.MovementType, period models.DateRange) ([]*models.InternalMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM internal_movements
		WHERE tenant_id = ?1 AND kind = ?2
			AND (?3 = '' OR movement_date >= ?3)
			AND (?4 = '' OR movement_date <= ?4)
		ORDER BY rowid`, tenantID, string(kind), period.From, period.To)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "load internal movements", err)
	}
	defer rows.Close()

	movements := make([]*models.InternalMovement, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "load internal movements", err)
		}
		m := &models.InternalMovement{}
		if err := json.Unmarshal([]byte(data), m); err != nil {
			return nil, errors.PersistenceError(errors.CodeReadFailed, "decode internal movement", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "load internal movements", err)
	}
	return movements, nil
}

var (
	_ ports.InternalMovementLoader = (*Store)(nil)
	_ ports.LedgerWriter           = (*Store)(nil)
)
