// Package store holds helpers shared by the session store implementations
// and their consumers.
package store

import (
	"context"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// Hydrate returns a copy of meta with both movement subcollections loaded.
// The two collections are fetched concurrently; the first failure cancels
// the other read.
func Hydrate(ctx context.Context, sessions ports.SessionStore, meta *models.Session) (*models.Session, error) {
	var (
		bankDocs     []models.MovementDocument
		internalDocs []models.MovementDocument
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := sessions.LoadMovements(gctx, meta.TenantID, meta.ID, models.CollectionBank)
		bankDocs = docs
		return err
	})
	g.Go(func() error {
		docs, err := sessions.LoadMovements(gctx, meta.TenantID, meta.ID, models.CollectionInternal)
		internalDocs = docs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bank, err := models.DecodeBankMovements(bankDocs)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "decode bank movements", err)
	}
	internal, err := models.DecodeInternalMovements(internalDocs)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeReadFailed, "decode internal movements", err)
	}

	hydrated := meta.Metadata()
	hydrated.BankMovements = bank
	hydrated.InternalMovements = internal
	return hydrated, nil
}
