package resilience

import (
	"context"
	stderrors "errors"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/sony/gobreaker"
)

// SessionStore decorates a ports.SessionStore with a circuit breaker and
// retries. Only persistence failures count against the breaker and only
// retryable ones are retried; not-found and validation errors pass straight
// through.
type SessionStore struct {
	inner   ports.SessionStore
	breaker *gobreaker.CircuitBreaker
	config  Config
	metrics *observability.Metrics
	logger  logger.Logger
}

// NewSessionStore wraps inner. A nil metrics records nothing.
func NewSessionStore(inner ports.SessionStore, cfg Config, metrics *observability.Metrics) *SessionStore {
	if cfg.Retryable == nil {
		cfg.Retryable = errors.IsRetryable
	}
	return &SessionStore{
		inner:   inner,
		breaker: NewCircuitBreaker("session-store"),
		config:  cfg,
		metrics: metrics,
		logger:  logger.GetGlobalLogger().WithComponent("resilient_store"),
	}
}

// State exposes the breaker state for health reporting.
func (s *SessionStore) State() gobreaker.State {
	return s.breaker.State()
}

func call[T any](ctx context.Context, s *SessionStore, operation string, fn func() (T, error)) (T, error) {
	var result T
	err := RetryWithBackoff(ctx, s.config, func() error {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			v, err := fn()
			if err != nil && !errors.IsPersistence(err) {
				// Caller errors are returned without tripping the breaker.
				return v, &passThrough{err: err}
			}
			return v, err
		})
		if err != nil {
			var pt *passThrough
			if stderrors.As(err, &pt) {
				return pt
			}
			if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
				offline := errors.PersistenceError(errors.CodeStoreOffline, operation, err)
				offline.Retryable = false
				return offline
			}
			return err
		}
		if out != nil {
			result = out.(T)
		}
		return nil
	})

	var pt *passThrough
	if stderrors.As(err, &pt) {
		return result, pt.err
	}
	if err != nil {
		s.metrics.IncrStoreError(operation)
		s.logger.WithError(err).WithField("operation", operation).Warn("Store call failed")
	}
	return result, err
}

// passThrough carries a non-persistence error through the breaker without
// counting it as a failure.
type passThrough struct {
	err error
}

func (p *passThrough) Error() string { return p.err.Error() }

func isSuccessful(err error) bool {
	var pt *passThrough
	return err == nil || stderrors.As(err, &pt)
}

func (s *SessionStore) UpsertSession(ctx context.Context, session *models.Session) error {
	_, err := call(ctx, s, "upsert_session", func() (struct{}, error) {
		return struct{}{}, s.inner.UpsertSession(ctx, session)
	})
	return err
}

func (s *SessionStore) GetSession(ctx context.Context, tenantID, id string) (*models.Session, error) {
	return call(ctx, s, "get_session", func() (*models.Session, error) {
		return s.inner.GetSession(ctx, tenantID, id)
	})
}

func (s *SessionStore) ListSessions(ctx context.Context, tenantID string) ([]*models.Session, error) {
	return call(ctx, s, "list_sessions", func() ([]*models.Session, error) {
		return s.inner.ListSessions(ctx, tenantID)
	})
}

func (s *SessionStore) LatestDraft(ctx context.Context, tenantID string, kind models.MovementType) (*models.Session, error) {
	return call(ctx, s, "latest_draft", func() (*models.Session, error) {
		return s.inner.LatestDraft(ctx, tenantID, kind)
	})
}

func (s *SessionStore) ReplaceMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection, docs []models.MovementDocument) error {
	_, err := call(ctx, s, "replace_movements", func() (struct{}, error) {
		return struct{}{}, s.inner.ReplaceMovements(ctx, tenantID, sessionID, collection, docs)
	})
	return err
}

func (s *SessionStore) LoadMovements(ctx context.Context, tenantID, sessionID string, collection models.Collection) ([]models.MovementDocument, error) {
	return call(ctx, s, "load_movements", func() ([]models.MovementDocument, error) {
		return s.inner.LoadMovements(ctx, tenantID, sessionID, collection)
	})
}

var _ ports.SessionStore = (*SessionStore)(nil)
