package cmd

import (
	"fmt"
	"io"
	"os"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/history"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/observability"
	"golang-bank-reconciliation/internal/ports"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/resilience"
	"golang-bank-reconciliation/internal/store/filestore"
	"golang-bank-reconciliation/internal/store/memory"
	"golang-bank-reconciliation/internal/store/sqlite"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// backend is a store implementing every port.
type backend interface {
	ports.SessionStore
	ports.InternalMovementLoader
	ports.LedgerWriter
	ports.AuditWriter
	ports.Notifier
}

// App holds the collaborators of one command run.
type App struct {
	Settings *config.Settings
	Logger   logger.Logger
	Metrics  *observability.Metrics

	Sessions ports.SessionStore
	Ledger   interface {
		ports.InternalMovementLoader
		ports.LedgerWriter
	}
	Audit    ports.AuditWriter
	Notifier ports.Notifier
	Files    ports.FileStore
	History  *history.Index

	close func() error
}

// openApp loads the settings, installs the logger and opens the store.
func openApp() (*App, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logConfig := settings.LoggerConfig()
	if viper.GetBool("verbose") && logConfig.Level == logger.InfoLevel {
		logConfig.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Log, err)
	}
	logger.SetGlobalLogger(log)

	var (
		store   backend
		closeFn = func() error { return nil }
	)
	switch settings.Store.Driver {
	case config.DriverMemory:
		store = memory.New()
	default:
		db, err := sqlite.Open(settings.Store.Path)
		if err != nil {
			return nil, err
		}
		store = db
		closeFn = db.Close
	}

	metrics := observability.NewMetrics()
	sessions := resilience.NewSessionStore(store, settings.ResilienceConfig(), metrics)

	app := &App{
		Settings: settings,
		Logger:   log.WithComponent("cli"),
		Metrics:  metrics,
		Sessions: sessions,
		Ledger:   store,
		Audit:    store,
		Notifier: store,
		Files:    filestore.New(settings.Files.Root),
		History:  history.NewIndex(sessions, settings.HistoryConfig(), metrics),
		close:    closeFn,
	}

	app.Logger.WithFields(logger.Fields{
		"store":     settings.Store.Driver,
		"tenant_id": settings.Tenant.ID,
	}).Debug("Application initialized")
	return app, nil
}

// Actor returns the configured identity.
func (a *App) Actor() models.Actor {
	return a.Settings.Actor()
}

// Workspace creates a workspace for flow.
func (a *App) Workspace(flow models.MovementType) (*reconciler.Workspace, error) {
	cfg, err := a.Settings.ReconcilerConfig()
	if err != nil {
		return nil, err
	}
	return reconciler.NewWorkspace(flow, a.Actor(), reconciler.Dependencies{
		Loader:   a.Ledger,
		Sessions: a.Sessions,
		Files:    a.Files,
		Audit:    a.Audit,
		Notifier: a.Notifier,
		Metrics:  a.Metrics,
	}, cfg)
}

// Close writes the metrics textfile, if configured, and closes the store.
func (a *App) Close() error {
	var firstErr error
	if path := a.Settings.Metrics.File; path != "" {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			a.Logger.WithError(err).WithField("path", path).Warn("Failed to write metrics file")
			firstErr = err
		}
	}
	if err := a.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// render writes session in format to the output file, or stdout when
// outputFile is empty.
func render(session *models.Session, format, outputFile string, stdout io.Writer) error {
	reportConfig, err := config.CreateReportConfig(format)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if outputFile == "" {
		return generator.GenerateReportSafely(session, stdout)
	}

	file, err := os.Create(outputFile)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "output-file", outputFile, err).
			WithSuggestion("check that the output directory exists and is writable")
	}
	defer file.Close()
	return generator.GenerateReportSafely(session, file)
}

// parseFlow resolves the --type flag.
func parseFlow(raw string) (models.MovementType, error) {
	flow, err := models.ParseMovementType(raw)
	if err != nil {
		return "", errors.ValidationError(errors.CodeInvalidValue, "type", raw, err).
			WithSuggestion("use income or expense")
	}
	return flow, nil
}

// workingSession wraps the workspace state for rendering.
func workingSession(ws *reconciler.Workspace, meta *models.Session) *models.Session {
	state := ws.State()
	session := &models.Session{
		Type:    state.Type,
		Status:  models.SessionDraft,
		Name:    fmt.Sprintf("%s reconciliation (unsaved)", state.Type),
		Summary: state.Summary,
	}
	if meta != nil {
		session = meta.Metadata()
		session.Summary = state.Summary
	}
	session.ID = state.ActiveSessionID
	if meta != nil && session.ID == "" {
		session.ID = meta.ID
	}
	session.DateRange = state.DateRange
	session.BankMovements = state.BankMovements
	session.InternalMovements = state.InternalMovements
	return session
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}
