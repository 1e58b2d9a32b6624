package mallard

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mallard-db/mallard/internal/compute"
	"github.com/mallard-db/mallard/internal/config"
	"github.com/mallard-db/mallard/internal/engine"
	"github.com/mallard-db/mallard/internal/metastore"
	"github.com/mallard-db/mallard/internal/monitor"
	"github.com/mallard-db/mallard/internal/storage"
)

// Options configures Connect. Zero-valued fields fall back to MALLARD_*
// environment variables (and an optional .env file), then to defaults.
type Options struct {
	// Master is "local" for an in-process engine or the http(s) base URL of
	// a compute agent.
	Master string
	// AgentToken is the shared secret for a remote agent.
	AgentToken string
	// DatabasePath is the DuckDB file backing the session engine; empty
	// means in-memory.
	DatabasePath string
	// MetastorePath is the SQLite file for datasets, history, and models.
	MetastorePath string
	// MonitorAddr enables the monitoring UI on the given listen address.
	MonitorAddr string
	// Profile names a connection profile in ~/.mallard/profiles.yaml.
	Profile string
	// LogLevel overrides the log level (debug, info, warn, error).
	LogLevel string
	// HTTPTimeout bounds individual requests to a remote agent.
	HTTPTimeout time.Duration
	// Logger overrides the default stderr text logger.
	Logger *slog.Logger
}

// Session is an active connection to the analytics engine. It owns the
// engine handle, the compute executor, the metastore, and the optional
// monitor server. Close releases everything; a closed session fails all
// further operations with ClosedError.
type Session struct {
	id        string
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	exec      compute.Executor
	remote    *compute.RemoteExecutor
	metaWrite *sql.DB
	metaRead  *sql.DB
	datasets  *metastore.DatasetRepo
	history   *metastore.HistoryRepo
	models    *metastore.ModelRepo
	presigner storage.Presigner
	monitor   *monitor.Server
	startedAt time.Time
	closed    atomic.Bool
}

// Connect establishes a session against the configured engine. It opens the
// local DuckDB (used directly in local mode, and for result materialization
// in remote mode), performs the agent handshake when remote, migrates the
// metastore, and starts the monitor UI when configured.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	_ = config.LoadDotEnv(".env")

	cfg := config.ReadEnv()
	applyOptions(cfg, opts)
	if opts.Profile != "" {
		if err := config.LoadProfile(cfg, config.DefaultProfilesPath(), opts.Profile); err != nil {
			return nil, ErrConnection(err, "load profile %q", opts.Profile)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, ErrConnection(err, "invalid configuration")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		logger:    logger.With("component", "session"),
		startedAt: time.Now(),
	}

	db, err := engine.Open(opts.DatabasePath)
	if err != nil {
		return nil, ErrConnection(err, "open engine")
	}
	s.db = db

	if err := engine.InstallExtensions(ctx, db); err != nil {
		s.logger.Warn("extension setup failed; remote sources disabled", "error", err)
	}
	if cfg.S3.Complete() {
		if err := engine.CreateS3Secret(ctx, db, "mallard_ingest",
			*cfg.S3.KeyID, *cfg.S3.Secret, *cfg.S3.Endpoint, *cfg.S3.Region); err != nil {
			s.logger.Warn("engine S3 secret setup failed", "error", err)
		}
		presigner, err := storage.NewS3Presigner(cfg.S3)
		if err != nil {
			s.logger.Warn("S3 presigner setup failed", "error", err)
		} else {
			s.presigner = presigner
		}
	}

	if cfg.IsRemote() {
		remote := compute.NewRemoteExecutor(cfg.Master, cfg.AgentToken, s.id, db, cfg.HTTPTimeout)
		if err := remote.Handshake(ctx); err != nil {
			_ = db.Close()
			return nil, ErrConnection(err, "connect to agent %s", cfg.Master)
		}
		s.remote = remote
		s.exec = remote
		s.logger.Info("connected to remote agent", "master", cfg.Master, "agent_session", remote.SessionID())
	} else {
		s.exec = compute.NewLocalExecutor(db)
		s.logger.Info("connected to local engine")
	}

	writeDB, readDB, err := metastore.OpenSQLitePair(cfg.MetastorePath, 0)
	if err != nil {
		s.teardown(ctx)
		return nil, ErrConnection(err, "open metastore %s", cfg.MetastorePath)
	}
	s.metaWrite, s.metaRead = writeDB, readDB
	if err := metastore.RunMigrations(writeDB); err != nil {
		s.teardown(ctx)
		return nil, ErrConnection(err, "migrate metastore")
	}
	s.datasets = metastore.NewDatasetRepo(writeDB)
	s.history = metastore.NewHistoryRepo(writeDB)
	s.models = metastore.NewModelRepo(writeDB)

	if cfg.MonitorAddr != "" {
		mon := monitor.New(monitor.Config{
			Addr:        cfg.MonitorAddr,
			SessionID:   s.id,
			Mode:        cfg.Master,
			StartedAt:   s.startedAt,
			Datasets:    metastore.NewDatasetRepo(readDB),
			History:     metastore.NewHistoryRepo(readDB),
			Models:      metastore.NewModelRepo(readDB),
			RefreshSpec: cfg.StatsRefreshSpec,
			Refresh:     s.refreshDatasetStats,
			Logger:      logger.With("component", "monitor"),
		})
		if err := mon.Start(); err != nil {
			s.logger.Warn("monitor failed to start", "addr", cfg.MonitorAddr, "error", err)
		} else {
			s.monitor = mon
			s.logger.Info("monitor listening", "addr", mon.Addr())
		}
	}

	return s, nil
}

// applyOptions overlays non-zero option fields onto the env-derived config.
func applyOptions(cfg *config.Config, opts Options) {
	if opts.Master != "" {
		cfg.Master = opts.Master
	}
	if opts.AgentToken != "" {
		cfg.AgentToken = opts.AgentToken
	}
	if opts.MetastorePath != "" {
		cfg.MetastorePath = opts.MetastorePath
	}
	if opts.MonitorAddr != "" {
		cfg.MonitorAddr = opts.MonitorAddr
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.HTTPTimeout != 0 {
		cfg.HTTPTimeout = opts.HTTPTimeout
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// IsRemote reports whether the session targets a remote compute agent.
func (s *Session) IsRemote() bool { return s.remote != nil }

// MonitorAddr returns the monitor UI's listen address, or "" when disabled.
func (s *Session) MonitorAddr() string {
	if s.monitor == nil {
		return ""
	}
	return s.monitor.Addr()
}

// Table returns a Frame over an existing engine table.
func (s *Session) Table(name string) (*Frame, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validTableName(name); err != nil {
		return nil, err
	}
	return &Frame{sess: s, query: "SELECT * FROM " + quoteIdent(name)}, nil
}

// Close releases the engine, agent session, monitor, and metastore.
// Idempotent: second and later calls return nil without doing work.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("closing session", "session_id", s.id)
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	s.closed.Store(true)

	var errs []error
	if s.monitor != nil {
		if err := s.monitor.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.remote != nil {
		if err := s.remote.CloseSession(ctx); err != nil {
			s.logger.Warn("agent session close failed", "error", err)
		}
	}
	if s.metaRead != nil {
		if err := s.metaRead.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.metaWrite != nil {
		if err := s.metaWrite.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed("session %s is closed", s.id)
	}
	return nil
}

// collect executes a statement and pulls all rows into a Table, recording
// the execution in query history.
func (s *Session) collect(ctx context.Context, sqlText string) (*Table, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.exec.QueryContext(ctx, sqlText)
	if err != nil {
		s.recordQuery(ctx, sqlText, start, 0, err)
		return nil, ErrData(err, "execute query")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		s.recordQuery(ctx, sqlText, start, 0, err)
		return nil, ErrData(err, "read result columns")
	}

	var collected [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.recordQuery(ctx, sqlText, start, 0, err)
			return nil, ErrData(err, "scan result row")
		}
		for i, v := range values {
			if b, isBytes := v.([]byte); isBytes {
				values[i] = string(b)
			}
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		s.recordQuery(ctx, sqlText, start, 0, err)
		return nil, ErrData(err, "iterate result")
	}

	s.recordQuery(ctx, sqlText, start, int64(len(collected)), nil)
	return NewTable(cols, collected), nil
}

// execStatement runs a statement for its side effects (DDL, ingestion).
func (s *Session) execStatement(ctx context.Context, sqlText string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	rows, err := s.exec.QueryContext(ctx, sqlText)
	if err != nil {
		s.recordQuery(ctx, sqlText, start, 0, err)
		return ErrData(err, "execute statement")
	}
	_ = rows.Close()
	s.recordQuery(ctx, sqlText, start, 0, nil)
	return nil
}

// recordQuery appends to query history. History is advisory; failures are
// logged, never propagated.
func (s *Session) recordQuery(ctx context.Context, sqlText string, start time.Time, rowCount int64, execErr error) {
	rec := &metastore.QueryRecord{
		SessionID:    s.id,
		SQL:          sqlText,
		Status:       metastore.QueryStatusOK,
		DurationMS:   time.Since(start).Milliseconds(),
		RowsReturned: rowCount,
	}
	if execErr != nil {
		rec.Status = metastore.QueryStatusError
		msg := execErr.Error()
		rec.ErrorMessage = &msg
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Warn("query history record failed", "error", err)
	}
}

// refreshDatasetStats recounts every registered dataset, called by the
// monitor's cron job.
func (s *Session) refreshDatasetStats(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	datasets, err := s.datasets.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range datasets {
		f, err := s.Table(d.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := f.Count(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.datasets.UpdateRowCount(ctx, d.Name, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// History returns the most recent executed statements for this session.
func (s *Session) History(ctx context.Context, limit int) ([]metastore.QueryRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.history.Recent(ctx, s.id, limit)
}
