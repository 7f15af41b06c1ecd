package transitdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver
	"golang.org/x/time/rate"

	"transitstore.org/internal/clock"
	"transitstore.org/internal/logging"
	"transitstore.org/internal/metrics"
)

// OpenFunc opens a database/sql handle. Tests substitute it to inject failures.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Hook runs against every freshly opened and migrated handle.
type Hook func(ctx context.Context, db *sql.DB) error

// Config configures a Store.
type Config struct {
	// Dir holds the database file. Ignored when Path is set.
	Dir string
	// Path overrides the file location; MemoryPath opens an in-memory store.
	Path string
	// ProbeInterval throttles HealthCheck. Zero probes on every call.
	ProbeInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Open    OpenFunc
}

// Store is the handle cache of one data family: it opens the database
// lazily, brings its schema to the expected version and reopens it when the
// file underneath is replaced.
type Store struct {
	schema  Schema
	path    string
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
	open    OpenFunc
	probe   *rate.Sometimes

	mu       sync.Mutex
	db       *sql.DB
	file     os.FileInfo
	version  int
	openedAt time.Time
	hooks    []Hook
}

// New returns a store for schema. Nothing is opened until Get.
func New(schema Schema, cfg Config) *Store {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(cfg.Dir, schema.FileName())
	}
	open := cfg.Open
	if open == nil {
		open = sql.Open
	}
	s := &Store{
		schema:  schema,
		path:    path,
		logger:  logging.Component(cfg.Logger, "schema_store").With(slog.String("family", schema.Authority())),
		metrics: cfg.Metrics,
		clock:   clock.OrReal(cfg.Clock),
		open:    open,
	}
	if cfg.ProbeInterval > 0 {
		s.probe = &rate.Sometimes{Interval: cfg.ProbeInterval}
	}
	return s
}

func (s *Store) Schema() Schema {
	return s.schema
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// OnOpen registers a hook run after every open. Register hooks before the
// first Get; a hook error fails the open.
func (s *Store) OnOpen(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Get returns the cached handle, opening and migrating the database first
// when no handle is cached.
func (s *Store) Get(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	h, err := s.openHandle(ctx)
	if err != nil {
		return nil, err
	}
	s.install(h)
	return s.db, nil
}

// Invalidate closes and drops the cached handle. The next Get reopens.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return
	}
	logging.SafeCloseWithLogging(s.db, s.logger, "invalidate_handle")
	s.db = nil
	s.file = nil
	s.version = 0
	logging.LogOperation(s.logger, "store_handle_invalidated")
}

// Reload reruns the open hooks against the cached handle, for callers that
// rewrote the data in place. Without a cached handle it does nothing; the
// hooks run on the next Get.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	for _, hook := range s.hooks {
		if err := hook(ctx, s.db); err != nil {
			return fmt.Errorf("open hook: %w", err)
		}
	}
	return nil
}

// Close releases the cached handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.file = nil
	return err
}

// HealthCheck is the version probe run before queries. When the database
// file was replaced since the handle was opened, the handle is reopened. A
// failed reopen is logged and the previous handle stays in use; the next
// probe retries.
func (s *Store) HealthCheck(ctx context.Context) {
	if s.probe == nil {
		s.checkDrift(ctx)
		return
	}
	s.probe.Do(func() { s.checkDrift(ctx) })
}

func (s *Store) checkDrift(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.path == MemoryPath {
		return
	}
	current, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Reopening would leave an empty database where the dataset was.
		logging.LogWarning(s.logger, "database file missing, keeping open handle",
			slog.String("path", s.path))
		return
	}
	if err == nil && s.file != nil && os.SameFile(s.file, current) {
		return
	}

	logging.LogWarning(s.logger, "database file changed underneath open handle",
		slog.String("path", s.path),
		slog.Time("opened_at", s.openedAt))

	h, err := s.openHandle(ctx)
	s.metrics.ObserveDrift(s.schema.Authority(), err)
	if err != nil {
		logging.LogError(s.logger, "reopen failed, keeping previous handle", err,
			slog.String("path", s.path))
		return
	}
	logging.SafeCloseWithLogging(s.db, s.logger, "replace_handle")
	s.install(h)
}

type handle struct {
	db      *sql.DB
	file    os.FileInfo
	version int
	kind    string
}

func (s *Store) install(h *handle) {
	s.db = h.db
	s.file = h.file
	s.version = h.version
	s.openedAt = s.clock.Now()
	s.metrics.ObserveStoreOpen(s.schema.Authority(), h.kind)
}

func (s *Store) openHandle(ctx context.Context) (*handle, error) {
	start := s.clock.Now()

	dsn := s.path
	if s.path != MemoryPath {
		if err := createIfMissing(s.path); err != nil {
			return nil, err
		}
		// Pooled connections must not recreate a file removed later on.
		dsn = "file:" + s.path + "?mode=rw"
	}

	db, err := s.open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", s.path, err)
	}
	configureConnectionPool(db, s.path)

	h, err := s.prepare(ctx, db)
	if err != nil {
		logging.SafeCloseWithLogging(db, s.logger, "failed_open")
		return nil, err
	}

	logging.LogOperation(s.logger, "store_opened",
		slog.String("path", s.path),
		slog.String("kind", h.kind),
		slog.Int("version", h.version),
		slog.Duration("duration", s.clock.Now().Sub(start)))
	return h, nil
}

// createIfMissing leaves an empty file at path, which SQLite opens as an
// empty database.
func createIfMissing(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}

func (s *Store) prepare(ctx context.Context, db *sql.DB) (*handle, error) {
	if err := configureSQLitePerformance(ctx, db, s.logger); err != nil {
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	kind, err := Migrate(ctx, db, s.schema, s.logger)
	if err != nil {
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}
	version, err := UserVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	for _, hook := range s.hooks {
		if err := hook(ctx, db); err != nil {
			return nil, fmt.Errorf("open hook: %w", err)
		}
	}

	h := &handle{db: db, version: version, kind: kind}
	if s.path != MemoryPath {
		if h.file, err = os.Stat(s.path); err != nil {
			return nil, fmt.Errorf("stat %s: %w", s.path, err)
		}
	}
	return h, nil
}

// Stats exposes the pool statistics of the cached handle, if any.
func (s *Store) Stats() (sql.DBStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return sql.DBStats{}, false
	}
	return s.db.Stats(), true
}

// Version is the schema version this build expects.
func (s *Store) Version() int {
	return s.schema.Version()
}

func (s *Store) Label() string {
	return s.schema.Label()
}

// Deployed reports whether the database file exists. It never creates it.
func (s *Store) Deployed() bool {
	if s.path == MemoryPath {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.db != nil
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// SetupRequired reports whether the family still needs its dataset
// installed or upgraded: the file is absent, or the open handle or the file
// on disk is at another version than expected. It never creates the file.
func (s *Store) SetupRequired(ctx context.Context) (bool, error) {
	if !s.Deployed() {
		return true, nil
	}

	s.mu.Lock()
	open, handleVersion := s.db != nil, s.version
	s.mu.Unlock()
	if open && handleVersion != s.schema.Version() {
		return true, nil
	}
	if s.path == MemoryPath {
		return false, nil
	}

	onDisk, err := s.diskVersion(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return onDisk != s.schema.Version(), nil
}

func (s *Store) diskVersion(ctx context.Context) (int, error) {
	db, err := s.open("sqlite3", "file:"+s.path+"?mode=ro")
	if err != nil {
		return 0, fmt.Errorf("open %s read-only: %w", s.path, err)
	}
	defer logging.SafeCloseWithLogging(db, s.logger, "probe_handle")
	return UserVersion(ctx, db)
}
