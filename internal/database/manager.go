package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
	dbconfig "attendancehub/pkg/database"
)

var _ interfaces.Store = (*Manager)(nil)

// ErrManagerClosed is returned for writes after Close.
var ErrManagerClosed = errors.New("database manager is closed")

// Manager implements interfaces.Store. Reads run concurrently on the pool;
// writes are funnelled through a single goroutine so sqlite never sees two
// writers at once.
type Manager struct {
	db           *sqlx.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	// retryDelay is the pause before the single retry of a busy write.
	retryDelay time.Duration
}

type writeOperation struct {
	operation func(*sqlx.DB) error
	result    chan error
}

// NewManager opens the database described by config and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid database configuration")
	}

	if config.Driver == dbconfig.DriverSQLite {
		if dir := filepath.Dir(config.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
			}
		}
	}

	db, err := sqlx.Open(config.Driver, config.DataSourceName())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if config.Driver == dbconfig.DriverSQLite {
		if err := dbconfig.ApplySQLiteOptimizations(db.DB); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "failed to apply SQLite optimizations")
		}
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   time.Second,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded schema migrations.
func (m *Manager) Migrate() (int, error) {
	mm := dbconfig.NewMigrationManager(m.db.DB, m.config.Driver)
	n, err := mm.ApplyMigrations()
	if err != nil {
		return n, err
	}
	if err := mm.ValidateSchema(); err != nil {
		return n, errors.Wrap(err, "schema validation failed")
	}
	return n, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if isBusy(err) {
				log.WithError(err).Warn("database busy, retrying write once")
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
			}
			op.result <- err

		case <-m.shutdown:
			log.Debug("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sqlx.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return errors.New("write operation timeout")
	case <-m.shutdown:
		return errors.New("database manager is shutting down")
	}
}

// withTx runs fn inside a transaction on the writer goroutine.
func (m *Manager) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction")
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return errors.Wrap(tx.Commit(), "failed to commit transaction")
	})
}

// q rebinds a query written with ? placeholders for the active driver.
func (m *Manager) q(query string) string {
	return m.db.Rebind(query)
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}
	var n int
	if err := m.db.QueryRowxContext(ctx, "SELECT COUNT(*) FROM device_connections").Scan(&n); err != nil {
		return errors.Wrap(err, "database read test failed")
	}
	return nil
}

// DB exposes the pool for migrations and schema checks.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return errors.Wrap(m.db.Close(), "failed to close database")
}

// now is the single source of timestamps written by the store.
func now() time.Time {
	return dbTime(time.Now())
}

// dbTime normalizes times so sqlite text comparisons order correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// translate maps driver errors onto the store sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return errors.Wrap(interfaces.ErrNotFound, what)
	case isUniqueViolation(err):
		return errors.Wrapf(interfaces.ErrConflict, "%s: %v", what, err)
	default:
		return errors.Wrap(err, what)
	}
}
