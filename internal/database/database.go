package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	original_path TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	file_size_bytes BIGINT NOT NULL DEFAULT 0,
	duration_millis BIGINT NOT NULL DEFAULT 0,
	resolution_artifacts TEXT NOT NULL DEFAULT '{}',
	thumbnail_key TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	notify_address TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id);
`

const selectJob = `
SELECT id, title, status, owner_id, original_path, content_type, file_size_bytes,
	duration_millis, resolution_artifacts, thumbnail_key, failure_reason, notify_address,
	created_at, updated_at
FROM jobs`

const upsertJob = `
INSERT INTO jobs (id, title, status, owner_id, original_path, content_type, file_size_bytes,
	duration_millis, resolution_artifacts, thumbnail_key, failure_reason, notify_address,
	created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	status = excluded.status,
	owner_id = excluded.owner_id,
	original_path = excluded.original_path,
	content_type = excluded.content_type,
	file_size_bytes = excluded.file_size_bytes,
	duration_millis = excluded.duration_millis,
	resolution_artifacts = excluded.resolution_artifacts,
	thumbnail_key = excluded.thumbnail_key,
	failure_reason = excluded.failure_reason,
	notify_address = excluded.notify_address,
	updated_at = excluded.updated_at`

// Database is the SQL-backed job store. It implements jobs.Store.
type Database struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex // serializes SQLite writers in this process
	now    func() time.Time
}

// Open connects to the job store for driver. For SQLite dsn is the path of
// the database file; for PostgreSQL it is a connection string.
func Open(ctx context.Context, driver, dsn string) (*Database, error) {
	switch driver {
	case DriverSQLite, "":
		return New(ctx, dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// New opens the SQLite job store.
// IMPORTANT: dbPath should be the full path to the database FILE (e.g., "/database/jobs.db"),
// and the parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors; txlock=immediate
	// takes the write lock when a transaction begins so claims never interleave.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return open(ctx, db, DriverSQLite)
}

// NewPostgres opens the PostgreSQL job store. Claims use SELECT ... FOR UPDATE,
// so several dispatcher replicas can share one database.
func NewPostgres(ctx context.Context, dsn string) (*Database, error) {
	logging.Info("Connecting to PostgreSQL job store")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	return open(ctx, db, DriverPostgres)
}

func open(ctx context.Context, db *sql.DB, driver string) (*Database, error) {
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{db: db, driver: driver, now: time.Now}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if err := d.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	logging.Info("Job store initialized (%s)", driver)
	return d, nil
}

// migrate adds columns introduced after the first schema version.
func (d *Database) migrate(ctx context.Context) error {
	if d.driver == DriverPostgres {
		_, err := d.db.ExecContext(ctx,
			"ALTER TABLE jobs ADD COLUMN IF NOT EXISTS notify_address TEXT NOT NULL DEFAULT ''")
		return err
	}

	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info('jobs') WHERE name = 'notify_address'").Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	logging.Info("Adding notify_address column to jobs table")
	_, err = d.db.ExecContext(ctx, "ALTER TABLE jobs ADD COLUMN notify_address TEXT NOT NULL DEFAULT ''")
	return err
}

// Driver returns the driver name the store was opened with.
func (d *Database) Driver() string {
	return d.driver
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// FindByID returns jobs.ErrJobNotFound when no job has id.
func (d *Database) FindByID(ctx context.Context, id string) (job *jobs.Job, err error) {
	start := time.Now()
	defer func() { recordQuery("find_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	job, err = scanJob(d.db.QueryRowContext(ctx, d.rebind(selectJob+" WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrJobNotFound
	}
	return job, err
}

// Save inserts or replaces job. CreatedAt is kept from the first save.
func (d *Database) Save(ctx context.Context, job *jobs.Job) (err error) {
	start := time.Now()
	defer func() { recordQuery("save_job", start, err) }()

	if d.driver == DriverSQLite {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.upsert(ctx, d.db, job)
}

// Update loads the job with a row lock, applies fn and writes the result in
// one transaction. When fn fails the transaction is rolled back and the job
// is returned as loaded.
func (d *Database) Update(ctx context.Context, id string, fn func(*jobs.Job) error) (job *jobs.Job, err error) {
	start := time.Now()
	defer func() { recordQuery("update_job", start, err) }()

	if d.driver == DriverSQLite {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update of job %s: %w", id, err)
	}

	query := selectJob + " WHERE id = ?"
	if d.driver == DriverPostgres {
		query += " FOR UPDATE"
	}

	loaded, err := scanJob(tx.QueryRowContext(ctx, d.rebind(query), id))
	if err != nil {
		d.rollback(tx, start)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, err
	}

	job = loaded.Clone()
	if fnErr := fn(job); fnErr != nil {
		d.rollback(tx, start)
		return loaded, fnErr
	}

	if err := d.upsert(ctx, tx, job); err != nil {
		d.rollback(tx, start)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("commit update of job %s: %w", id, err)
	}
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())

	return d.FindByID(ctx, id)
}

// ListByStatus returns jobs in status, oldest first.
func (d *Database) ListByStatus(ctx context.Context, status jobs.Status) (out []*jobs.Job, err error) {
	start := time.Now()
	defer func() { recordQuery("list_jobs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, d.rebind(selectJob+" WHERE status = ? ORDER BY created_at, id"), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of jobs per status.
func (d *Database) CountByStatus(ctx context.Context) (counts map[jobs.Status]int, err error) {
	start := time.Now()
	defer func() { recordQuery("count_jobs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts = make(map[jobs.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[jobs.Status(status)] = n
	}
	return counts, rows.Err()
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *Database) upsert(ctx context.Context, ex execer, job *jobs.Job) error {
	artifacts := job.ResolutionArtifacts
	if artifacts == nil {
		artifacts = map[string]string{}
	}
	encoded, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts of job %s: %w", job.ID, err)
	}

	now := d.now()
	created := job.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = ex.ExecContext(ctx, d.rebind(upsertJob),
		job.ID,
		job.Title,
		string(job.Status),
		job.OwnerID,
		job.OriginalPath,
		job.ContentType,
		job.FileSizeBytes,
		job.DurationMillis,
		string(encoded),
		job.ThumbnailKey,
		job.FailureReason,
		job.NotifyAddress,
		created.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (d *Database) rollback(tx *sql.Tx, start time.Time) {
	metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Error("rollback failed: %v", err)
	}
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var (
		job       jobs.Job
		status    string
		artifacts string
		created   int64
		updated   int64
	)
	err := row.Scan(
		&job.ID, &job.Title, &status, &job.OwnerID, &job.OriginalPath, &job.ContentType,
		&job.FileSizeBytes, &job.DurationMillis, &artifacts, &job.ThumbnailKey,
		&job.FailureReason, &job.NotifyAddress, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.Status(status)
	if !job.Status.Valid() {
		return nil, fmt.Errorf("job %s has unknown status %q", job.ID, status)
	}
	job.CreatedAt = time.UnixMilli(created)
	job.UpdatedAt = time.UnixMilli(updated)

	if artifacts != "" {
		if err := json.Unmarshal([]byte(artifacts), &job.ResolutionArtifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts of job %s: %w", job.ID, err)
		}
	}
	if len(job.ResolutionArtifacts) == 0 {
		job.ResolutionArtifacts = nil
	}
	return &job, nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v), writes will fail", p, info.Mode())
			if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", p)
			}
		}
	}

	return nil
}
