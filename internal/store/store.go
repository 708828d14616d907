package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/dshills/quorum/internal/review"
)

// ErrNotFound is returned by Get for an unknown report ID.
var ErrNotFound = errors.New("report not found")

// Entry is the listing view of a stored report.
type Entry struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Mode          string    `json:"mode"`
	Backend       string    `json:"backend,omitempty"`
	Model         string    `json:"model,omitempty"`
	TotalComments int       `json:"total_comments"`
	FilesReviewed int       `json:"files_reviewed"`
	Partial       bool      `json:"partial,omitempty"`
}

// Store persists reports.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to driver ("sqlite" or "mysql") and creates the schema when
// missing. For sqlite, dsn is a file path whose directory is created.
func Open(driver, dsn string) (*Store, error) {
	ctx := context.Background()
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		driver = "sqlite"
		db, err = openSQLite(ctx, dsn)
	case "mysql":
		db, err = openMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store needs a file path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One writer at a time; keep the connection so :memory: survives.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		mode TEXT NOT NULL,
		backend TEXT NOT NULL,
		model TEXT NOT NULL,
		total_comments INTEGER NOT NULL,
		files_reviewed INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		report TEXT NOT NULL
	)`
	index := "CREATE INDEX IF NOT EXISTS idx_reviews_created ON reviews(created_at)"
	if s.driver == "mysql" {
		ddl = `CREATE TABLE IF NOT EXISTS reviews (
			id VARCHAR(64) PRIMARY KEY,
			created_at BIGINT NOT NULL,
			mode VARCHAR(32) NOT NULL,
			backend VARCHAR(64) NOT NULL,
			model VARCHAR(128) NOT NULL,
			total_comments INT NOT NULL,
			files_reviewed INT NOT NULL,
			partial TINYINT NOT NULL,
			report LONGTEXT NOT NULL,
			INDEX idx_reviews_created (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
		index = ""
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	if index != "" {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return err
		}
	}
	return nil
}

// Save stores report, replacing any earlier report with the same ID.
func (s *Store) Save(ctx context.Context, report *review.Report) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("report has no ID")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO reviews (id, created_at, mode, backend, model, total_comments, files_reviewed, partial, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.CreatedAt.UnixMilli(),
		report.Source.Mode,
		report.Backend,
		report.Model,
		report.TotalComments,
		report.FilesReviewed,
		boolInt(report.Partial),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("saving report %s: %w", report.ID, err)
	}
	return nil
}

// Get loads the report with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*review.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT report FROM reviews WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", id, err)
	}
	var report review.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", id, err)
	}
	return &report, nil
}

// List returns the newest entries first. limit <= 0 means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, mode, backend, model, total_comments, files_reviewed, partial
		 FROM reviews ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
			partial int
		)
		if err := rows.Scan(&e.ID, &created, &e.Mode, &e.Backend, &e.Model, &e.TotalComments, &e.FilesReviewed, &partial); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		e.Partial = partial != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
