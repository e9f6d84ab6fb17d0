package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/insightlab/reportstream/internal/assembly"
	"github.com/insightlab/reportstream/internal/report"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PGStore persists reports in PostgreSQL. The report and its finalized view
// are stored as JSON documents; lookups only ever go through the id and the
// created_at index.
type PGStore struct {
	db  *sql.DB
	log *slog.Logger
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// OpenPG connects, applies the pool config, and runs pending migrations.
func OpenPG(databaseURL string, pool PoolConfig, log *slog.Logger) (*PGStore, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info("report store connected")
	return &PGStore{db: db, log: log}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) Put(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	var viewJSON []byte
	if rec.View != nil {
		if viewJSON, err = json.Marshal(rec.View); err != nil {
			return fmt.Errorf("encode view: %w", err)
		}
	}

	query := `
		INSERT INTO reports (report_id, session_id, title, created_at, report, view)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (report_id) DO UPDATE
		SET session_id = EXCLUDED.session_id,
		    title = EXCLUDED.title,
		    report = EXCLUDED.report,
		    view = EXCLUDED.view
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ReportID, rec.SessionID, rec.Title, rec.CreatedAt, reportJSON, viewJSON); err != nil {
		return fmt.Errorf("insert report %s: %w", rec.ReportID, err)
	}

	s.log.Debug("report stored", "report_id", rec.ReportID, "session_id", rec.SessionID)
	return nil
}

func (s *PGStore) Get(ctx context.Context, reportID string) (*Record, error) {
	query := `
		SELECT report_id, session_id, title, created_at, report, view
		FROM reports
		WHERE report_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, reportID))
}

func (s *PGStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT report_id, session_id, title, created_at, report, view
		FROM reports
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, reportID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired reports: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		reportJSON []byte
		viewJSON   []byte
	)
	err := row.Scan(&rec.ReportID, &rec.SessionID, &rec.Title, &rec.CreatedAt, &reportJSON, &viewJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}

	rec.Report = &report.Report{}
	if err := json.Unmarshal(reportJSON, rec.Report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", rec.ReportID, err)
	}
	if len(viewJSON) > 0 {
		rec.View = &assembly.ReportView{}
		if err := json.Unmarshal(viewJSON, rec.View); err != nil {
			return nil, fmt.Errorf("decode view %s: %w", rec.ReportID, err)
		}
	}
	return &rec, nil
}
