package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"embark/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store реализует storage.Store поверх SQLite.
type Store struct {
	db *sql.DB
}

// Open инициализирует соединение и выполняет миграции.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("migration init: %w", err)
	}
	// m.Close закрыл бы и db, закрываем только источник
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// SaveCommand сохраняет выполненную команду.
func (s *Store) SaveCommand(ctx context.Context, rec storage.CommandRecord) error {
	ts := rec.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO commands(request_id, source, subject, command, output, error, status, exit, duration_ns, ts)
VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.RequestID, rec.Source, rec.Subject, rec.Command, rec.Output, rec.Error, rec.Status, rec.Exit, int64(rec.Duration), ts)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// QueryHistory возвращает историю по фильтрам, новые записи первыми.
func (s *Store) QueryHistory(ctx context.Context, q storage.HistoryQuery) ([]storage.CommandRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	from := q.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := q.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_id, source, COALESCE(subject, ''), command, COALESCE(output, ''), COALESCE(error, ''), status, exit, duration_ns, ts
FROM commands
WHERE ts >= ? AND ts <= ? AND (? = '' OR source = ?) AND (? = '' OR subject = ?)
ORDER BY ts DESC, id DESC
LIMIT ?`, from, to, q.Source, q.Source, q.Subject, q.Subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]storage.CommandRecord, 0, limit)
	for rows.Next() {
		var rec storage.CommandRecord
		var ts string
		var duration int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Source, &rec.Subject, &rec.Command, &rec.Output,
			&rec.Error, &rec.Status, &rec.Exit, &duration, &ts); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		parsedTS, err := parseSQLiteTS(ts)
		if err != nil {
			return nil, fmt.Errorf("parse command timestamp: %w", err)
		}
		rec.TS = parsedTS
		rec.Duration = time.Duration(duration)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// Prune удаляет записи старше before и возвращает их число.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE ts < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}

func parseSQLiteTS(v string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported sqlite time format: %q", v)
}

// Write реализует storage.HistoryWriter.
func (s *Store) Write(ctx context.Context, rec storage.CommandRecord) error {
	return s.SaveCommand(ctx, rec)
}

// Close закрывает соединение.
func (s *Store) Close() error {
	return s.db.Close()
}
