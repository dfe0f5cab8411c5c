package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BBbrighton/qr-suite/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store implements core.Store and core.Targets backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite DB at path and applies migrations.
// ":memory:" works because the pool is pinned to one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	_, _ = db.Exec("PRAGMA journal_mode = WAL;")
	_, _ = db.Exec("PRAGMA foreign_keys = ON;")

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

const linkColumns = `id, target_kind, target_type, target_name, address_mode, token, action, template,
  custom_url_prefix, extra_params, qr_url, target_url, redirect_url, value_content,
  include_label, label_text, status, expires_at, scan_count, last_scanned_at,
  last_scanned_by, last_scan_ip, created_at`

// Create inserts a link. Returns core.ErrConflict if the id or token is taken.
func (s *Store) Create(ctx context.Context, l *core.LinkRecord) error {
	params, err := json.Marshal(orEmpty(l.ExtraParams))
	if err != nil {
		return fmt.Errorf("encode extra params: %w", err)
	}
	const q = `
INSERT INTO qr_links(` + linkColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err = s.db.ExecContext(ctx, q,
		l.ID, l.TargetKind, l.TargetType, l.TargetName, l.AddressMode, nullString(l.Token),
		l.Action, l.Template, l.CustomURLPrefix, string(params), l.QRURL, l.TargetURL,
		l.RedirectURL, l.ValueContent, l.IncludeLabel, l.LabelText, l.Status,
		nanos(l.ExpiresAt), l.ScanCount, nanos(l.LastScannedAt), l.LastScannedBy,
		l.LastScanIP, l.CreatedAt.UTC().UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*core.LinkRecord, error) {
	return s.getOne(ctx, `SELECT `+linkColumns+` FROM qr_links WHERE id = ? LIMIT 1;`, id)
}

func (s *Store) GetByToken(ctx context.Context, token string) (*core.LinkRecord, error) {
	return s.getOne(ctx, `SELECT `+linkColumns+` FROM qr_links WHERE token = ? LIMIT 1;`, token)
}

// LatestForTarget orders by creation time and breaks ties by insert order.
func (s *Store) LatestForTarget(ctx context.Context, targetType, targetName string) (*core.LinkRecord, error) {
	const q = `
SELECT ` + linkColumns + `
FROM qr_links
WHERE target_type = ? AND target_name = ?
ORDER BY created_at DESC, seq DESC
LIMIT 1;`
	return s.getOne(ctx, q, targetType, targetName)
}

func (s *Store) getOne(ctx context.Context, q string, args ...any) (*core.LinkRecord, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status core.Status, from ...core.Status) (bool, error) {
	q := `UPDATE qr_links SET status = ? WHERE id = ?`
	args := []any{status, id}
	if len(from) > 0 {
		q += ` AND status IN (?` + strings.Repeat(`, ?`, len(from)-1) + `)`
		for _, f := range from {
			args = append(args, f)
		}
	}
	res, err := s.db.ExecContext(ctx, q+";", args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM qr_links WHERE id = ?;`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, core.ErrNotFound
	}
	return false, err
}

// RecordScan updates the counters and appends the log row in one transaction.
func (s *Store) RecordScan(ctx context.Context, e *core.ScanLogEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	at := e.ScannedAt.UTC().UnixNano()
	res, err := tx.ExecContext(ctx, `
UPDATE qr_links
SET scan_count = scan_count + 1, last_scanned_at = ?, last_scanned_by = ?, last_scan_ip = ?
WHERE id = ?;`, at, e.ScannedBy, e.IP, e.LinkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO scan_log(id, link_id, scanned_by, scanned_at, ip, user_agent, target_type, target_name, destination)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.LinkID, e.ScannedBy, at, e.IP, e.UserAgent, e.TargetType, e.TargetName, e.Destination)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListScans(ctx context.Context, linkID string, limit int) ([]*core.ScanLogEntry, error) {
	q := `
SELECT id, link_id, scanned_by, scanned_at, ip, user_agent, target_type, target_name, destination
FROM scan_log
WHERE link_id = ?
ORDER BY scanned_at DESC, rowid DESC`
	args := []any{linkID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.ScanLogEntry
	for rows.Next() {
		var e core.ScanLogEntry
		var at int64
		if err := rows.Scan(&e.ID, &e.LinkID, &e.ScannedBy, &at, &e.IP, &e.UserAgent,
			&e.TargetType, &e.TargetName, &e.Destination); err != nil {
			return nil, err
		}
		e.ScannedAt = time.Unix(0, at).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) QueryByStatusAndExpiry(ctx context.Context, status core.Status, before time.Time) ([]*core.LinkRecord, error) {
	const q = `
SELECT ` + linkColumns + `
FROM qr_links
WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
ORDER BY expires_at;`
	rows, err := s.db.QueryContext(ctx, q, status, before.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.LinkRecord
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// PutRecord inserts or replaces a target record and its readable fields.
func (s *Store) PutRecord(ctx context.Context, targetType, name string, fields map[string]string) error {
	b, err := json.Marshal(orEmpty(fields))
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	const q = `
INSERT INTO records(target_type, name, fields, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(target_type, name) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at;`
	_, err = s.db.ExecContext(ctx, q, targetType, name, string(b), time.Now().UTC().UnixNano())
	return err
}

func (s *Store) Exists(ctx context.Context, targetType, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE target_type = ? AND name = ? LIMIT 1;`, targetType, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) ReadField(ctx context.Context, targetType, name, field string) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE target_type = ? AND name = ? LIMIT 1;`, targetType, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, core.ErrTargetNotFound
	}
	if err != nil {
		return "", false, err
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", false, fmt.Errorf("decode fields: %w", err)
	}
	v, ok := fields[field]
	return v, ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*core.LinkRecord, error) {
	var (
		l                core.LinkRecord
		token            sql.NullString
		params           string
		expires, scanned sql.NullInt64
		created          int64
	)
	err := row.Scan(&l.ID, &l.TargetKind, &l.TargetType, &l.TargetName, &l.AddressMode, &token,
		&l.Action, &l.Template, &l.CustomURLPrefix, &params, &l.QRURL, &l.TargetURL,
		&l.RedirectURL, &l.ValueContent, &l.IncludeLabel, &l.LabelText, &l.Status,
		&expires, &l.ScanCount, &scanned, &l.LastScannedBy, &l.LastScanIP, &created)
	if err != nil {
		return nil, err
	}
	l.Token = token.String
	l.CreatedAt = time.Unix(0, created).UTC()
	l.ExpiresAt = fromNanos(expires)
	l.LastScannedAt = fromNanos(scanned)
	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &l.ExtraParams); err != nil {
			return nil, fmt.Errorf("decode extra params: %w", err)
		}
	}
	return &l, nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Compile-time checks.
var (
	_ core.Store   = (*Store)(nil)
	_ core.Targets = (*Store)(nil)
)
