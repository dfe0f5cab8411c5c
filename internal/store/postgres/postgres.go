// Package postgres stores links in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BBbrighton/qr-suite/internal/core"
)

const uniqueViolation = "23505"

// Store implements core.Store and core.Targets on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and makes sure the schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the link, scan log and record tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS qr_links (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	target_kind TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_name TEXT NOT NULL,
	address_mode TEXT NOT NULL DEFAULT '',
	token TEXT UNIQUE,
	action TEXT NOT NULL DEFAULT '',
	template TEXT NOT NULL DEFAULT '',
	custom_url_prefix TEXT NOT NULL DEFAULT '',
	extra_params JSONB NOT NULL DEFAULT '{}',
	qr_url TEXT NOT NULL DEFAULT '',
	target_url TEXT NOT NULL DEFAULT '',
	redirect_url TEXT NOT NULL DEFAULT '',
	value_content TEXT NOT NULL DEFAULT '',
	include_label BOOLEAN NOT NULL DEFAULT FALSE,
	label_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	expires_at TIMESTAMPTZ,
	scan_count BIGINT NOT NULL DEFAULT 0,
	last_scanned_at TIMESTAMPTZ,
	last_scanned_by TEXT NOT NULL DEFAULT '',
	last_scan_ip TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_qr_links_target ON qr_links(target_type, target_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_qr_links_status_expiry ON qr_links(status, expires_at);
CREATE TABLE IF NOT EXISTS scan_log (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	link_id TEXT NOT NULL REFERENCES qr_links(id),
	scanned_by TEXT NOT NULL,
	scanned_at TIMESTAMPTZ NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	target_type TEXT NOT NULL,
	target_name TEXT NOT NULL,
	destination TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_scan_log_link ON scan_log(link_id, scanned_at DESC);
CREATE TABLE IF NOT EXISTS records (
	target_type TEXT NOT NULL,
	name TEXT NOT NULL,
	fields JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (target_type, name)
);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const linkColumns = `id, target_kind, target_type, target_name, address_mode, token, action, template,
	custom_url_prefix, extra_params, qr_url, target_url, redirect_url, value_content,
	include_label, label_text, status, expires_at, scan_count, last_scanned_at,
	last_scanned_by, last_scan_ip, created_at`

func (s *Store) Create(ctx context.Context, l *core.LinkRecord) error {
	params, err := encodeFields(l.ExtraParams)
	if err != nil {
		return err
	}
	var token *string
	if l.Token != "" {
		token = &l.Token
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO qr_links (`+linkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, l.ID, string(l.TargetKind), l.TargetType, l.TargetName, string(l.AddressMode), token,
		l.Action, l.Template, l.CustomURLPrefix, params, l.QRURL, l.TargetURL,
		l.RedirectURL, l.ValueContent, l.IncludeLabel, l.LabelText, string(l.Status),
		utc(l.ExpiresAt), l.ScanCount, utc(l.LastScannedAt), l.LastScannedBy, l.LastScanIP,
		l.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrConflict
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*core.LinkRecord, error) {
	return s.getOne(ctx, `SELECT `+linkColumns+` FROM qr_links WHERE id=$1`, id)
}

func (s *Store) GetByToken(ctx context.Context, token string) (*core.LinkRecord, error) {
	return s.getOne(ctx, `SELECT `+linkColumns+` FROM qr_links WHERE token=$1`, token)
}

func (s *Store) LatestForTarget(ctx context.Context, targetType, targetName string) (*core.LinkRecord, error) {
	return s.getOne(ctx, `
		SELECT `+linkColumns+` FROM qr_links
		WHERE target_type=$1 AND target_name=$2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, targetType, targetName)
}

func (s *Store) getOne(ctx context.Context, q string, args ...any) (*core.LinkRecord, error) {
	l, err := scanLink(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("select link: %w", err)
	}
	return l, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status core.Status, from ...core.Status) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if len(from) == 0 {
		tag, err = s.pool.Exec(ctx, `UPDATE qr_links SET status=$1 WHERE id=$2`, string(status), id)
	} else {
		allowed := make([]string, len(from))
		for i, f := range from {
			allowed[i] = string(f)
		}
		tag, err = s.pool.Exec(ctx,
			`UPDATE qr_links SET status=$1 WHERE id=$2 AND status = ANY($3)`, string(status), id, allowed)
	}
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qr_links WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	if !exists {
		return false, core.ErrNotFound
	}
	return false, nil
}

// RecordScan updates the counters and appends the log row in one transaction.
func (s *Store) RecordScan(ctx context.Context, e *core.ScanLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	at := e.ScannedAt.UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE qr_links
		SET scan_count = scan_count + 1, last_scanned_at=$1, last_scanned_by=$2, last_scan_ip=$3
		WHERE id=$4
	`, at, e.ScannedBy, e.IP, e.LinkID)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO scan_log (id, link_id, scanned_by, scanned_at, ip, user_agent, target_type, target_name, destination)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.LinkID, e.ScannedBy, at, e.IP, e.UserAgent, e.TargetType, e.TargetName, e.Destination)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) ListScans(ctx context.Context, linkID string, limit int) ([]*core.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, link_id, scanned_by, scanned_at, ip, user_agent, target_type, target_name, destination
		FROM scan_log WHERE link_id=$1
		ORDER BY scanned_at DESC, seq DESC
		LIMIT $2
	`, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("select scans: %w", err)
	}
	defer rows.Close()

	var out []*core.ScanLogEntry
	for rows.Next() {
		var e core.ScanLogEntry
		if err := rows.Scan(&e.ID, &e.LinkID, &e.ScannedBy, &e.ScannedAt, &e.IP, &e.UserAgent,
			&e.TargetType, &e.TargetName, &e.Destination); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.ScannedAt = e.ScannedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) QueryByStatusAndExpiry(ctx context.Context, status core.Status, before time.Time) ([]*core.LinkRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+linkColumns+` FROM qr_links
		WHERE status=$1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at
	`, string(status), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("select expiring links: %w", err)
	}
	defer rows.Close()

	var out []*core.LinkRecord
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// PutRecord inserts or replaces a target record and its readable fields.
func (s *Store) PutRecord(ctx context.Context, targetType, name string, fields map[string]string) error {
	b, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (target_type, name, fields, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (target_type, name) DO UPDATE SET fields=EXCLUDED.fields, updated_at=EXCLUDED.updated_at
	`, targetType, name, b, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, targetType, name string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE target_type=$1 AND name=$2)`, targetType, name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return ok, nil
}

func (s *Store) ReadField(ctx context.Context, targetType, name, field string) (string, bool, error) {
	var v *string
	err := s.pool.QueryRow(ctx,
		`SELECT fields->>$3 FROM records WHERE target_type=$1 AND name=$2`, targetType, name, field).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, core.ErrTargetNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("read field: %w", err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func scanLink(row pgx.Row) (*core.LinkRecord, error) {
	var (
		l                    core.LinkRecord
		kind, mode, status   string
		token                *string
		params               []byte
		expires, lastScanned *time.Time
	)
	err := row.Scan(&l.ID, &kind, &l.TargetType, &l.TargetName, &mode, &token,
		&l.Action, &l.Template, &l.CustomURLPrefix, &params, &l.QRURL, &l.TargetURL,
		&l.RedirectURL, &l.ValueContent, &l.IncludeLabel, &l.LabelText, &status,
		&expires, &l.ScanCount, &lastScanned, &l.LastScannedBy, &l.LastScanIP, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.TargetKind = core.TargetKind(kind)
	l.AddressMode = core.AddressMode(mode)
	l.Status = core.Status(status)
	if token != nil {
		l.Token = *token
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.ExpiresAt = utc(expires)
	l.LastScannedAt = utc(lastScanned)
	if len(params) > 0 {
		var m map[string]string
		if err := json.Unmarshal(params, &m); err != nil {
			return nil, fmt.Errorf("decode extra params: %w", err)
		}
		if len(m) > 0 {
			l.ExtraParams = m
		}
	}
	return &l, nil
}

func encodeFields(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Targets = (*Store)(nil)
)

// Truncate empties every table. Used by integration tests against a scratch database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE scan_log, qr_links, records`)
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
