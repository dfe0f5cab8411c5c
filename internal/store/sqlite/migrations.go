package sqlite

import (
	"database/sql"
)

// applyMigrations runs schema initialization for the SQLite database.
// Times are stored as unix nanoseconds so range comparisons stay numeric.
func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS qr_links (
  seq               INTEGER PRIMARY KEY AUTOINCREMENT,
  id                TEXT    NOT NULL UNIQUE,
  target_kind       TEXT    NOT NULL,
  target_type       TEXT    NOT NULL,
  target_name       TEXT    NOT NULL,
  address_mode      TEXT    NOT NULL DEFAULT '',
  token             TEXT    NULL UNIQUE,
  action            TEXT    NOT NULL DEFAULT '',
  template          TEXT    NOT NULL DEFAULT '',
  custom_url_prefix TEXT    NOT NULL DEFAULT '',
  extra_params      TEXT    NOT NULL DEFAULT '{}',
  qr_url            TEXT    NOT NULL DEFAULT '',
  target_url        TEXT    NOT NULL DEFAULT '',
  redirect_url      TEXT    NOT NULL DEFAULT '',
  value_content     TEXT    NOT NULL DEFAULT '',
  include_label     INTEGER NOT NULL DEFAULT 0,
  label_text        TEXT    NOT NULL DEFAULT '',
  status            TEXT    NOT NULL,
  expires_at        INTEGER NULL,
  scan_count        INTEGER NOT NULL DEFAULT 0,
  last_scanned_at   INTEGER NULL,
  last_scanned_by   TEXT    NOT NULL DEFAULT '',
  last_scan_ip      TEXT    NOT NULL DEFAULT '',
  created_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_qr_links_target ON qr_links(target_type, target_name, created_at);
CREATE INDEX IF NOT EXISTS idx_qr_links_status_expiry ON qr_links(status, expires_at);

CREATE TABLE IF NOT EXISTS scan_log (
  id          TEXT    PRIMARY KEY,
  link_id     TEXT    NOT NULL REFERENCES qr_links(id),
  scanned_by  TEXT    NOT NULL,
  scanned_at  INTEGER NOT NULL,
  ip          TEXT    NOT NULL DEFAULT '',
  user_agent  TEXT    NOT NULL DEFAULT '',
  target_type TEXT    NOT NULL,
  target_name TEXT    NOT NULL,
  destination TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scan_log_link ON scan_log(link_id, scanned_at);

CREATE TABLE IF NOT EXISTS records (
  target_type TEXT    NOT NULL,
  name        TEXT    NOT NULL,
  fields      TEXT    NOT NULL DEFAULT '{}',
  updated_at  INTEGER NOT NULL,
  PRIMARY KEY (target_type, name)
);
`
