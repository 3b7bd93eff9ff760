package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS orgs (
	org                TEXT PRIMARY KEY,
	initialized        INTEGER NOT NULL DEFAULT 0,
	last_html_alert_at TEXT
);
CREATE TABLE IF NOT EXISTS pdfs (
	org           TEXT NOT NULL,
	url           TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	PRIMARY KEY (org, url)
);
CREATE TABLE IF NOT EXISTS pages (
	org           TEXT NOT NULL,
	url           TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	last_alert_at TEXT,
	linked_pdf    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org, url)
);`

// SQLiteRepository keeps the snapshot in a SQLite database, one row per
// org and per observed artifact.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at dbPath and ensures
// the tables exist.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state tables: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Load reads every org with its artifacts.
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}

	rows, err := r.db.QueryContext(ctx, "SELECT org, initialized, last_html_alert_at FROM orgs")
	if err != nil {
		return nil, fmt.Errorf("loading orgs: %w", err)
	}
	for rows.Next() {
		var (
			org         string
			initialized int
			lastAlert   sql.NullString
		)
		if err := rows.Scan(&org, &initialized, &lastAlert); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning org: %w", err)
		}
		st := NewOrgState(org)
		st.Initialized = initialized != 0
		if st.LastHTMLAlertAt, err = parseNullTime(lastAlert); err != nil {
			rows.Close()
			return nil, fmt.Errorf("org %s: %w", org, err)
		}
		snap[org] = st
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("loading orgs: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, "SELECT org, url, content_hash, first_seen_at FROM pdfs")
	if err != nil {
		return nil, fmt.Errorf("loading pdfs: %w", err)
	}
	for rows.Next() {
		var org, firstSeen string
		p := &ObservedPDF{}
		if err := rows.Scan(&org, &p.URL, &p.ContentHash, &firstSeen); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning pdf: %w", err)
		}
		if p.FirstSeenAt, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			rows.Close()
			return nil, fmt.Errorf("pdf %s: %w", p.URL, err)
		}
		orgState(snap, org).PDFs[p.URL] = p
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("loading pdfs: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, "SELECT org, url, content_hash, first_seen_at, last_alert_at, linked_pdf FROM pages")
	if err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}
	for rows.Next() {
		var (
			org, firstSeen string
			lastAlert      sql.NullString
		)
		p := &ObservedPage{}
		if err := rows.Scan(&org, &p.URL, &p.ContentHash, &firstSeen, &lastAlert, &p.LinkedPDF); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		if p.FirstSeenAt, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			rows.Close()
			return nil, fmt.Errorf("page %s: %w", p.URL, err)
		}
		if p.LastAlertAt, err = parseNullTime(lastAlert); err != nil {
			rows.Close()
			return nil, fmt.Errorf("page %s: %w", p.URL, err)
		}
		orgState(snap, org).Pages[p.URL] = p
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}

	return snap, nil
}

// Save upserts every row of snap in one transaction. State only grows, so
// rows absent from snap are left alone.
func (r *SQLiteRepository) Save(ctx context.Context, snap Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning state tx: %w", err)
	}
	defer tx.Rollback()

	for _, org := range snap.Orgs() {
		st := snap[org]
		_, err := tx.ExecContext(ctx, `INSERT INTO orgs (org, initialized, last_html_alert_at) VALUES (?, ?, ?)
			ON CONFLICT(org) DO UPDATE SET initialized = excluded.initialized, last_html_alert_at = excluded.last_html_alert_at`,
			org, boolInt(st.Initialized), formatNullTime(st.LastHTMLAlertAt))
		if err != nil {
			return fmt.Errorf("saving org %s: %w", org, err)
		}
		for _, p := range st.PDFs {
			_, err := tx.ExecContext(ctx, `INSERT INTO pdfs (org, url, content_hash, first_seen_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(org, url) DO UPDATE SET content_hash = excluded.content_hash, first_seen_at = excluded.first_seen_at`,
				org, p.URL, p.ContentHash, p.FirstSeenAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("saving pdf %s: %w", p.URL, err)
			}
		}
		for _, p := range st.Pages {
			_, err := tx.ExecContext(ctx, `INSERT INTO pages (org, url, content_hash, first_seen_at, last_alert_at, linked_pdf) VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(org, url) DO UPDATE SET content_hash = excluded.content_hash, first_seen_at = excluded.first_seen_at,
					last_alert_at = excluded.last_alert_at, linked_pdf = excluded.linked_pdf`,
				org, p.URL, p.ContentHash, p.FirstSeenAt.UTC().Format(time.RFC3339Nano),
				formatNullTime(p.LastAlertAt), p.LinkedPDF)
			if err != nil {
				return fmt.Errorf("saving page %s: %w", p.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func orgState(snap Snapshot, org string) *OrgState {
	st, ok := snap[org]
	if !ok {
		st = NewOrgState(org)
		snap[org] = st
	}
	return st
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
