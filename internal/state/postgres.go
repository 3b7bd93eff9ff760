package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS notice_orgs (
	org                TEXT PRIMARY KEY,
	initialized        BOOLEAN NOT NULL DEFAULT FALSE,
	last_html_alert_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS notice_pdfs (
	org           TEXT NOT NULL,
	url           TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (org, url)
);
CREATE TABLE IF NOT EXISTS notice_pages (
	org           TEXT NOT NULL,
	url           TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_alert_at TIMESTAMPTZ,
	linked_pdf    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org, url)
)`

// PostgresRepository keeps the snapshot in PostgreSQL so several hosts can
// share one history.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and ensures the tables exist.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating state tables: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}

	rows, err := r.pool.Query(ctx, `SELECT org, initialized, last_html_alert_at FROM notice_orgs`)
	if err != nil {
		return nil, fmt.Errorf("loading orgs: %w", err)
	}
	for rows.Next() {
		st := &OrgState{}
		if err := rows.Scan(&st.Org, &st.Initialized, &st.LastHTMLAlertAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning org: %w", err)
		}
		st.normalize(st.Org)
		snap[st.Org] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading orgs: %w", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT org, url, content_hash, first_seen_at FROM notice_pdfs`)
	if err != nil {
		return nil, fmt.Errorf("loading pdfs: %w", err)
	}
	for rows.Next() {
		var org string
		p := &ObservedPDF{}
		if err := rows.Scan(&org, &p.URL, &p.ContentHash, &p.FirstSeenAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning pdf: %w", err)
		}
		orgState(snap, org).PDFs[p.URL] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading pdfs: %w", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT org, url, content_hash, first_seen_at, last_alert_at, linked_pdf FROM notice_pages`)
	if err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}
	for rows.Next() {
		var org string
		p := &ObservedPage{}
		if err := rows.Scan(&org, &p.URL, &p.ContentHash, &p.FirstSeenAt, &p.LastAlertAt, &p.LinkedPDF); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		orgState(snap, org).Pages[p.URL] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}

	return snap, nil
}

// Save queues every upsert in a single batch inside one transaction.
func (r *PostgresRepository) Save(ctx context.Context, snap Snapshot) error {
	batch := &pgx.Batch{}
	for _, org := range snap.Orgs() {
		st := snap[org]
		batch.Queue(`INSERT INTO notice_orgs (org, initialized, last_html_alert_at) VALUES ($1, $2, $3)
			ON CONFLICT (org) DO UPDATE SET initialized = $2, last_html_alert_at = $3`,
			org, st.Initialized, utcPtr(st.LastHTMLAlertAt))
		for _, p := range st.PDFs {
			batch.Queue(`INSERT INTO notice_pdfs (org, url, content_hash, first_seen_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (org, url) DO UPDATE SET content_hash = $3, first_seen_at = $4`,
				org, p.URL, p.ContentHash, p.FirstSeenAt.UTC())
		}
		for _, p := range st.Pages {
			batch.Queue(`INSERT INTO notice_pages (org, url, content_hash, first_seen_at, last_alert_at, linked_pdf) VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (org, url) DO UPDATE SET content_hash = $3, first_seen_at = $4, last_alert_at = $5, linked_pdf = $6`,
				org, p.URL, p.ContentHash, p.FirstSeenAt.UTC(), utcPtr(p.LastAlertAt), p.LinkedPDF)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning state tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving state batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
