package repo

import (
    "context"
    "errors"
    "time"

    "github.com/dfliao/chat-newbiz/internal/config"
    "github.com/dfliao/chat-newbiz/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

// Open connects the audit-log store. An empty DSN is not an error: the
// bridge runs stateless and callers get a nil *DB.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*DB, error) {
    if cfg.DBDSN == "" { return nil, nil }
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { return nil, err }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { pool.Close(); return nil, err }
    return &DB{Pool: pool, log: log}, nil
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// Enabled reports whether an audit store is actually connected.
func (r *Repository) Enabled() bool { return r != nil && r.db != nil }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

func (r *Repository) InsertRun(ctx context.Context, rec domain.RunRecord) (int64, error) {
    const q = `
        INSERT INTO webhook_runs(channel_id, username, kind, redmine_status,
            parent_issue_id, subtasks_created, ack_status, at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
    var id int64
    row := r.db.Pool.QueryRow(ctx, q, rec.ChannelID, rec.Username, rec.Kind, rec.RedmineStatus,
        rec.ParentIssueID, rec.SubtasksCreated, rec.AckStatus, rec.At)
    if err := row.Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) LastRun(ctx context.Context) (*domain.RunRecord, error) {
    const q = `
        SELECT id, channel_id, username, kind, redmine_status,
            parent_issue_id, subtasks_created, ack_status, at
        FROM webhook_runs ORDER BY id DESC LIMIT 1`
    var rec domain.RunRecord
    row := r.db.Pool.QueryRow(ctx, q)
    err := row.Scan(&rec.ID, &rec.ChannelID, &rec.Username, &rec.Kind, &rec.RedmineStatus,
        &rec.ParentIssueID, &rec.SubtasksCreated, &rec.AckStatus, &rec.At)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &rec, nil
}

// CountLeadsSince counts successfully created business-lead parents for the
// weekly digest window.
func (r *Repository) CountLeadsSince(ctx context.Context, since time.Time) (int, error) {
    const q = `
        SELECT COUNT(*) FROM webhook_runs
        WHERE kind = 'business_lead' AND redmine_status BETWEEN 200 AND 299 AND at >= $1`
    var n int
    if err := r.db.Pool.QueryRow(ctx, q, since).Scan(&n); err != nil { return 0, err }
    return n, nil
}
