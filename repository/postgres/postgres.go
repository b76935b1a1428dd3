// Package postgres stores video requests in a hosted PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS video_requests (
    id TEXT PRIMARY KEY,
    owner_address TEXT NOT NULL,
    report_address TEXT NOT NULL,
    prompt TEXT NOT NULL,
    duration INTEGER NOT NULL,
    activity_type TEXT NOT NULL DEFAULT 'transactions',
    status TEXT NOT NULL,
    chain_id BIGINT NOT NULL DEFAULT 1,
    network TEXT NOT NULL DEFAULT '',
    balance TEXT NOT NULL DEFAULT '',
    transaction_count INTEGER NOT NULL DEFAULT 0,
    reports JSONB NOT NULL DEFAULT '[]',
    intro_text TEXT NOT NULL DEFAULT '',
    outro_text TEXT NOT NULL DEFAULT '',
    render_id TEXT NOT NULL DEFAULT '',
    video_url TEXT NOT NULL DEFAULT '',
    video_size BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_video_requests_owner ON video_requests(owner_address, created_at);
CREATE INDEX IF NOT EXISTS idx_video_requests_status ON video_requests(status, updated_at);
`

var (
	insertQuery = `INSERT INTO video_requests (` + repository.Columns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15, $16, $17, $18, $19, $20)`

	getQuery = `SELECT ` + repository.Columns + ` FROM video_requests WHERE id = $1`

	listQuery = `SELECT ` + repository.Columns + ` FROM video_requests
        ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	listByOwnerQuery = `SELECT ` + repository.Columns + ` FROM video_requests
        WHERE owner_address = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	updateQuery = `UPDATE video_requests SET
            report_address = $1, prompt = $2, duration = $3, activity_type = $4,
            chain_id = $5, network = $6, balance = $7, transaction_count = $8,
            reports = $9::jsonb, intro_text = $10, outro_text = $11, render_id = $12,
            video_url = $13, video_size = $14, error = $15, updated_at = $16
        WHERE id = $17`

	transitionQuery = `UPDATE video_requests SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4`

	completeQuery = `UPDATE video_requests SET
            balance = $1, transaction_count = $2, reports = $3::jsonb, intro_text = $4,
            outro_text = $5, error = '', status = $6, updated_at = $7
        WHERE id = $8 AND status = $9`

	staleQuery = `SELECT ` + repository.Columns + ` FROM video_requests
        WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`
)

type Config struct {
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string, cfg Config) (*sql.DB, error) {
	const op = "postgres.Open"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Internal(op, err, "failed to reach database")
	}
	return db, nil
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.VideoRepository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate creates the table and indexes if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.Internal("PostgresRepository.Migrate", err, "failed to apply schema")
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, video *models.VideoRequest) error {
	const op = "PostgresRepository.Create"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}

	now := r.now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, insertQuery,
		video.ID,
		video.OwnerAddress,
		video.ReportAddress,
		video.Prompt,
		video.Duration,
		string(video.ActivityType),
		string(video.Status),
		video.ChainID,
		video.Network,
		video.Balance,
		video.TransactionCount,
		reports,
		video.IntroText,
		video.OutroText,
		video.RenderID,
		video.VideoURL,
		video.VideoSize,
		video.Error,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return errors.Internal(op, err, "Failed to create video request")
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, id string) (*models.VideoRequest, error) {
	const op = "PostgresRepository.Find"

	video, err := repository.ScanVideo(r.db.QueryRowContext(ctx, getQuery, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(op, nil, "Video request not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query video request")
	}
	return video, nil
}

func (r *Repository) List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error) {
	params = params.Normalize()
	return r.query(ctx, "PostgresRepository.List", listQuery, params.Limit, params.Offset)
}

func (r *Repository) ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error) {
	params = params.Normalize()
	return r.query(ctx, "PostgresRepository.ListByOwner", listByOwnerQuery, owner, params.Limit, params.Offset)
}

func (r *Repository) FindStale(ctx context.Context, status models.Status, before time.Time) ([]*models.VideoRequest, error) {
	return r.query(ctx, "PostgresRepository.FindStale", staleQuery, string(status), before.UTC())
}

func (r *Repository) Save(ctx context.Context, video *models.VideoRequest) error {
	const op = "PostgresRepository.Save"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}
	video.UpdatedAt = r.now().UTC()

	res, err := r.db.ExecContext(ctx, updateQuery,
		video.ReportAddress,
		video.Prompt,
		video.Duration,
		string(video.ActivityType),
		video.ChainID,
		video.Network,
		video.Balance,
		video.TransactionCount,
		reports,
		video.IntroText,
		video.OutroText,
		video.RenderID,
		video.VideoURL,
		video.VideoSize,
		video.Error,
		video.UpdatedAt,
		video.ID,
	)
	if err != nil {
		return errors.Internal(op, err, "Failed to save video request")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Internal(op, err, "Failed to save video request")
	}
	if affected == 0 {
		return errors.NotFound(op, nil, "Video request not found")
	}
	return nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to models.Status) error {
	const op = "PostgresRepository.TransitionStatus"

	res, err := r.db.ExecContext(ctx, transitionQuery, string(to), r.now().UTC(), id, string(from))
	if err != nil {
		return errors.Internal(op, err, "Failed to update status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Internal(op, err, "Failed to update status")
	}
	if affected > 0 {
		return nil
	}

	current, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	return errors.Conflict(op, fmt.Sprintf("Cannot move request from %s to %s: status is %s", from, to, current.Status))
}

func (r *Repository) Complete(ctx context.Context, video *models.VideoRequest) error {
	const op = "PostgresRepository.Complete"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}
	now := r.now().UTC()

	res, err := r.db.ExecContext(ctx, completeQuery,
		video.Balance,
		video.TransactionCount,
		reports,
		video.IntroText,
		video.OutroText,
		string(models.StatusCompleted),
		now,
		video.ID,
		string(models.StatusGenerating),
	)
	if err != nil {
		return errors.Internal(op, err, "Failed to complete video request")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Internal(op, err, "Failed to complete video request")
	}
	if affected == 0 {
		current, err := r.Find(ctx, video.ID)
		if err != nil {
			return err
		}
		return errors.Conflict(op, fmt.Sprintf("Cannot complete request: status is %s", current.Status))
	}

	video.Status = models.StatusCompleted
	video.Error = ""
	video.UpdatedAt = now
	return nil
}

func (r *Repository) query(ctx context.Context, op, query string, args ...interface{}) ([]*models.VideoRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query video requests")
	}
	defer rows.Close()

	videos := []*models.VideoRequest{}
	for rows.Next() {
		video, err := repository.ScanVideo(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to scan video request")
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate video requests")
	}
	return videos, nil
}
