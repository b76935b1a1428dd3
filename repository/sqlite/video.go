package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
)

type Repository struct {
	db  *DB
	now func() time.Time
}

var _ repository.VideoRepository = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, video *models.VideoRequest) error {
	const op = "SQLiteRepository.Create"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}

	now := r.now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.CreatedAt = video.CreatedAt.UTC()
	video.UpdatedAt = now

	err = withRetry(ctx, r.db.config, func() error {
		_, err := r.db.statements.insert.ExecContext(ctx,
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
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to create video request")
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, id string) (*models.VideoRequest, error) {
	const op = "SQLiteRepository.Find"

	video, err := repository.ScanVideo(r.db.statements.get.QueryRowContext(ctx, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(op, nil, "Video request not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query video request")
	}
	return video, nil
}

func (r *Repository) List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error) {
	const op = "SQLiteRepository.List"

	params = params.Normalize()
	rows, err := r.db.statements.list.QueryContext(ctx, params.Limit, params.Offset)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list video requests")
	}
	return collect(op, rows)
}

func (r *Repository) ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error) {
	const op = "SQLiteRepository.ListByOwner"

	params = params.Normalize()
	rows, err := r.db.statements.listByOwner.QueryContext(ctx, owner, params.Limit, params.Offset)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list video requests")
	}
	return collect(op, rows)
}

func (r *Repository) Save(ctx context.Context, video *models.VideoRequest) error {
	const op = "SQLiteRepository.Save"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}
	video.UpdatedAt = r.now().UTC()

	var affected int64
	err = withRetry(ctx, r.db.config, func() error {
		res, err := r.db.statements.update.ExecContext(ctx,
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
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save video request")
	}
	if affected == 0 {
		return errors.NotFound(op, nil, "Video request not found")
	}
	return nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to models.Status) error {
	const op = "SQLiteRepository.TransitionStatus"

	var affected int64
	err := withRetry(ctx, r.db.config, func() error {
		res, err := r.db.statements.transition.ExecContext(ctx, string(to), r.now().UTC(), id, string(from))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
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
	const op = "SQLiteRepository.Complete"

	reports, err := repository.EncodeReports(video.Reports)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode reports")
	}
	now := r.now().UTC()

	var affected int64
	err = withRetry(ctx, r.db.config, func() error {
		res, err := r.db.statements.complete.ExecContext(ctx,
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
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
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

func (r *Repository) FindStale(ctx context.Context, status models.Status, before time.Time) ([]*models.VideoRequest, error) {
	const op = "SQLiteRepository.FindStale"

	rows, err := r.db.statements.stale.QueryContext(ctx, string(status), before.UTC())
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query stale requests")
	}
	return collect(op, rows)
}

func collect(op string, rows *sql.Rows) ([]*models.VideoRequest, error) {
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
