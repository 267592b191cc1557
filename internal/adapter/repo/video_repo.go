package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/sqlinline"
)

// VideoRepositoryPG implements domain.VideoRepository.
type VideoRepositoryPG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewVideoRepository creates a new video repository backed by PostgreSQL.
func NewVideoRepository(sql infra.SQLExecutor) *VideoRepositoryPG {
	return &VideoRepositoryPG{sql: sql, now: time.Now}
}

// Create inserts a new video record. An empty ID and a zero CreatedAt are
// assigned here.
func (r *VideoRepositoryPG) Create(ctx context.Context, v *domain.Video) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now().UTC()
	}
	v.UpdatedAt = v.CreatedAt
	_, err := r.sql.Exec(ctx, sqlinline.QInsertVideo,
		v.ID,
		v.OwnerID,
		v.Topic,
		v.Style,
		v.DurationBucket,
		v.AspectRatio,
		v.Locale,
		v.Script,
		v.AudioURL,
		v.VideoURL,
		string(v.Status),
		v.Duration,
		v.Attempt,
		v.AssemblyRef,
		v.FailureReason,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetByID fetches a video by its identifier.
func (r *VideoRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanVideo(r.sql.QueryRow(ctx, sqlinline.QSelectVideoByID, id))
}

// Update applies the patch while the stored status still equals expect.
func (r *VideoRepositoryPG) Update(ctx context.Context, id string, expect domain.VideoStatus, p domain.VideoPatch) (*domain.Video, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	if err := p.Check(expect); err != nil {
		return nil, err
	}
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	v, err := scanVideo(r.sql.QueryRow(ctx, sqlinline.QUpdateVideo,
		id,
		string(expect),
		status,
		p.Script,
		p.AudioURL,
		p.VideoURL,
		p.Attempt,
		p.AssemblyRef,
		p.GeneratingSince,
		p.ClearSince,
		p.FailureReason,
	))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("update video %s: %w", id, err)
	}
	current, lookupErr := r.GetByID(ctx, id)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return nil, &domain.StateError{VideoID: id, Status: current.Status, Want: []domain.VideoStatus{expect}}
}

// ListByOwner returns the newest videos of a user.
func (r *VideoRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Video, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListVideosByOwner, ownerID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// ListByStatus returns videos currently in the given status, oldest first.
// A limit <= 0 returns every match.
func (r *VideoRepositoryPG) ListByStatus(ctx context.Context, status domain.VideoStatus, limit int) ([]domain.Video, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListVideosByStatus, string(status), limitArg(limit))
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// limitArg maps a non-positive limit to NULL; "limit null" is unbounded
// while "limit 0" matches nothing.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func collectVideos(rows pgx.Rows) ([]domain.Video, error) {
	defer rows.Close()
	var items []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var v domain.Video
	var status string
	if err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.Topic,
		&v.Style,
		&v.DurationBucket,
		&v.AspectRatio,
		&v.Locale,
		&v.Script,
		&v.AudioURL,
		&v.VideoURL,
		&status,
		&v.Duration,
		&v.Attempt,
		&v.AssemblyRef,
		&v.GeneratingSince,
		&v.FailureReason,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.Status = domain.VideoStatus(status)
	return &v, nil
}

var _ domain.VideoRepository = (*VideoRepositoryPG)(nil)
