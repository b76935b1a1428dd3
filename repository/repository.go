// Package repository defines persistence for video requests.
package repository

import (
	"context"
	"time"

	"github.com/walletreel/walletreel/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListParams struct {
	Limit  int
	Offset int
}

// Normalize clamps the page size and offset into their allowed ranges.
func (p ListParams) Normalize() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// VideoRepository stores video requests. Save never changes the status;
// status moves only through TransitionStatus, which fails with a conflict
// when the stored status is not from.
type VideoRepository interface {
	Create(ctx context.Context, video *models.VideoRequest) error
	Find(ctx context.Context, id string) (*models.VideoRequest, error)
	List(ctx context.Context, params ListParams) ([]*models.VideoRequest, error)
	ListByOwner(ctx context.Context, owner string, params ListParams) ([]*models.VideoRequest, error)
	Save(ctx context.Context, video *models.VideoRequest) error
	TransitionStatus(ctx context.Context, id string, from, to models.Status) error
	// Complete stores the report fields of a generating request and moves
	// it to completed in one conditional update.
	Complete(ctx context.Context, video *models.VideoRequest) error
	FindStale(ctx context.Context, status models.Status, before time.Time) ([]*models.VideoRequest, error)
	Close() error
}
