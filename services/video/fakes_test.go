package video

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/explorer"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/services/report"
)

// memoryRepo mirrors the SQL repositories: Save never touches status while
// TransitionStatus and Complete are conditional on the current status.
type memoryRepo struct {
	mu     sync.Mutex
	videos map[string]models.VideoRequest
	now    func() time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{videos: map[string]models.VideoRequest{}, now: time.Now}
}

func (r *memoryRepo) put(v models.VideoRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[v.ID] = v
}

func (r *memoryRepo) Create(ctx context.Context, video *models.VideoRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[video.ID]; ok {
		return errors.Internal("memoryRepo.Create", nil, "duplicate id")
	}
	now := r.now()
	video.CreatedAt, video.UpdatedAt = now, now
	r.videos[video.ID] = *video
	return nil
}

func (r *memoryRepo) Find(ctx context.Context, id string) (*models.VideoRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, errors.NotFound("memoryRepo.Find", nil, "Video request not found")
	}
	return &v, nil
}

func (r *memoryRepo) list(match func(models.VideoRequest) bool, params repository.ListParams) []*models.VideoRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.VideoRequest{}
	for _, v := range r.videos {
		if match(v) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	params = params.Normalize()
	if params.Offset >= len(out) {
		return []*models.VideoRequest{}
	}
	out = out[params.Offset:]
	if len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out
}

func (r *memoryRepo) List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error) {
	return r.list(func(models.VideoRequest) bool { return true }, params), nil
}

func (r *memoryRepo) ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error) {
	return r.list(func(v models.VideoRequest) bool { return v.OwnerAddress == owner }, params), nil
}

func (r *memoryRepo) Save(ctx context.Context, video *models.VideoRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.videos[video.ID]
	if !ok {
		return errors.NotFound("memoryRepo.Save", nil, "Video request not found")
	}
	saved := *video
	saved.Status = current.Status
	saved.CreatedAt = current.CreatedAt
	saved.UpdatedAt = r.now()
	r.videos[video.ID] = saved
	return nil
}

func (r *memoryRepo) TransitionStatus(ctx context.Context, id string, from, to models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return errors.NotFound("memoryRepo.TransitionStatus", nil, "Video request not found")
	}
	if v.Status != from {
		return errors.Conflict("memoryRepo.TransitionStatus", fmt.Sprintf("status is %s", v.Status))
	}
	v.Status = to
	v.UpdatedAt = r.now()
	r.videos[id] = v
	return nil
}

func (r *memoryRepo) Complete(ctx context.Context, video *models.VideoRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.videos[video.ID]
	if !ok {
		return errors.NotFound("memoryRepo.Complete", nil, "Video request not found")
	}
	if current.Status != models.StatusGenerating {
		return errors.Conflict("memoryRepo.Complete", fmt.Sprintf("status is %s", current.Status))
	}
	current.Balance = video.Balance
	current.TransactionCount = video.TransactionCount
	current.Reports = video.Reports
	current.IntroText = video.IntroText
	current.OutroText = video.OutroText
	current.Error = ""
	current.Status = models.StatusCompleted
	current.UpdatedAt = r.now()
	r.videos[video.ID] = current

	video.Status = current.Status
	video.Error = ""
	video.UpdatedAt = current.UpdatedAt
	return nil
}

func (r *memoryRepo) FindStale(ctx context.Context, status models.Status, before time.Time) ([]*models.VideoRequest, error) {
	return r.list(func(v models.VideoRequest) bool {
		return v.Status == status && v.UpdatedAt.Before(before)
	}, repository.ListParams{Limit: repository.MaxListLimit}), nil
}

func (r *memoryRepo) Close() error { return nil }

type stubFetcher struct {
	activity *explorer.Activity
	err      error
}

func (f *stubFetcher) FetchActivity(ctx context.Context, address string, days int, activity models.ActivityType) (*explorer.Activity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.activity, nil
}

// gatedGenerator blocks until release is closed.
type gatedGenerator struct {
	entered chan struct{}
	release chan struct{}
	inner   report.Generator
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		inner:   report.NewLocalGenerator(),
	}
}

func (g *gatedGenerator) Generate(ctx context.Context, in report.Input) (*models.Report, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Generate(ctx, in)
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, report.Input) (*models.Report, error) {
	return nil, g.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, report.Input) (*models.Report, error) {
	panic("generator blew up")
}
