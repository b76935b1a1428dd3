package video

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/walletreel/walletreel/models"
)

func TestSweep(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now()
	repo.put(models.VideoRequest{ID: "stuck", Status: models.StatusGenerating, UpdatedAt: now.Add(-time.Hour)})
	repo.put(models.VideoRequest{ID: "fresh", Status: models.StatusGenerating, UpdatedAt: now})
	repo.put(models.VideoRequest{ID: "old-done", Status: models.StatusCompleted, UpdatedAt: now.Add(-time.Hour)})

	sweeper := NewSweeper(repo, nil, 10*time.Minute, quietLogger())
	sweeper.now = func() time.Time { return now }

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	stuck, _ := repo.Find(context.Background(), "stuck")
	assert.Equal(t, models.StatusFailed, stuck.Status)
	assert.Equal(t, staleMessage, stuck.Error)

	fresh, _ := repo.Find(context.Background(), "fresh")
	assert.Equal(t, models.StatusGenerating, fresh.Status)

	done, _ := repo.Find(context.Background(), "old-done")
	assert.Equal(t, models.StatusCompleted, done.Status)

	swept, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSweepCancelsRunningJob(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now()
	stuck := models.VideoRequest{ID: "stuck", Status: models.StatusGenerating, UpdatedAt: now.Add(-time.Hour)}
	repo.put(stuck)

	queue := NewJobQueue(1, 1, time.Minute, quietLogger())
	started := make(chan struct{})
	stopped := make(chan error, 1)
	queue.Start(func(ctx context.Context, video *models.VideoRequest) error {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	})
	defer queue.Close()

	job := stuck
	require.NoError(t, queue.Submit(&job))
	<-started

	sweeper := NewSweeper(repo, queue, 10*time.Minute, quietLogger())
	sweeper.now = func() time.Time { return now }

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled")
	}

	got, _ := repo.Find(context.Background(), "stuck")
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, staleMessage, got.Error)
}

func TestSweeperSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryRepo()
	repo.put(models.VideoRequest{ID: "stuck", Status: models.StatusGenerating, UpdatedAt: time.Now().Add(-time.Hour)})

	sweeper := NewSweeper(repo, nil, time.Minute, quietLogger())
	require.NoError(t, sweeper.Start("@every 1s"))
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		v, _ := repo.Find(context.Background(), "stuck")
		return v.Status == models.StatusFailed
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	sweeper := NewSweeper(newMemoryRepo(), nil, time.Minute, quietLogger())
	assert.Error(t, sweeper.Start("not a schedule"))
}
