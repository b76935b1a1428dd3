package video

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/walletreel/walletreel/models"
)

func TestJobQueueProcessesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewJobQueue(3, 10, time.Second, quietLogger())
	var processed int32
	q.Start(func(ctx context.Context, v *models.VideoRequest) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Submit(&models.VideoRequest{ID: id}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 4 && q.Active() == 0
	}, time.Second, 5*time.Millisecond)

	q.Close()
	assert.ErrorIs(t, q.Submit(&models.VideoRequest{ID: "late"}), ErrQueueClosed)
	q.Close()
}

func TestJobQueueFull(t *testing.T) {
	q := NewJobQueue(1, 2, time.Second, quietLogger())
	defer q.Close()

	require.NoError(t, q.Submit(&models.VideoRequest{ID: "a"}))
	require.NoError(t, q.Submit(&models.VideoRequest{ID: "b"}))
	assert.ErrorIs(t, q.Submit(&models.VideoRequest{ID: "c"}), ErrQueueFull)
	assert.Equal(t, 2, q.Active())
}

func TestJobQueueTimeoutCancelsJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewJobQueue(1, 1, 20*time.Millisecond, quietLogger())
	errs := make(chan error, 1)
	q.Start(func(ctx context.Context, v *models.VideoRequest) error {
		<-ctx.Done()
		errs <- ctx.Err()
		return ctx.Err()
	})

	require.NoError(t, q.Submit(&models.VideoRequest{ID: "slow"}))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by the queue timeout")
	}
	q.Close()
}

func TestJobQueueCloseCancelsRunningJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewJobQueue(1, 1, time.Minute, quietLogger())
	started := make(chan struct{})
	q.Start(func(ctx context.Context, v *models.VideoRequest) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, q.Submit(&models.VideoRequest{ID: "long"}))
	<-started
	assert.True(t, q.Cancel("long") || q.Active() == 0)
	q.Close()
	assert.False(t, q.Cancel("long"))
}

func TestJobQueueRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewJobQueue(1, 2, time.Second, quietLogger())
	var calls int32
	panicked := make(chan string, 2)
	q.OnPanic(func(v *models.VideoRequest, recovered any) {
		panicked <- v.ID
		assert.Equal(t, "boom", recovered)
	})
	q.Start(func(ctx context.Context, v *models.VideoRequest) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	})

	require.NoError(t, q.Submit(&models.VideoRequest{ID: "a"}))
	require.NoError(t, q.Submit(&models.VideoRequest{ID: "b"}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2 && q.Active() == 0
	}, time.Second, 5*time.Millisecond)
	q.Close()

	assert.Equal(t, "a", <-panicked)
	assert.Empty(t, panicked)
}
