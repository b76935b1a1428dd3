package video

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
)

const staleMessage = "Report generation timed out"

// Canceler stops the in-flight job of a request.
type Canceler interface {
	Cancel(jobID string) bool
}

// Sweeper periodically fails requests stuck in generating, e.g. after a
// restart dropped their jobs.
type Sweeper struct {
	repo    Repository
	jobs    Canceler
	timeout time.Duration
	cron    *cron.Cron
	logger  *logrus.Logger
	now     func() time.Time
}

// NewSweeper builds a sweeper over repo. jobs may be nil; when set, the job
// of every request the sweeper fails is cancelled.
func NewSweeper(repo Repository, jobs Canceler, timeout time.Duration, logger *logrus.Logger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "sweeper"))
	return &Sweeper{
		repo:    repo,
		jobs:    jobs,
		timeout: timeout,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		logger:  logger,
		now:     time.Now,
	}
}

// Start schedules Sweep using a cron spec such as "@every 5m".
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Error("Stale request sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep marks every request generating for longer than the timeout as
// failed and returns how many it moved.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.repo.FindStale(ctx, models.StatusGenerating, now.Add(-s.timeout))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, video := range stale {
		if !video.IsStale(now, s.timeout) {
			continue
		}
		logger := s.logger.WithFields(logrus.Fields{"id": video.ID, "updated_at": video.UpdatedAt})

		// transition first: a job finishing concurrently wins the race
		if err := s.repo.TransitionStatus(ctx, video.ID, models.StatusGenerating, models.StatusFailed); err != nil {
			if !errors.IsConflict(err) {
				logger.WithError(err).Warn("Failed to fail stale request")
			}
			continue
		}
		swept++

		if s.jobs != nil && s.jobs.Cancel(video.ID) {
			logger.Debug("Cancelled job of stale request")
		}

		video.Status = models.StatusFailed
		video.Error = staleMessage
		if err := s.repo.Save(ctx, video); err != nil {
			logger.WithError(err).Warn("Failed to record stale reason")
			continue
		}
		logger.Warn("Marked stale request failed")
	}
	return swept, nil
}
