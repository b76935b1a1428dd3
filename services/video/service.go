// Package video runs the video request lifecycle: creation, background
// report generation and the acknowledge/refund transitions.
package video

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/explorer"
	"github.com/walletreel/walletreel/metrics"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/services/report"
	"github.com/walletreel/walletreel/validation"
)

type Repository = repository.VideoRepository

// Fetcher loads wallet activity from a block explorer.
type Fetcher interface {
	FetchActivity(ctx context.Context, address string, days int, activity models.ActivityType) (*explorer.Activity, error)
}

type Config struct {
	ChainID int64
	Network string
	// ProcessTimeout bounds one generation job and marks the age after
	// which a generating request counts as stale.
	ProcessTimeout time.Duration
}

type Service struct {
	repo      Repository
	fetcher   Fetcher
	generator report.Generator
	validator *validation.Validator
	queue     *JobQueue
	config    Config
	logger    *logrus.Logger
}

func NewService(
	repo Repository,
	fetcher Fetcher,
	generator report.Generator,
	validator *validation.Validator,
	queue *JobQueue,
	config Config,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		repo:      repo,
		fetcher:   fetcher,
		generator: generator,
		validator: validator,
		queue:     queue,
		config:    config,
		logger:    logger,
	}
}

// Start launches the generation workers.
func (s *Service) Start() {
	s.queue.OnPanic(s.recoverJob)
	s.queue.Start(s.Process)
}

// Close stops the workers and cancels jobs in flight.
func (s *Service) Close() {
	s.queue.Close()
}

// Create stores a new generating request and queues its report generation.
// It returns as soon as the job is queued.
func (s *Service) Create(ctx context.Context, req models.CreateVideoRequest) (*models.VideoRequest, error) {
	const op = "VideoService.Create"

	if err := s.validator.ValidateCreate(&req); err != nil {
		return nil, err
	}

	video := &models.VideoRequest{
		ID:            uuid.New().String(),
		OwnerAddress:  req.OwnerAddress,
		ReportAddress: req.ReportAddress,
		Prompt:        req.Prompt,
		Duration:      req.Duration,
		ActivityType:  req.ActivityType,
		Status:        models.StatusGenerating,
		ChainID:       s.config.ChainID,
		Network:       s.config.Network,
		Reports:       []models.PeriodReport{},
	}

	logger := s.logger.WithFields(logrus.Fields{
		"id":       video.ID,
		"owner":    video.OwnerAddress,
		"duration": video.Duration,
		"activity": video.ActivityType,
	})

	if err := s.repo.Create(ctx, video); err != nil {
		return nil, err
	}

	job := *video
	if err := s.queue.Submit(&job); err != nil {
		logger.WithError(err).Warn("Could not queue report generation")
		s.fail(video, "Generation queue is full, try again later")
		return nil, errors.Unavailable(op, err, "Generation queue is full, try again later")
	}

	logger.Info("Video request created")
	return video, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.VideoRequest, error) {
	const op = "VideoService.Get"

	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidInput(op, nil, "ID is required")
	}
	return s.repo.Find(ctx, id)
}

func (s *Service) List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error) {
	owner = strings.TrimSpace(owner)
	if err := s.validator.ValidateAddress("owner", owner); err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, strings.ToLower(owner), params)
}

// Acknowledge marks a completed request as accepted by its owner.
func (s *Service) Acknowledge(ctx context.Context, id string) (*models.VideoRequest, error) {
	return s.transition(ctx, "VideoService.Acknowledge", id, models.StatusAcknowledged, "acknowledge")
}

// Refund marks a completed or failed request as refunded.
func (s *Service) Refund(ctx context.Context, id string) (*models.VideoRequest, error) {
	return s.transition(ctx, "VideoService.Refund", id, models.StatusRefunded, "refund")
}

func (s *Service) transition(ctx context.Context, op, id string, target models.Status, verb string) (*models.VideoRequest, error) {
	video, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if video.Status.IsTerminal() {
		return nil, errors.Conflict(op, fmt.Sprintf("Video request is already %s", video.Status))
	}
	if !video.Status.CanTransition(target) {
		return nil, errors.Conflict(op, fmt.Sprintf("Cannot %s a request that is %s", verb, video.Status))
	}

	if err := s.repo.TransitionStatus(ctx, id, video.Status, target); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"id":   id,
		"from": video.Status,
		"to":   target,
	}).Info("Video request status changed")

	video.Status = target
	return video, nil
}

// GenerateReport builds a report from caller-supplied transactions without
// storing anything.
func (s *Service) GenerateReport(ctx context.Context, req models.GenerateReportRequest) (*models.Report, error) {
	const op = "VideoService.GenerateReport"

	if err := s.validator.ValidateReportRequest(&req); err != nil {
		return nil, err
	}

	rep, err := s.generator.Generate(ctx, report.Input{
		Prompt:       req.Prompt,
		Owner:        req.OwnerAddress,
		Periods:      req.Periods,
		Transactions: req.Transactions,
	})
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to generate report")
	}
	return rep, nil
}

// Process fetches wallet activity, generates the report and completes the
// request. Any failure moves the request to failed with the error message.
func (s *Service) Process(ctx context.Context, video *models.VideoRequest) error {
	logger := s.logger.WithField("id", video.ID)
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	activity, err := s.fetcher.FetchActivity(ctx, video.ReportAddress, video.Duration, video.ActivityType)
	if err != nil {
		s.fail(video, fmt.Sprintf("Failed to fetch wallet activity: %v", err))
		return err
	}

	rep, err := s.generator.Generate(ctx, report.Input{
		Prompt:       video.Prompt,
		Owner:        video.ReportAddress,
		Periods:      report.PeriodsFor(video.Duration),
		Transactions: activity.Transactions,
	})
	if err != nil {
		s.fail(video, fmt.Sprintf("Failed to generate report: %v", err))
		return err
	}

	video.Balance = activity.Balance
	video.TransactionCount = len(activity.Transactions)
	video.IntroText = rep.Intro
	video.OutroText = rep.Outro
	video.Reports = rep.Periods

	if err := s.repo.Complete(ctx, video); err != nil {
		if errors.IsConflict(err) {
			// the sweeper already gave up on this request; its error stands
			logger.WithError(err).Warn("Could not complete video request")
			metrics.PipelineResults.WithLabelValues(string(models.StatusFailed)).Inc()
			return err
		}
		s.fail(video, "Failed to save report")
		return err
	}

	metrics.PipelineResults.WithLabelValues(string(models.StatusCompleted)).Inc()
	logger.WithFields(logrus.Fields{
		"transactions": video.TransactionCount,
		"periods":      len(video.Reports),
		"duration":     time.Since(start),
	}).Info("Video request completed")
	return nil
}

// fail moves video from generating to failed and records message. It uses
// a fresh context so an expired job context still gets its failure stored.
// A request that already left generating keeps its stored outcome.
func (s *Service) fail(video *models.VideoRequest, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := s.logger.WithFields(logrus.Fields{"id": video.ID, "reason": message})
	metrics.PipelineResults.WithLabelValues(string(models.StatusFailed)).Inc()

	err := s.repo.TransitionStatus(ctx, video.ID, models.StatusGenerating, models.StatusFailed)
	if stderrors.Is(err, errors.ErrStatusConflict) {
		logger.Debug("Video request already left generating")
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to mark video request failed")
		return
	}

	video.Status = models.StatusFailed
	video.Error = message
	if err := s.repo.Save(ctx, video); err != nil {
		logger.WithError(err).Error("Failed to record failure reason")
	}
	logger.Warn("Video request failed")
}

// recoverJob fails a request whose job panicked.
func (s *Service) recoverJob(video *models.VideoRequest, p any) {
	s.fail(video, "Report generation crashed")
}
