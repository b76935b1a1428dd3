// Package render turns a completed video request into a rendered video.
package render

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/renderer"
)

type Repository interface {
	Find(ctx context.Context, id string) (*models.VideoRequest, error)
	Save(ctx context.Context, video *models.VideoRequest) error
}

type Renderer interface {
	Submit(ctx context.Context, job renderer.Job) (string, error)
	Wait(ctx context.Context, renderID string) (*renderer.Progress, error)
}

// Archiver keeps a copy of every payload sent for rendering.
type Archiver interface {
	SaveRenderPayload(ctx context.Context, id string, payload interface{}) (string, error)
}

// Payload is the input props handed to the video composition.
type Payload struct {
	RequestID        string                `json:"requestId"`
	Owner            string                `json:"owner"`
	Address          string                `json:"address"`
	Prompt           string                `json:"prompt"`
	Duration         int                   `json:"duration"`
	ActivityType     models.ActivityType   `json:"activityType"`
	ChainID          int64                 `json:"chainId"`
	Network          string                `json:"network"`
	Balance          string                `json:"balance"`
	TransactionCount int                   `json:"transactionCount"`
	Intro            string                `json:"intro"`
	Outro            string                `json:"outro"`
	Periods          []models.PeriodReport `json:"periods"`
}

func NewPayload(v *models.VideoRequest) Payload {
	periods := v.Reports
	if periods == nil {
		periods = []models.PeriodReport{}
	}
	return Payload{
		RequestID:        v.ID,
		Owner:            v.OwnerAddress,
		Address:          v.ReportAddress,
		Prompt:           v.Prompt,
		Duration:         v.Duration,
		ActivityType:     v.ActivityType,
		ChainID:          v.ChainID,
		Network:          v.Network,
		Balance:          v.Balance,
		TransactionCount: v.TransactionCount,
		Intro:            v.IntroText,
		Outro:            v.OutroText,
		Periods:          periods,
	}
}

type Service struct {
	repo        Repository
	renderer    Renderer
	archive     Archiver
	composition string
	logger      *logrus.Logger
}

// NewService builds a render service. archive may be nil.
func NewService(repo Repository, r Renderer, archive Archiver, composition string, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		repo:        repo,
		renderer:    r,
		archive:     archive,
		composition: composition,
		logger:      logger,
	}
}

// Render submits the request's report for rendering and blocks until the
// video is ready, the job fails, or ctx ends.
func (s *Service) Render(ctx context.Context, id string) (*models.RenderResult, error) {
	const op = "RenderService.Render"
	logger := s.logger.WithField("id", id)

	video, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !video.Renderable() {
		return nil, errors.Conflict(op, fmt.Sprintf("Video request is %s; only completed or acknowledged requests can be rendered", video.Status))
	}

	payload := NewPayload(video)

	if s.archive != nil {
		key, err := s.archive.SaveRenderPayload(ctx, id, payload)
		if err != nil {
			logger.WithError(err).Warn("Failed to archive render payload")
		} else {
			logger.WithField("key", key).Debug("Archived render payload")
		}
	}

	renderID, err := s.renderer.Submit(ctx, renderer.Job{Composition: s.composition, InputProps: payload})
	if err != nil {
		logger.WithError(err).Error("Failed to submit render")
		return nil, errors.Internal(op, err, "Failed to start render")
	}
	logger = logger.WithField("render_id", renderID)
	logger.Info("Render submitted")

	video.RenderID = renderID
	if err := s.repo.Save(ctx, video); err != nil {
		return nil, err
	}

	progress, err := s.renderer.Wait(ctx, renderID)
	if err != nil {
		var fatal *renderer.FatalError
		switch {
		case stderrors.As(err, &fatal):
			logger.WithField("message", fatal.Message).Error("Render failed")
			return nil, errors.Internal(op, err, fatal.Message)
		case stderrors.Is(err, context.DeadlineExceeded):
			logger.WithError(err).Warn("Render timed out")
			return nil, errors.E(op, err, "Render timed out", http.StatusGatewayTimeout)
		default:
			logger.WithError(err).Error("Render polling failed")
			return nil, errors.Internal(op, err, "Failed to track render progress")
		}
	}

	video.VideoURL = progress.OutputFile
	video.VideoSize = progress.OutputSizeInBytes
	if err := s.repo.Save(ctx, video); err != nil {
		return nil, err
	}

	return &models.RenderResult{
		RenderID:  renderID,
		VideoURL:  progress.OutputFile,
		VideoSize: progress.OutputSizeInBytes,
	}, nil
}
