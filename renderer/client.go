// Package renderer drives a managed video rendering API.
package renderer

import (
	"context"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/metrics"
)

const maxPollFailures = 3

type Config struct {
	BaseURL      string
	APIKey       string
	Composition  string
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *logrus.Logger
}

type Job struct {
	Composition string      `json:"composition"`
	InputProps  interface{} `json:"inputProps"`
}

type Progress struct {
	Done                  bool          `json:"done"`
	OverallProgress       float64       `json:"overallProgress"`
	OutputFile            string        `json:"outputFile"`
	OutputSizeInBytes     int64         `json:"outputSizeInBytes"`
	FatalErrorEncountered bool          `json:"fatalErrorEncountered"`
	Errors                []RenderIssue `json:"errors"`
}

type RenderIssue struct {
	Message string `json:"message"`
}

// FatalError is returned by Wait when the render job itself failed.
type FatalError struct {
	RenderID string
	Message  string
}

func (e *FatalError) Error() string {
	return "render " + e.RenderID + " failed: " + e.Message
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

type Client struct {
	http   *req.Client
	cfg    Config
	logger *logrus.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	httpClient := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30 * time.Second).
		SetUserAgent("walletreel/1.0")
	if cfg.APIKey != "" {
		httpClient.SetCommonBearerAuthToken(cfg.APIKey)
	}

	return &Client{http: httpClient, cfg: cfg, logger: cfg.Logger}
}

// Submit starts a render and returns its id.
func (c *Client) Submit(ctx context.Context, job Job) (string, error) {
	if job.Composition == "" {
		job.Composition = c.cfg.Composition
	}

	var out struct {
		RenderID string `json:"renderId"`
	}
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(job).
		SetSuccessResult(&out).
		SetErrorResult(&apiErr).
		Post("/renders")
	if err != nil {
		return "", errors.Wrap(err, "submit render")
	}
	if resp.IsErrorState() {
		return "", errors.Errorf("submit render: http %d: %s", resp.StatusCode, apiErr.text())
	}
	if out.RenderID == "" {
		return "", errors.New("submit render: response carried no render id")
	}
	return out.RenderID, nil
}

// Progress reads the current state of a render.
func (c *Client) Progress(ctx context.Context, renderID string) (*Progress, error) {
	var progress Progress
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", renderID).
		SetSuccessResult(&progress).
		SetErrorResult(&apiErr).
		Get("/renders/{id}/progress")
	if err != nil {
		return nil, errors.Wrap(err, "render progress")
	}
	if resp.IsErrorState() {
		return nil, errors.Errorf("render progress: http %d: %s", resp.StatusCode, apiErr.text())
	}
	return &progress, nil
}

// Wait polls until the render is done or fatally failed, bounded by ctx and
// the configured timeout. A few consecutive poll errors are tolerated.
func (c *Client) Wait(ctx context.Context, renderID string) (*Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	logger := c.logger.WithField("render_id", renderID)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		metrics.RenderPolls.Inc()
		progress, err := c.Progress(ctx, renderID)
		switch {
		case err != nil:
			failures++
			if failures >= maxPollFailures || ctx.Err() != nil {
				metrics.RenderResults.WithLabelValues("error").Inc()
				return nil, err
			}
			logger.WithError(err).Warn("Render progress poll failed")
		case progress.FatalErrorEncountered:
			metrics.RenderResults.WithLabelValues("fatal").Inc()
			return progress, &FatalError{RenderID: renderID, Message: fatalMessage(progress)}
		case progress.Done:
			metrics.RenderResults.WithLabelValues("success").Inc()
			logger.WithFields(logrus.Fields{
				"output": progress.OutputFile,
				"size":   progress.OutputSizeInBytes,
			}).Info("Render finished")
			return progress, nil
		default:
			failures = 0
			logger.WithField("progress", progress.OverallProgress).Debug("Render in progress")
		}

		select {
		case <-ctx.Done():
			metrics.RenderResults.WithLabelValues("timeout").Inc()
			return nil, errors.Wrapf(ctx.Err(), "waiting for render %s", renderID)
		case <-ticker.C:
		}
	}
}

func fatalMessage(p *Progress) string {
	for _, issue := range p.Errors {
		if issue.Message != "" {
			return issue.Message
		}
	}
	return "render failed"
}
