package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/walletreel/walletreel/config"
	apperrors "github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/validation"
)

const owner = "0x00000000000000000000000000000000000000aa"

type mockVideos struct{ mock.Mock }

func (m *mockVideos) Create(ctx context.Context, req models.CreateVideoRequest) (*models.VideoRequest, error) {
	args := m.Called(ctx, req)
	v, _ := args.Get(0).(*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) Get(ctx context.Context, id string) (*models.VideoRequest, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error) {
	args := m.Called(ctx, params)
	v, _ := args.Get(0).([]*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error) {
	args := m.Called(ctx, owner, params)
	v, _ := args.Get(0).([]*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) Acknowledge(ctx context.Context, id string) (*models.VideoRequest, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) Refund(ctx context.Context, id string) (*models.VideoRequest, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.VideoRequest)
	return v, args.Error(1)
}

func (m *mockVideos) GenerateReport(ctx context.Context, req models.GenerateReportRequest) (*models.Report, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) Render(ctx context.Context, id string) (*models.RenderResult, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.RenderResult)
	return r, args.Error(1)
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
}

func newTestServer(t *testing.T, videos VideoService, renderer RenderService) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.Version = "test"
	srv := NewServer(cfg,
		WithLogger(log),
		WithServices(videos, renderer, validation.NewValidator(validation.DefaultLimits())),
	)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func sampleVideo(status models.Status) *models.VideoRequest {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.VideoRequest{
		ID:            "req-1",
		OwnerAddress:  owner,
		ReportAddress: owner,
		Prompt:        "my year",
		Duration:      30,
		ActivityType:  models.ActivityTransactions,
		Status:        status,
		ChainID:       1,
		Network:       "mainnet",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, new(mockVideos), nil)

	rr, env := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rr.Header().Get("X-Request-ID"))

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])
	assert.NotContains(t, data, "active_jobs")
}

type fixedJobs int

func (n fixedJobs) Active() int { return int(n) }

func TestHealthReportsActiveJobs(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.Default()

	srv := NewServer(cfg,
		WithLogger(log),
		WithServices(new(mockVideos), nil, validation.NewValidator(validation.DefaultLimits())),
		WithJobs(fixedJobs(3)),
	)

	_, env := do(t, srv.Handler(), http.MethodGet, "/health", "")
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, float64(3), data["active_jobs"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, new(mockVideos), nil)
	do(t, h, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "walletreel_http_requests_total")
}

func TestCreateVideo(t *testing.T) {
	videos := new(mockVideos)
	want := models.CreateVideoRequest{OwnerAddress: owner, Prompt: "my year", Duration: 30}
	videos.On("Create", mock.Anything, want).Return(sampleVideo(models.StatusGenerating), nil)

	h := newTestServer(t, videos, nil)
	rr, env := do(t, h, http.MethodPost, "/api/v1/videos",
		`{"owner_address":"`+owner+`","prompt":"my year","duration":30}`)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, env.Success)

	var got models.VideoResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, models.StatusGenerating, got.Status)
	assert.Equal(t, 30, got.Duration)
	assert.Equal(t, []models.PeriodReport{}, got.Reports)
	videos.AssertExpectations(t)
}

func TestCreateVideoRejectsBadBodies(t *testing.T) {
	videos := new(mockVideos)
	h := newTestServer(t, videos, nil)

	rr, env := do(t, h, http.MethodPost, "/api/v1/videos", `{"owner_address":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid JSON format", env.Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	videos.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateVideoServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"validation", apperrors.InvalidInput("op", nil, "Duration must be positive"), http.StatusBadRequest, "Duration must be positive"},
		{"queue full", apperrors.Unavailable("op", nil, "Generation queue is full, try again later"), http.StatusServiceUnavailable, "Generation queue is full, try again later"},
		{"wrapped app error", errors.Wrap(apperrors.NotFound("op", nil, "gone"), "context"), http.StatusNotFound, "gone"},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			videos := new(mockVideos)
			videos.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err)

			rr, env := do(t, newTestServer(t, videos, nil), http.MethodPost, "/api/v1/videos", `{"prompt":"x"}`)
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantMsg, env.Error)
			assert.Empty(t, env.Data)
		})
	}
}

func TestGetVideo(t *testing.T) {
	videos := new(mockVideos)
	videos.On("Get", mock.Anything, "req-1").Return(sampleVideo(models.StatusCompleted), nil)
	videos.On("Get", mock.Anything, "missing").Return(nil, apperrors.NotFound("op", nil, "Video request not found"))

	h := newTestServer(t, videos, nil)

	rr, env := do(t, h, http.MethodGet, "/api/v1/videos/req-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.VideoResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.StatusCompleted, got.Status)

	rr, env = do(t, h, http.MethodGet, "/api/v1/videos/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Video request not found", env.Error)
}

func TestListVideos(t *testing.T) {
	videos := new(mockVideos)
	videos.On("List", mock.Anything, repository.ListParams{Limit: 5, Offset: 10}).
		Return([]*models.VideoRequest{sampleVideo(models.StatusCompleted)}, nil)
	videos.On("List", mock.Anything, repository.ListParams{Limit: repository.DefaultListLimit}).
		Return([]*models.VideoRequest{}, nil)

	h := newTestServer(t, videos, nil)

	rr, env := do(t, h, http.MethodGet, "/api/v1/videos?limit=5&offset=10", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var list VideoList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Videos, 1)
	assert.Equal(t, 5, list.Limit)
	assert.Equal(t, 10, list.Offset)

	rr, env = do(t, h, http.MethodGet, "/api/v1/videos", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.NotNil(t, list.Videos)
	assert.Empty(t, list.Videos)

	rr, _ = do(t, h, http.MethodGet, "/api/v1/videos?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = do(t, h, http.MethodGet, "/api/v1/videos?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListByOwner(t *testing.T) {
	videos := new(mockVideos)
	videos.On("ListByOwner", mock.Anything, owner, repository.ListParams{Limit: repository.DefaultListLimit}).
		Return([]*models.VideoRequest{sampleVideo(models.StatusGenerating), sampleVideo(models.StatusFailed)}, nil)

	rr, env := do(t, newTestServer(t, videos, nil), http.MethodGet, "/api/v1/owners/"+owner+"/videos", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var list VideoList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Videos, 2)
	videos.AssertExpectations(t)
}

func TestAcknowledgeAndRefund(t *testing.T) {
	videos := new(mockVideos)
	videos.On("Acknowledge", mock.Anything, "req-1").Return(sampleVideo(models.StatusAcknowledged), nil)
	videos.On("Refund", mock.Anything, "req-1").
		Return(nil, apperrors.Conflict("op", "Cannot refund a request that is acknowledged"))

	h := newTestServer(t, videos, nil)

	rr, env := do(t, h, http.MethodPost, "/api/v1/videos/req-1/acknowledge", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.VideoResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.StatusAcknowledged, got.Status)

	rr, env = do(t, h, http.MethodPost, "/api/v1/videos/req-1/refund", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Cannot refund a request that is acknowledged", env.Error)
}

func TestRender(t *testing.T) {
	videos := new(mockVideos)
	renderer := new(mockRenderer)
	renderer.On("Render", mock.Anything, "req-1").
		Return(&models.RenderResult{RenderID: "r1", VideoURL: "https://cdn.example/out.mp4", VideoSize: 2048}, nil)
	renderer.On("Render", mock.Anything, "req-2").
		Return(nil, apperrors.Internal("op", nil, "Render failed: out of memory"))

	h := newTestServer(t, videos, renderer)

	rr, env := do(t, h, http.MethodPost, "/api/v1/videos/req-1/render", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.RenderResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "https://cdn.example/out.mp4", got.VideoURL)
	assert.Equal(t, int64(2048), got.VideoSize)

	rr, env = do(t, h, http.MethodPost, "/api/v1/videos/req-2/render", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Render failed: out of memory", env.Error)
}

func TestRenderNotConfigured(t *testing.T) {
	rr, env := do(t, newTestServer(t, new(mockVideos), nil), http.MethodPost, "/api/v1/videos/req-1/render", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Rendering is not configured", env.Error)
}

func TestGenerateReport(t *testing.T) {
	videos := new(mockVideos)
	videos.On("GenerateReport", mock.Anything, mock.MatchedBy(func(req models.GenerateReportRequest) bool {
		return req.Prompt == "summarize" && req.Periods == 2 && len(req.Transactions) == 1
	})).Return(&models.Report{
		Intro:   "hello",
		Outro:   "bye",
		Periods: []models.PeriodReport{{Period: "2024-01-01 to 2024-01-02", Narrative: "quiet"}},
	}, nil)

	body := `{"prompt":"summarize","periods":2,"transactions":[{"hash":"0x1","timeStamp":"1704067200","value":"1"}]}`
	rr, env := do(t, newTestServer(t, videos, nil), http.MethodPost, "/api/v1/reports", body)

	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.Report
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "hello", got.Intro)
	require.Len(t, got.Periods, 1)
	assert.Equal(t, "quiet", got.Periods[0].Narrative)
}

func TestUnknownRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/videos/req-1", nil)
	rr := httptest.NewRecorder()
	newTestServer(t, new(mockVideos), nil).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
