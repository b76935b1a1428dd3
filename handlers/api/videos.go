package api

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/validation"
)

type VideoHandler struct {
	service   VideoService
	renderer  RenderService
	validator *validation.Validator
	logger    *logrus.Logger
}

// VideoList is the payload of the list endpoints.
type VideoList struct {
	Videos []*models.VideoResponse `json:"videos"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

func NewVideoHandler(service VideoService, renderer RenderService, validator *validation.Validator, logger *logrus.Logger) *VideoHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &VideoHandler{
		service:   service,
		renderer:  renderer,
		validator: validator,
		logger:    logger,
	}
}

// HandleCreate handles POST /api/v1/videos
func (h *VideoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: maxBodyBytes,
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req models.CreateVideoRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	video, err := h.service.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"status":   video.Status,
	}).Info("Video request accepted")

	respondJSON(w, r, http.StatusAccepted, models.NewVideoResponse(video))
}

// HandleGet handles GET /api/v1/videos/{id}
func (h *VideoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	video, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponse(video))
}

// HandleList handles GET /api/v1/videos
func (h *VideoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	videos, err := h.service.List(r.Context(), params)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, newVideoList(videos, params))
}

// HandleListByOwner handles GET /api/v1/owners/{owner}/videos
func (h *VideoHandler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	videos, err := h.service.ListByOwner(r.Context(), r.PathValue("owner"), params)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, newVideoList(videos, params))
}

// HandleAcknowledge handles POST /api/v1/videos/{id}/acknowledge
func (h *VideoHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	video, err := h.service.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponse(video))
}

// HandleRefund handles POST /api/v1/videos/{id}/refund
func (h *VideoHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	video, err := h.service.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponse(video))
}

// HandleRender handles POST /api/v1/videos/{id}/render. The call blocks until
// the render job finishes, fails or times out.
func (h *VideoHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	const op = "VideoHandler.HandleRender"

	if h.renderer == nil {
		respondError(w, r, h.logger, errors.Unavailable(op, nil, "Rendering is not configured"))
		return
	}

	result, err := h.renderer.Render(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, r, http.StatusOK, result)
}

func listParams(r *http.Request) (repository.ListParams, error) {
	const op = "VideoHandler.listParams"

	var params repository.ListParams
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return params, errors.InvalidInput(op, err, "limit must be a non-negative integer")
		}
		params.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return params, errors.InvalidInput(op, err, "offset must be a non-negative integer")
		}
		params.Offset = offset
	}
	return params.Normalize(), nil
}

func newVideoList(videos []*models.VideoRequest, params repository.ListParams) VideoList {
	list := VideoList{
		Videos: make([]*models.VideoResponse, 0, len(videos)),
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	for _, v := range videos {
		list.Videos = append(list.Videos, models.NewVideoResponse(v))
	}
	return list
}
