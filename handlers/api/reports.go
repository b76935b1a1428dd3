package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/validation"
)

type ReportHandler struct {
	service   VideoService
	validator *validation.Validator
	logger    *logrus.Logger
}

func NewReportHandler(service VideoService, validator *validation.Validator, logger *logrus.Logger) *ReportHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReportHandler{service: service, validator: validator, logger: logger}
}

// HandleGenerate handles POST /api/v1/reports. Nothing is stored.
func (h *ReportHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: maxBodyBytes,
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req models.GenerateReportRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	rep, err := h.service.GenerateReport(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"periods":      len(rep.Periods),
		"transactions": len(req.Transactions),
	}).Info("Ad-hoc report generated")

	respondJSON(w, r, http.StatusOK, rep)
}
