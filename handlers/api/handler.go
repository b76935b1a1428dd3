package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/middleware"
)

// maxBodyBytes caps JSON request bodies; report requests carry whole
// transaction lists.
const maxBodyBytes = 4 << 20

// Response represents a standardized API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response := Response{
		Success:   code >= 200 && code < 300,
		Data:      payload,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}

	if !response.Success && payload != nil {
		if msg, ok := payload.(string); ok {
			response.Error = msg
			response.Data = nil
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"

	if appErr, ok := errors.As(err); ok {
		code = appErr.Code
		msg = appErr.Message
	}

	entry := logger.WithFields(logrus.Fields{
		"error":      err,
		"status":     code,
		"request_id": middleware.GetRequestID(r.Context()),
		"path":       r.URL.Path,
		"method":     r.Method,
	})
	if code >= 500 {
		entry.Error("Request error")
	} else {
		entry.Debug("Request rejected")
	}

	respondJSON(w, r, code, msg)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.InvalidInput("readJSON", err, "Request body is required")
		}
		return errors.InvalidInput("readJSON", err, "Invalid JSON format")
	}
	return nil
}
