package models

import "time"

// CreateVideoRequest is the body accepted when requesting a new video.
type CreateVideoRequest struct {
	OwnerAddress  string       `json:"owner_address"`
	ReportAddress string       `json:"report_address,omitempty"`
	Prompt        string       `json:"prompt"`
	Duration      int          `json:"duration"`
	ActivityType  ActivityType `json:"activity_type,omitempty"`
}

// VideoResponse represents the API response
type VideoResponse struct {
	ID               string         `json:"id"`
	OwnerAddress     string         `json:"owner_address"`
	ReportAddress    string         `json:"report_address"`
	Prompt           string         `json:"prompt"`
	Duration         int            `json:"duration"`
	ActivityType     ActivityType   `json:"activity_type"`
	Status           Status         `json:"status"`
	ChainID          int64          `json:"chain_id"`
	Network          string         `json:"network"`
	Balance          string         `json:"balance"`
	TransactionCount int            `json:"transaction_count"`
	IntroText        string         `json:"intro_text,omitempty"`
	OutroText        string         `json:"outro_text,omitempty"`
	Reports          []PeriodReport `json:"reports"`
	VideoURL         string         `json:"video_url,omitempty"`
	VideoSize        int64          `json:"video_size,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewVideoResponse creates a response from a video request model
func NewVideoResponse(v *VideoRequest) *VideoResponse {
	reports := v.Reports
	if reports == nil {
		reports = []PeriodReport{}
	}
	return &VideoResponse{
		ID:               v.ID,
		OwnerAddress:     v.OwnerAddress,
		ReportAddress:    v.ReportAddress,
		Prompt:           v.Prompt,
		Duration:         v.Duration,
		ActivityType:     v.ActivityType,
		Status:           v.Status,
		ChainID:          v.ChainID,
		Network:          v.Network,
		Balance:          v.Balance,
		TransactionCount: v.TransactionCount,
		IntroText:        v.IntroText,
		OutroText:        v.OutroText,
		Reports:          reports,
		VideoURL:         v.VideoURL,
		VideoSize:        v.VideoSize,
		Error:            v.Error,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

// GenerateReportRequest is the body of the ad-hoc report endpoint.
type GenerateReportRequest struct {
	Prompt       string        `json:"prompt"`
	OwnerAddress string        `json:"owner_address,omitempty"`
	Periods      int           `json:"periods,omitempty"`
	Transactions []Transaction `json:"transactions"`
}

// RenderResult is returned once a render job finishes.
type RenderResult struct {
	RenderID  string `json:"render_id"`
	VideoURL  string `json:"video_url"`
	VideoSize int64  `json:"video_size"`
}
