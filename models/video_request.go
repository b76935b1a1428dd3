package models

import (
	"time"
)

type Status string

const (
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
	StatusRefunded     Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusGenerating: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusAcknowledged, StatusRefunded},
	StatusFailed:     {StatusRefunded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusGenerating, StatusCompleted, StatusAcknowledged, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ActivityType string

const (
	ActivityTransactions ActivityType = "transactions"
	ActivityTokens       ActivityType = "tokens"
	ActivityNFT          ActivityType = "nft"
)

func (a ActivityType) Valid() bool {
	switch a {
	case ActivityTransactions, ActivityTokens, ActivityNFT:
		return true
	}
	return false
}

type VideoRequest struct {
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
	RenderID         string         `json:"render_id,omitempty"`
	VideoURL         string         `json:"video_url,omitempty"`
	VideoSize        int64          `json:"video_size,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Renderable reports whether the request carries a finished report.
func (v *VideoRequest) Renderable() bool {
	return v.Status == StatusCompleted || v.Status == StatusAcknowledged
}

// IsStale checks if generation has been stuck for longer than timeout at now.
func (v *VideoRequest) IsStale(now time.Time, timeout time.Duration) bool {
	if v.Status != StatusGenerating {
		return false
	}
	return now.Sub(v.UpdatedAt) > timeout
}
