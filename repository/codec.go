package repository

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/walletreel/walletreel/models"
)

// Columns lists video_requests columns in the order ScanVideo expects.
const Columns = `id, owner_address, report_address, prompt, duration, activity_type,
        status, chain_id, network, balance, transaction_count, reports,
        intro_text, outro_text, render_id, video_url, video_size, error,
        created_at, updated_at`

type Scanner interface {
	Scan(dest ...interface{}) error
}

func ScanVideo(s Scanner) (*models.VideoRequest, error) {
	video := &models.VideoRequest{}
	var (
		activity string
		status   string
		reports  []byte
	)

	err := s.Scan(
		&video.ID,
		&video.OwnerAddress,
		&video.ReportAddress,
		&video.Prompt,
		&video.Duration,
		&activity,
		&status,
		&video.ChainID,
		&video.Network,
		&video.Balance,
		&video.TransactionCount,
		&reports,
		&video.IntroText,
		&video.OutroText,
		&video.RenderID,
		&video.VideoURL,
		&video.VideoSize,
		&video.Error,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.ActivityType = models.ActivityType(activity)
	video.Status = models.Status(status)
	if video.Reports, err = DecodeReports(reports); err != nil {
		return nil, err
	}
	return video, nil
}

func EncodeReports(reports []models.PeriodReport) (string, error) {
	if reports == nil {
		reports = []models.PeriodReport{}
	}
	raw, err := json.Marshal(reports)
	if err != nil {
		return "", errors.Wrap(err, "encode reports")
	}
	return string(raw), nil
}

func DecodeReports(raw []byte) ([]models.PeriodReport, error) {
	reports := []models.PeriodReport{}
	if len(raw) == 0 {
		return reports, nil
	}
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, errors.Wrap(err, "decode reports")
	}
	return reports, nil
}
