package models

// PeriodStats summarizes the transactions of one period.
type PeriodStats struct {
	TotalValue              float64 `json:"total_value"`
	UniqueAddresses         int     `json:"unique_addresses"`
	SignificantTransactions int     `json:"significant_transactions"`
}

type PeriodReport struct {
	Period       string        `json:"period"`
	StartTime    int64         `json:"start_time"`
	EndTime      int64         `json:"end_time"`
	Narrative    string        `json:"narrative"`
	Highlights   []string      `json:"highlights"`
	Stats        PeriodStats   `json:"stats"`
	Transactions []Transaction `json:"transactions"`
}

// Report is the full output of a report generator.
type Report struct {
	Intro   string         `json:"intro"`
	Outro   string         `json:"outro"`
	Periods []PeriodReport `json:"periods"`
}
