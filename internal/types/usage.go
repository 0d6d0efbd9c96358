package types

import "time"

// Pricing is the per-million-token price of a model in USD.
type Pricing struct {
	InputPerMillionUSD  float64 `json:"input" yaml:"input"`
	OutputPerMillionUSD float64 `json:"output" yaml:"output"`
}

// Cost returns the USD cost of a call.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*p.InputPerMillionUSD + float64(outputTokens)/1e6*p.OutputPerMillionUSD
}

// UsageRecord is the monthly usage document of one model.
type UsageRecord struct {
	ModelID           string             `json:"model_id"`
	YearMonth         string             `json:"year_month"` // YYYY-MM
	TotalCostUSD      float64            `json:"total_cost"`
	TotalInputTokens  int64              `json:"total_input_tokens"`
	TotalOutputTokens int64              `json:"total_output_tokens"`
	DailyCosts        map[string]float64 `json:"daily_costs"`         // YYYY-MM-DD
	DailyInputTokens  map[string]int64   `json:"daily_input_tokens"`  // YYYY-MM-DD
	DailyOutputTokens map[string]int64   `json:"daily_output_tokens"` // YYYY-MM-DD
	LastUpdated       string             `json:"last_updated"`        // YYYY/MM/DD/HH:MM
}

// NewUsageRecord returns a zeroed record for the given month.
func NewUsageRecord(modelID, yearMonth string) *UsageRecord {
	return &UsageRecord{
		ModelID:           modelID,
		YearMonth:         yearMonth,
		DailyCosts:        map[string]float64{},
		DailyInputTokens:  map[string]int64{},
		DailyOutputTokens: map[string]int64{},
	}
}

// UsageDelta is an additive increment applied to a UsageRecord.
type UsageDelta struct {
	Day          string // YYYY-MM-DD
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
	LastUpdated  string
}

// Date layouts used by usage records.
const (
	YearMonthLayout   = "2006-01"
	DayLayout         = "2006-01-02"
	LastUpdatedLayout = "2006/01/02/15:04"
)

// YearMonth formats t as YYYY-MM in UTC.
func YearMonth(t time.Time) string {
	return t.UTC().Format(YearMonthLayout)
}

// Day formats t as YYYY-MM-DD in UTC.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// RequestLog is request metadata kept for the logs endpoint. It never holds message content.
type RequestLog struct {
	ID           string  `json:"id"`
	RequestID    string  `json:"request_id"`
	Model        string  `json:"model"`
	Family       string  `json:"family"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	StatusCode   int     `json:"status_code"`
	FinishReason string  `json:"finish_reason,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	// DroppedAttachments counts attachments that failed to resolve and were left out.
	DroppedAttachments int       `json:"dropped_attachments,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// LogFilter contains parameters for filtering request logs.
type LogFilter struct {
	Model  string
	Limit  int
	Offset int
}
