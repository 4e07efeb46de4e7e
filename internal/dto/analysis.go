package dto

type TransactionResponse struct {
	Date     string  `json:"date"`
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
}

// AnalysisResponse carries the stored analysis plus period, dayCount and
// averageDailySpent, which are recomputed on every read.
type AnalysisResponse struct {
	ID                string                `json:"id"`
	Summary           string                `json:"summary"`
	TotalAmount       float64               `json:"totalAmount"`
	Category          string                `json:"category"`
	Items             []TransactionResponse `json:"items"`
	Advice            string                `json:"advice"`
	Period            string                `json:"period"`
	DayCount          int                   `json:"dayCount"`
	AverageDailySpent float64               `json:"averageDailySpent"`
	ModelID           string                `json:"modelId"`
	TokenUsage        int                   `json:"tokenUsage"`
	ProcessedAt       string                `json:"processedAt"`
}
