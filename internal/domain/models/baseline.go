package models

import "time"

// MetricsBaseline is a historical metrics sample used for percentage deltas.
type MetricsBaseline struct {
	At                  time.Time `json:"at"`
	TotalFeedsProcessed int64     `json:"total_feeds_processed"`
	FeedsPerSecond      float64   `json:"feeds_per_second"`
	ActiveFeeds         int       `json:"active_feeds"`
	AverageLatencyMs    float64   `json:"average_latency_ms"`
}
