package models

import "time"

// SystemMetrics is a point-in-time summary of the process instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	Transitions              map[string]uint64 `json:"transitions"`
	TransitionFailures       uint64            `json:"transition_failures"`
	CreditsApplied           uint64            `json:"credits_applied"`
	CreditAmountApplied      int64             `json:"credit_amount_applied"`
	TrialsExpired            uint64            `json:"trials_expired"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
