package models

import "time"

// SystemMetrics is a lightweight instrumentation snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	UpstreamCalls            uint64            `json:"upstream_calls"`
	AverageUpstreamMs        float64           `json:"average_upstream_ms"`
	Validations              map[string]uint64 `json:"validations"`
	DataIssues               uint64            `json:"data_issues"`
	DecisionsRecorded        uint64            `json:"decisions_recorded"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
