package domain

import "time"

// Result is the envelope produced by one aggregation run.
type Result struct {
	Success   bool      `json:"success"`
	Count     int       `json:"count"`
	Deals     []Deal    `json:"deals"`
	Timestamp time.Time `json:"timestamp"`
	Degraded  bool      `json:"degraded"`
	Debug     DebugInfo `json:"debug"`
}

// DebugInfo is only rendered to clients that ask for it.
type DebugInfo struct {
	PerSourceCounts  map[SourceID]int    `json:"perSourceCounts"`
	PerSourceSamples map[SourceID][]Deal `json:"perSourceSamples"`
}
