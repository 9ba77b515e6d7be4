package domain

import "time"

// ScanResult is the output of one full aggregation cycle: the raw snapshots
// gathered from every reachable venue and the ranked opportunities derived
// from them.
type ScanResult struct {
	ID            string
	Snapshots     []FundingSnapshot
	Opportunities []Opportunity
	Venues        []string // venues that contributed at least one snapshot
	StartedAt     time.Time
	CompletedAt   time.Time
}
