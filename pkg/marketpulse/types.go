package marketpulse

import "time"

// Row is one instrument's line in a breadth snapshot.
type Row struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Reference float64 `json:"reference"`
	ChangePct float64 `json:"change_pct"`
	Class     string  `json:"class"`
}

// Skip is an instrument left out of a snapshot, with the reason.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Snapshot is the wire form of one refresh cycle.
type Snapshot struct {
	Advances int     `json:"advances"`
	Declines int     `json:"declines"`
	Neutral  int     `json:"neutral"`
	Total    int     `json:"total"`
	ADRatio  float64 `json:"ad_ratio"`

	Rows    []Row  `json:"rows"`
	Skipped []Skip `json:"skipped,omitempty"`

	UniverseSource string `json:"universe_source"`
	UniverseSize   int    `json:"universe_size"`

	Degraded    bool      `json:"degraded"`
	Warnings    []string  `json:"warnings,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Universe is the wire form of the current instrument universe.
type Universe struct {
	Symbols   []string  `json:"symbols"`
	Count     int       `json:"count"`
	Source    string    `json:"source"`
	Degraded  bool      `json:"degraded"`
	Reason    string    `json:"reason,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Health is the server liveness payload.
type Health struct {
	Status      string    `json:"status"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	Degraded    bool      `json:"degraded"`
}
