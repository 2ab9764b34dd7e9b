package seed

import (
	"time"

	"github.com/okian/eventhub/internal/domain/model"
)

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of drafts to generate
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // Wait between submission and verification
	OutputFile string        // Output file for submitted drafts, skipped when empty
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Record is one submitted draft together with the id the service assigned.
type Record struct {
	ID     string      `json:"id,omitempty"`
	Status string      `json:"status"`
	Draft  model.Draft `json:"draft"`
}

// Stats holds run statistics.
type Stats struct {
	DraftsGenerated int
	DraftsSubmitted int
	EventsCreated   int
	DraftsRejected  int
	DraftsFailed    int
	EventsVerified  int
	EventsMissing   int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
