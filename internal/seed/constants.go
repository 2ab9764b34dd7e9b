package seed

import "time"

// Submission outcomes.
const (
	StatusCreated  = "created"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettle        = time.Second
	PercentageMultiplier = 100
	progressInterval     = time.Second
)
