package model

// Source names used as keys of the per-source status record.
const (
	SourceSupabase   = "supabase"
	SourceEventbrite = "eventbrite"
)

// SourceStatus is the independently settable status of one source adapter.
type SourceStatus struct {
	Loading bool    `json:"loading"`
	Error   *string `json:"error"`
}

// Failed builds a settled status carrying msg.
func Failed(msg string) SourceStatus {
	return SourceStatus{Error: &msg}
}

// Settled builds a settled status without an error.
func Settled() SourceStatus {
	return SourceStatus{}
}

// Loading builds an in-flight status.
func Loading() SourceStatus {
	return SourceStatus{Loading: true}
}

// Err returns the error message or "" when the source is healthy.
func (s SourceStatus) Err() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}
