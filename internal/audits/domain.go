package audits

import "time"

// Audit is one QA evaluation of a recorded call. Creating one is the
// billable operation of the platform.
type Audit struct {
	ID         string
	InstanceID string
	CallID     string
	AgentID    string
	AuditorID  string
	Score      float64
	TokensUsed int64
	Notes      string
	CreatedAt  time.Time
}

// Filter narrows audit listings. Zero values mean no restriction.
type Filter struct {
	InstanceID string
	AgentID    string
	AuditorID  string
	From       time.Time
	To         time.Time
}
