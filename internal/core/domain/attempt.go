package domain

import "time"

// ErrorKind classifies a failed attempt.
type ErrorKind string

const (
	ErrorKindAuth       ErrorKind = "auth"
	ErrorKindRateLimit  ErrorKind = "rate_limit"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindUnknown    ErrorKind = "unknown"
	ErrorKindNoProvider ErrorKind = "no_provider"
)

// OutcomeSuccess is the stats bucket used for successful attempts.
const OutcomeSuccess = "success"

// AttemptLog is one row per try. Rows are immutable once written.
type AttemptLog struct {
	ID           int64        `json:"id"`
	SessionID    string       `json:"session_id"`
	Capability   Capability   `json:"capability"`
	ProtocolType ProtocolType `json:"protocol_type"`
	ProviderID   string       `json:"provider_id"`
	ModelName    string       `json:"model_name"`
	AttemptIndex int          `json:"attempt_index"`
	RetryIndex   int          `json:"retry_index"`
	Success      bool         `json:"success"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	LatencyMS    int64        `json:"latency_ms"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AttemptStat is a derived count for one (capability, outcome) bucket.
type AttemptStat struct {
	Capability Capability `json:"capability"`
	ErrorKind  string     `json:"error_kind"`
	Success    bool       `json:"success"`
	Count      int64      `json:"count"`
}

// AttemptFilter narrows attempt log queries. Zero values mean "any".
type AttemptFilter struct {
	SessionID  string
	Capability Capability
	Success    *bool
	ErrorKind  ErrorKind
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// HealthInfo is the ephemeral result of one provider probe.
type HealthInfo struct {
	ProviderID   string       `json:"provider_id"`
	OK           bool         `json:"ok"`
	ProtocolType ProtocolType `json:"protocol_type"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	Message      string       `json:"message"`
	LatencyMS    int64        `json:"latency_ms"`
	CheckedAt    time.Time    `json:"checked_at"`
}
