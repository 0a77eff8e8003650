package domain

import "time"

// DiagnosticStatus indicates the outcome of a single health check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one health check result with optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates health checks for the API response.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	HasFailures bool             `json:"has_failures"`
	Items       []DiagnosticItem `json:"items"`
}
