package mq

import "time"

type RunCompletedPayload struct {
	RunID             string    `json:"run_id"`
	RunTime           time.Time `json:"run_time"`
	UsersProcessed    int       `json:"users_processed"`
	NotificationsSent int       `json:"notifications_sent"`
	Errors            int       `json:"errors"`
	ErrorRate         float64   `json:"error_rate"`
	DurationMs        int64     `json:"duration_ms"`
}

type ErrorRateAlertPayload struct {
	RunID     string    `json:"run_id"`
	Severity  string    `json:"severity"`
	ErrorRate float64   `json:"error_rate"`
	Threshold float64   `json:"threshold"`
	Errors    int       `json:"errors"`
	Processed int       `json:"users_processed"`
	RaisedAt  time.Time `json:"raised_at"`
}

// RoutingKeyRunRequested lets an external scheduler trigger a run.
const RoutingKeyRunRequested = "delivery.run.requested"

// RunRequestedPayload asks for a run. A non-empty TestUserID requests a test
// send to that user instead of a full cycle.
type RunRequestedPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by,omitempty"`
	TestUserID  string    `json:"test_user_id,omitempty"`
}
