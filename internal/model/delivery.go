package model

import "time"

const NotificationTypeDaily = "daily_spiritual_message"

type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Channel names as stored in metadata and metrics labels.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// DeliveryRecord is the append-only audit row written once per recipient per run.
type DeliveryRecord struct {
	ID               int64
	UserID           string
	NotificationType string
	Title            string
	Message          string
	Status           DeliveryStatus
	IsTest           bool
	DeliveryDate     time.Time // UTC calendar day
	CreatedAt        time.Time
	Metadata         map[string]any
}

// RunSummary is the append-only automation log row for one automated run.
type RunSummary struct {
	ID                string    `json:"id"`
	RunTime           time.Time `json:"run_time"`
	UsersProcessed    int       `json:"users_processed"`
	NotificationsSent int       `json:"notifications_sent"`
	Errors            int       `json:"errors"`
	Timezone          string    `json:"timezone"`
	DurationMs        int64     `json:"duration_ms"`
	ErrorRate         float64   `json:"error_rate"`
	Alerted           bool      `json:"alerted"`
}

// GeneratedMessage is never persisted on its own; its fields end up in DeliveryRecord.
type GeneratedMessage struct {
	Title              string
	Body               string
	ScriptureText      string
	ScriptureReference string
	Tier               ExperienceTier
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
