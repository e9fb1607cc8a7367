package mq

import "time"

// Routing keys published through the outbox.
const (
	RoutingKeyNotificationDelivered = "notification.delivered"
	RoutingKeyNotificationFailed    = "notification.failed"
	RoutingKeyRunCompleted          = "delivery.run.completed"
	RoutingKeyErrorRateAlert        = "delivery.alert.error_rate"
)

type NotificationDeliveredPayload struct {
	RunID            string    `json:"run_id,omitempty"`
	DeliveryRecordID int64     `json:"delivery_record_id"`
	UserID           string    `json:"user_id"`
	Channel          string    `json:"channel"`
	Title            string    `json:"title"`
	IsTest           bool      `json:"is_test"`
	SentAt           time.Time `json:"sent_at"`
}

type NotificationFailedPayload struct {
	RunID            string    `json:"run_id,omitempty"`
	DeliveryRecordID int64     `json:"delivery_record_id"`
	UserID           string    `json:"user_id"`
	Error            string    `json:"error"`
	IsTest           bool      `json:"is_test"`
	FailedAt         time.Time `json:"failed_at"`
}
