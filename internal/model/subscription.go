package model

import "time"

type PushSubscription struct {
	ID        int64
	UserID    string
	Endpoint  string
	AuthKey   string
	P256dhKey string
	IsActive  bool
	CreatedAt time.Time
}
