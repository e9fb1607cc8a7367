// Package channel delivers a generated message over one transport and reduces
// every transport result to a closed Outcome.
package channel

import (
	"context"

	"dailyverse/internal/model"
)

type Kind int

const (
	Delivered Kind = iota
	TransientFailure
	PermanentFailure
)

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Outcome is the only thing callers branch on; raw status codes stay inside the senders.
type Outcome struct {
	Kind   Kind
	Detail string
}

func Success() Outcome {
	return Outcome{Kind: Delivered}
}

func Transient(detail string) Outcome {
	return Outcome{Kind: TransientFailure, Detail: detail}
}

func Permanent(detail string) Outcome {
	return Outcome{Kind: PermanentFailure, Detail: detail}
}

func (o Outcome) Delivered() bool {
	return o.Kind == Delivered
}

// PushSender delivers to a single device subscription.
type PushSender interface {
	Send(ctx context.Context, sub model.PushSubscription, msg model.GeneratedMessage) Outcome
}

// EmailSender delivers to a single address.
type EmailSender interface {
	Send(ctx context.Context, to string, msg model.GeneratedMessage) Outcome
}
