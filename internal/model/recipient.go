package model

import "strings"

// ExperienceTier selects the message pool a recipient draws from.
type ExperienceTier string

const (
	TierBeginner     ExperienceTier = "beginner"
	TierIntermediate ExperienceTier = "intermediate"
	TierAdvanced     ExperienceTier = "advanced"
)

// ParseTier maps free-form input onto a known tier; anything unknown is beginner.
func ParseTier(s string) ExperienceTier {
	switch ExperienceTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierIntermediate:
		return TierIntermediate
	case TierAdvanced:
		return TierAdvanced
	default:
		return TierBeginner
	}
}

// RecipientPreference is one user's reminder settings, read-only to the pipeline.
type RecipientPreference struct {
	UserID             string
	Email              string
	Timezone           string // IANA zone, e.g. "Asia/Tokyo"
	PreferredLocalTime string // "HH:MM"
	PushEnabled        bool
	EmailEnabled       bool
	IsActive           bool
	ExperienceTier     ExperienceTier
}

// HasChannel reports whether at least one channel is switched on.
func (p RecipientPreference) HasChannel() bool {
	return p.PushEnabled || p.EmailEnabled
}
