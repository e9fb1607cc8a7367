// Package eligibility decides whether a recipient's reminder is due at a given instant.
package eligibility

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on minimal images

	"dailyverse/internal/model"
)

const (
	// Window is the tolerance around the preferred local time. It matches a
	// batch cadence of 15 minutes.
	Window = 15 * time.Minute

	fallbackHour   = 8
	fallbackMinute = 0
)

// IsEligible reports whether now falls inside pref's delivery window.
// It returns false for inactive recipients, recipients without channels,
// and recipients that already received today's message.
func IsEligible(now time.Time, pref model.RecipientPreference, alreadySentToday bool) bool {
	if alreadySentToday || !pref.IsActive || !pref.HasChannel() {
		return false
	}
	return InWindow(now, pref.Timezone, pref.PreferredLocalTime)
}

// InWindow compares the local wall clock in tz against preferred ("HH:MM") and
// accepts an absolute difference up to Window, wrapping around midnight.
func InWindow(now time.Time, tz, preferred string) bool {
	const day = 24 * time.Hour

	local := now.In(Location(tz))
	localClock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	h, m := ParsePreferredTime(preferred)
	prefClock := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute

	diff := localClock - prefClock
	if diff < 0 {
		diff = -diff
	}
	if diff > day/2 {
		diff = day - diff
	}
	return diff <= Window
}

// Location resolves an IANA zone name. Empty or unknown names resolve to UTC.
func Location(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParsePreferredTime parses "HH:MM" (seconds are tolerated and ignored).
// Anything malformed yields 08:00.
func ParsePreferredTime(s string) (hour, minute int) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fallbackHour, fallbackMinute
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fallbackHour, fallbackMinute
	}
	return h, m
}
