package scheduler

import (
	"errors"
	"strings"
	"time"
)

// The two supported cadences.
const (
	Interval15m = 15 * time.Minute
	Interval1h  = time.Hour
)

// ErrInvalidInterval reports a token outside the accepted synonym sets.
// No state changes when it is returned.
var ErrInvalidInterval = errors.New("unrecognized update interval")

// ParseInterval maps a user token to a cadence, or to the disable sentinel
// (off=true). Matching is case-insensitive.
func ParseInterval(token string) (every time.Duration, off bool, err error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "off", "stop", "disable":
		return 0, true, nil
	case "15m", "15min", "15mins":
		return Interval15m, false, nil
	case "1h", "60m", "60min":
		return Interval1h, false, nil
	default:
		return 0, false, ErrInvalidInterval
	}
}

// CadenceLabel renders the human confirmation text for a cadence.
func CadenceLabel(every time.Duration) string {
	switch every {
	case Interval15m:
		return "every 15 minutes"
	case Interval1h:
		return "every 1 hour"
	default:
		return "every " + every.String()
	}
}
