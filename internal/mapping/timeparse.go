package mapping

import (
	"strconv"
	"strings"
	"time"
)

// ParseReportedAt parses a reported-at value: RFC 3339 first, then the
// "02 Jan 2006 15:04:05" form some feeds emit, then integer epoch
// (seconds or milliseconds by magnitude).
func ParseReportedAt(value string) *time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("02 Jan 2006 15:04:05", value); err == nil {
		return &t
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return parseEpochSecondsOrMillis(ts)
	}
	return nil
}

func parseEpochSecondsOrMillis(ts int64) *time.Time {
	// Epoch millis are ~1.7e12, epoch seconds ~1.7e9.
	millis := ts
	if abs(ts) <= 100_000_000_000 {
		millis = ts * 1000
	}
	t := time.UnixMilli(millis).UTC()
	return &t
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// ParseDurationSecondsValue normalizes a duration leaf of any JSON type.
func ParseDurationSecondsValue(value any) *int64 {
	switch v := value.(type) {
	case float64:
		return normalizeDurationToSeconds(int64(v + 0.5))
	case int64:
		return normalizeDurationToSeconds(v)
	case int:
		return normalizeDurationToSeconds(int64(v))
	case string:
		return ParseDurationSecondsStr(v)
	}
	return nil
}

// ParseDurationSecondsStr parses a duration string: a minimal ISO-8601
// "PT…" form, or a bare integer normalized by magnitude.
func ParseDurationSecondsStr(value string) *int64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil
	}

	if strings.HasPrefix(s, "PT") {
		return parseISO8601DurationSeconds(s)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return normalizeDurationToSeconds(n)
}

// parseISO8601DurationSeconds handles strings like PT3M30S, PT180S, PT1H2M.
func parseISO8601DurationSeconds(value string) *int64 {
	rest := strings.TrimPrefix(value, "PT")
	var total int64

	for rest != "" {
		idx := strings.IndexAny(rest, "HMS")
		if idx < 0 {
			return nil
		}
		num, err := strconv.ParseInt(rest[:idx], 10, 64)
		if err != nil {
			return nil
		}
		switch rest[idx] {
		case 'H':
			total += num * 3600
		case 'M':
			total += num * 60
		case 'S':
			total += num
		}
		rest = rest[idx+1:]
	}

	return &total
}

// normalizeDurationToSeconds interprets a raw integer duration: huge values
// are nanoseconds, moderately large values milliseconds, the rest seconds.
// Non-positive durations are rejected.
func normalizeDurationToSeconds(raw int64) *int64 {
	if raw <= 0 {
		return nil
	}

	seconds := raw
	switch {
	case raw > 1_000_000_000:
		seconds = raw / 1_000_000_000
	case raw > 100_000:
		seconds = raw / 1000
	}

	if seconds <= 0 {
		return nil
	}
	return &seconds
}
