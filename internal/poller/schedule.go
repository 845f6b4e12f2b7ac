package poller

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/np-engine/internal/database"
)

// maxJitterSeconds is the spread added to every scheduled delay.
const maxJitterSeconds = 5

// jitterSeconds derives a deterministic per-connection offset in
// [0, maxJitter] from SHA-256 over the connection id and the current epoch
// second. Stable within a calendar second, so overlapping pollers for the
// same connection compute the same schedule.
func jitterSeconds(connID uuid.UUID, now time.Time, maxJitter int64) int64 {
	if maxJitter <= 0 {
		return 0
	}

	h := sha256.New()
	h.Write(connID[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(now.Unix()))
	h.Write(ts[:])
	sum := h.Sum(nil)

	n := binary.LittleEndian.Uint64(sum[:8])
	return int64(n % uint64(maxJitter+1))
}

// scheduleAfter returns now + max(1, base + jitter) seconds.
func scheduleAfter(connID uuid.UUID, now time.Time, baseSeconds int64) time.Time {
	delay := baseSeconds + jitterSeconds(connID, now, maxJitterSeconds)
	if delay < 1 {
		delay = 1
	}
	return now.Add(time.Duration(delay) * time.Second)
}

// nextErrorBackoffSeconds advances the error backoff: 30 on the first
// failure, then doubling up to 120.
func nextErrorBackoffSeconds(current int) int {
	if current == 0 {
		return 30
	}
	next := current * 2
	if next > 120 {
		return 120
	}
	return next
}

// nextSameSongBackoffSeconds advances the same-song backoff: a jittered
// value in [10, 30] on the first duplicate, then 30, 60, 120, 120.
func nextSameSongBackoffSeconds(current int, connID uuid.UUID, now time.Time) int {
	if current <= 0 {
		return 10 + int(jitterSeconds(connID, now, 20))
	}
	switch {
	case current < 30:
		return 30
	case current < 60:
		return 60
	default:
		return 120
	}
}

// shouldPoll decides whether an HTTP connection is due. A scheduled
// next_poll_at takes precedence; otherwise a never-polled connection is due
// immediately, and a polled one when the interval has elapsed.
func shouldPoll(conn *database.Connection, now time.Time) bool {
	if conn.NextPollAt != nil {
		return !now.Before(*conn.NextPollAt)
	}
	if conn.LastPolledAt == nil {
		return true
	}
	return now.Sub(*conn.LastPolledAt) >= time.Duration(conn.PollIntervalSeconds)*time.Second
}
