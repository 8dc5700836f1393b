package chat

import "time"

// allow applies a fixed window limit. It returns the updated window and, when
// refused, how long until the window resets.
func allow(now, start time.Time, count int, window time.Duration, max int) (newStart time.Time, newCount int, ok bool, cooldown time.Duration) {
	newStart = start
	newCount = count
	if window <= 0 || max <= 0 {
		return newStart, newCount, true, 0
	}

	if now.Sub(newStart) >= window {
		newStart = now
		newCount = 0
	}
	newCount++
	if newCount <= max {
		return newStart, newCount, true, 0
	}
	return newStart, newCount, false, newStart.Add(window).Sub(now)
}
