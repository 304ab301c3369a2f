package queue

import "time"

// Backoff is a retry delay table indexed by attempt number. Attempts past
// the end of the table reuse the last entry.
type Backoff []time.Duration

var DefaultBackoff = Backoff{5 * time.Minute, 15 * time.Minute, 30 * time.Minute}

func (b Backoff) Delay(attempt int) time.Duration {
	if len(b) == 0 {
		return DefaultBackoff.Delay(attempt)
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b) {
		idx = len(b) - 1
	}
	return b[idx]
}
