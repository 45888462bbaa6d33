package stream

import "time"

// latencyTracker correlates chunk send times with result arrivals to
// measure round-trip latency. It is mutated only from the Streamer's run
// goroutine and therefore needs no locking.
type latencyTracker struct {
	pending map[uint64]time.Time
	total   time.Duration
	acked   uint64
	lost    uint64
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{pending: make(map[uint64]time.Time)}
}

// Track records the send time of a chunk keyed by its sequence number.
func (t *latencyTracker) Track(seq uint64, at time.Time) {
	t.pending[seq] = at
}

// Ack resolves the entry for seq, folds the sample into the running
// average, and returns the measured round trip. The second return is false
// when no entry for seq exists (duplicate or post-reconnect result).
func (t *latencyTracker) Ack(seq uint64, at time.Time) (time.Duration, bool) {
	sent, ok := t.pending[seq]
	if !ok {
		return 0, false
	}
	delete(t.pending, seq)
	rtt := at.Sub(sent)
	if rtt < 0 {
		rtt = 0
	}
	t.total += rtt
	t.acked++
	return rtt, true
}

// Outstanding returns the number of chunks sent but not yet acknowledged.
func (t *latencyTracker) Outstanding() int {
	return len(t.pending)
}

// MarkOutstandingLost counts every unacknowledged entry as a loss and
// clears them. Called when the connection drops: those chunks will never be
// acknowledged and are not replayed.
func (t *latencyTracker) MarkOutstandingLost() int {
	n := len(t.pending)
	t.lost += uint64(n)
	clear(t.pending)
	return n
}

// Average returns the mean round-trip latency over all acknowledged chunks,
// or zero when none have been acknowledged yet.
func (t *latencyTracker) Average() time.Duration {
	if t.acked == 0 {
		return 0
	}
	return t.total / time.Duration(t.acked)
}

// LossRate returns the fraction of resolved chunks that were lost.
func (t *latencyTracker) LossRate() float64 {
	resolved := t.acked + t.lost
	if resolved == 0 {
		return 0
	}
	return float64(t.lost) / float64(resolved)
}

// Clear drops all state, pending entries and statistics alike.
func (t *latencyTracker) Clear() {
	clear(t.pending)
	t.total = 0
	t.acked = 0
	t.lost = 0
}
