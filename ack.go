package connect

import (
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by Ack for an offset the consumer never read.
var ErrUnknownEvent = errors.New("ack for unknown event offset")

// ackTracker holds the offsets of delivered-but-unacknowledged events in
// delivery order. Acks can arrive in any order; only the highest offset with
// no unacked predecessor is safe to persist, because resume replays
// everything after the stored offset.
type ackTracker struct {
	order []string
	acked map[string]bool
}

func newAckTracker() *ackTracker {
	return &ackTracker{acked: make(map[string]bool)}
}

// record notes a delivered event. Recording an offset twice (a redelivery
// after reconnect) is a no-op.
func (t *ackTracker) record(offset string) {
	if _, ok := t.acked[offset]; ok {
		return
	}
	t.acked[offset] = false
	t.order = append(t.order, offset)
}

// ack marks an offset acknowledged and returns the newest offset that is now
// safe to persist, or "" when an older event is still outstanding.
func (t *ackTracker) ack(offset string) (commit string, err error) {
	if _, ok := t.acked[offset]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, offset)
	}
	t.acked[offset] = true
	for len(t.order) > 0 && t.acked[t.order[0]] {
		commit = t.order[0]
		delete(t.acked, t.order[0])
		t.order = t.order[1:]
	}
	return commit, nil
}

// outstanding reports how many delivered events still await an ack.
func (t *ackTracker) outstanding() int { return len(t.order) }
