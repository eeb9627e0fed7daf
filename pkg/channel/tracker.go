package channel

import (
	"slices"
	"sync"
	"time"
)

// channelTracker tracks the channels a factory has created so they can be
// shut down with it. The factory does not own them.
type channelTracker struct {
	mu       sync.Mutex
	channels map[*Channel]time.Time
}

func newChannelTracker() *channelTracker {
	return &channelTracker{channels: make(map[*Channel]time.Time)}
}

// Add registers a channel with the current time.
func (ct *channelTracker) Add(ch *Channel) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.channels[ch] = time.Now()
}

// Remove deregisters a channel. Safe to call on absent channels.
func (ct *channelTracker) Remove(ch *Channel) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.channels, ch)
}

// Drain removes and returns all tracked channels, oldest first.
func (ct *channelTracker) Drain() []*Channel {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]*Channel, 0, len(ct.channels))
	for ch := range ct.channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *Channel) int {
		return ct.channels[a].Compare(ct.channels[b])
	})
	clear(ct.channels)
	return out
}

// Len returns the number of tracked channels.
func (ct *channelTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.channels)
}
