package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Local is an in-process Broadcaster with channel-scoped subscriber sets.
type Local struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

var _ Broadcaster = (*Local)(nil)

// NewLocal returns a broadcaster whose subscribers buffer up to buffer
// events; a subscriber whose buffer is full misses the event.
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 64
	}
	return &Local{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

type Subscription struct {
	C         <-chan Event
	ch        chan Event
	auctionID string
	owner     *Local
	once      sync.Once
}

// Join subscribes to one auction's channel.
func (l *Local) Join(auctionID string) *Subscription {
	ch := make(chan Event, l.buffer)
	s := &Subscription{C: ch, ch: ch, auctionID: auctionID, owner: l}
	l.mu.Lock()
	room, ok := l.subs[auctionID]
	if !ok {
		room = make(map[*Subscription]struct{})
		l.subs[auctionID] = room
	}
	room[s] = struct{}{}
	l.mu.Unlock()
	return s
}

// Leave unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Leave() {
	s.once.Do(func() {
		l := s.owner
		l.mu.Lock()
		if room, ok := l.subs[s.auctionID]; ok {
			delete(room, s)
			if len(room) == 0 {
				delete(l.subs, s.auctionID)
			}
		}
		close(s.ch)
		l.mu.Unlock()
	})
}

func (l *Local) Publish(_ context.Context, ev Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for s := range l.subs[ev.AuctionID] {
		select {
		case s.ch <- ev:
		default:
			zap.L().Debug("broadcast.dropped",
				zap.String("auction_id", ev.AuctionID),
				zap.String("event", ev.Name))
		}
	}
	return nil
}

// Subscribers reports how many subscribers an auction channel has.
func (l *Local) Subscribers(auctionID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[auctionID])
}
