package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"diamondauction/internal/broadcast"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed opens the stream of encoded events for one auction. It returns only
// once the stream is live, so nothing published afterwards is missed. The
// returned release func stops the stream and closes msgs.
type Feed func(ctx context.Context, auctionID string) (msgs <-chan []byte, release func(), err error)

// subscribeTimeout bounds the wait for Redis to confirm a SUBSCRIBE.
const subscribeTimeout = 3 * time.Second

// RedisFeed reads events other instances publish on "auc:<id>:events".
func RedisFeed(rdb *redis.Client) Feed {
	return func(ctx context.Context, auctionID string) (<-chan []byte, func(), error) {
		ps := rdb.Subscribe(ctx, broadcast.ChannelFor(auctionID))

		// Subscribe does not wait for the server; Receive does.
		confirmCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
		_, err := ps.Receive(confirmCtx)
		cancel()
		if err != nil {
			_ = ps.Close()
			return nil, nil, err
		}

		out := make(chan []byte)
		go func() {
			defer close(out)
			ch := ps.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-ch:
					if !ok { // Redis connection closed.
						return
					}
					select {
					case out <- []byte(m.Payload):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, func() { _ = ps.Close() }, nil
	}
}

// LocalFeed reads events from an in-process broadcaster.
func LocalFeed(l *broadcast.Local) Feed {
	return func(ctx context.Context, auctionID string) (<-chan []byte, func(), error) {
		sub := l.Join(auctionID)
		out := make(chan []byte)
		go func() {
			defer close(out)
			for ev := range sub.C {
				payload, err := broadcast.Encode(ev)
				if err != nil {
					zap.L().Warn("ws.encode_event_failed", zap.String("event", ev.Name), zap.Error(err))
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, sub.Leave, nil
	}
}

// subscriptionManager guarantees that we have **exactly one** feed
// subscription per auction, no matter how many websocket clients join the
// same auction room.
type subscriptionManager struct {
	feed Feed
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // auctionID ➜ subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
	ready  chan struct{} // closed once the feed is open or has failed
	err    error
}

func newSubscriptionManager(feed Feed, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		feed: feed,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe ensures that the process is subscribed to the auction's events
// and returns once the feed is live. Subsequent calls for the same auction
// only increment the ref-counter. On error no reference is held.
func (sm *subscriptionManager) Subscribe(ctx context.Context, auctionID string) error {
	sm.mu.Lock()
	if e, ok := sm.subs[auctionID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		select {
		case <-e.ready:
			// a failed entry is already gone from the map
			return e.err
		case <-ctx.Done():
			sm.unref(auctionID, e)
			return ctx.Err()
		}
	}

	// First consumer → open the feed outside the lock, other auctions
	// must not wait on this one's round trip.
	fctx, cancel := context.WithCancel(context.Background())
	e := &subEntry{refCnt: 1, cancel: cancel, ready: make(chan struct{})}
	sm.subs[auctionID] = e
	sm.mu.Unlock()

	msgs, release, err := sm.feed(fctx, auctionID)
	if err != nil {
		cancel()
		sm.mu.Lock()
		if sm.subs[auctionID] == e {
			delete(sm.subs, auctionID)
		}
		e.err = err
		sm.mu.Unlock()
		close(e.ready)
		zap.L().Warn("ws.feed_open_failed", zap.String("auction_id", auctionID), zap.Error(err))
		return err
	}
	close(e.ready)

	go func() {
		defer release()
		for {
			select {
			case <-fctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}

				// Wrap the flat payload into the public WS envelope so that
				// all frames respect the same router contract format.
				wrapped, err := wrapEvent(m)
				if err != nil {
					zap.L().Warn("ws.wrap_event_failed", zap.Error(err))
					wrapped = m // Fallback: forward as-is.
				}
				sm.hub.Broadcast(auctionID, wrapped)
			}
		}
	}()
	return nil
}

// Unsubscribe decrements the ref-counter and tears the feed down when the
// last websocket client leaves the room.
func (sm *subscriptionManager) Unsubscribe(auctionID string) {
	sm.mu.Lock()
	e, ok := sm.subs[auctionID]
	sm.mu.Unlock()
	if ok {
		sm.unref(auctionID, e)
	}
}

// unref drops one reference from e, provided e is still the auction's
// current entry.
func (sm *subscriptionManager) unref(auctionID string, e *subEntry) {
	sm.mu.Lock()
	if sm.subs[auctionID] != e {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, auctionID)
	sm.mu.Unlock()

	// Outside the lock → stop the fan-out goroutine.
	e.cancel()
}

func (sm *subscriptionManager) active(auctionID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if e, ok := sm.subs[auctionID]; ok {
		return e.refCnt
	}
	return 0
}

// wrapEvent turns
//
//	{"version":1,"event":"new-bid","auction_id":"…",…}
//
// into
//
//	{"event":"new-bid","body":{"version":1,"auction_id":"…",…}}
func wrapEvent(payload []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	var evt string
	if v, ok := raw["event"]; ok {
		_ = json.Unmarshal(v, &evt)
	}
	if evt == "" {
		evt = "unknown"
	}
	delete(raw, "event") // Avoid duplication inside "body".

	return json.Marshal(map[string]any{
		"event": evt,
		"body":  raw,
	})
}
