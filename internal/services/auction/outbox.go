package auction

import (
	"context"
	"sync"
	"time"

	"diamondauction/internal/broadcast"

	"go.uber.org/zap"
)

// outbox holds one auction's events in commit order. Events are queued
// while the auction lock is held and delivered after it is released, so a
// slow or failing broadcaster never stalls bidding. send serializes
// delivery; whoever holds it drains the queue in order.
type outbox struct {
	mu      sync.Mutex
	pending []broadcast.Event
	send    sync.Mutex
}

func (o *outbox) push(ev broadcast.Event) {
	o.mu.Lock()
	o.pending = append(o.pending, ev)
	o.mu.Unlock()
}

func (o *outbox) take() []broadcast.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

// enqueue queues ev for delivery. Caller holds the auction lock.
func (svc *auctionService) enqueue(ev broadcast.Event) {
	if svc.bc == nil {
		return
	}
	box, _ := svc.outboxes.LoadOrCompute(ev.AuctionID, func() *outbox { return &outbox{} })
	box.push(ev)
}

// flush delivers everything queued for the auction. It returns once the
// events queued before the call have been handed to the broadcaster, by
// this caller or by a concurrent one. The caller's cancellation does not
// abort delivery of already committed changes.
func (svc *auctionService) flush(ctx context.Context, auctionID string) {
	box, ok := svc.outboxes.Load(auctionID)
	if !ok {
		return
	}
	ctx = context.WithoutCancel(ctx)
	box.send.Lock()
	defer box.send.Unlock()
	for {
		evs := box.take()
		if len(evs) == 0 {
			return
		}
		for _, ev := range evs {
			svc.deliver(ctx, ev)
		}
	}
}

// deliver publishes ev with a bounded number of retries.
func (svc *auctionService) deliver(ctx context.Context, ev broadcast.Event) {
	attempts := svc.opts.PublishRetries + 1
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(svc.opts.PublishBackoff * time.Duration(i))
		}
		if err = svc.bc.Publish(ctx, ev); err == nil {
			return
		}
	}
	zap.L().Error("auction.broadcast_failed",
		zap.String("auction_id", ev.AuctionID),
		zap.String("event", ev.Name),
		zap.Int("attempts", attempts),
		zap.Error(err))
}
