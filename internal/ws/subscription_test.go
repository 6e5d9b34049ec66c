package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"diamondauction/internal/broadcast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapEventMovesNameOutOfBody(t *testing.T) {
	out, err := wrapEvent([]byte(`{"version":1,"event":"auction-closed","auction_id":"a1","winning_amount":"150.01"}`))
	require.NoError(t, err)

	var got struct {
		Event string         `json:"event"`
		Body  map[string]any `json:"body"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "auction-closed", got.Event)
	assert.Equal(t, "a1", got.Body["auction_id"])
	assert.Equal(t, "150.01", got.Body["winning_amount"])
	assert.NotContains(t, got.Body, "event")

	out, err = wrapEvent([]byte(`{"auction_id":"a1"}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"event":"unknown"`)

	_, err = wrapEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestSubscriptionManagerRefCounts(t *testing.T) {
	local := broadcast.NewLocal(8)
	sm := newSubscriptionManager(LocalFeed(local), NewHub())

	ctx := context.Background()
	require.NoError(t, sm.Subscribe(ctx, "a1"))
	require.NoError(t, sm.Subscribe(ctx, "a1"))
	assert.Equal(t, 1, local.Subscribers("a1"))
	assert.Equal(t, 2, sm.active("a1"))

	sm.Unsubscribe("a1")
	assert.Equal(t, 1, local.Subscribers("a1"))

	sm.Unsubscribe("a1")
	assert.Equal(t, 0, local.Subscribers("a1"))
	assert.Equal(t, 0, sm.active("a1"))

	// unbalanced calls are ignored
	sm.Unsubscribe("a1")
	assert.Equal(t, 0, sm.active("a1"))
}

func TestLocalFeedEncodesEvents(t *testing.T) {
	local := broadcast.NewLocal(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, release, err := LocalFeed(local)(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, local.Publish(ctx, broadcast.Event{
		Name:      broadcast.EventAuctionStarted,
		AuctionID: "a1",
		Body:      broadcast.AuctionStartedBody{AuctionID: "a1", Message: "Auction started"},
	}))

	payload := <-msgs
	assert.Contains(t, string(payload), `"event":"auction-started"`)
	assert.Contains(t, string(payload), `"message":"Auction started"`)

	release()
	_, open := <-msgs
	assert.False(t, open)
}

func TestSubscribeReportsFeedFailure(t *testing.T) {
	local := broadcast.NewLocal(8)
	var attempts atomic.Int32
	feed := func(ctx context.Context, auctionID string) (<-chan []byte, func(), error) {
		if attempts.Add(1) == 1 {
			return nil, nil, errors.New("subscribe not confirmed")
		}
		return LocalFeed(local)(ctx, auctionID)
	}
	sm := newSubscriptionManager(feed, NewHub())
	ctx := context.Background()

	require.Error(t, sm.Subscribe(ctx, "a1"))
	assert.Equal(t, 0, sm.active("a1"))
	assert.Equal(t, 0, local.Subscribers("a1"))

	require.NoError(t, sm.Subscribe(ctx, "a1"))
	assert.Equal(t, 1, sm.active("a1"))
	assert.Equal(t, 1, local.Subscribers("a1"))

	sm.Unsubscribe("a1")
	assert.Eventually(t, func() bool { return local.Subscribers("a1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeWaitsForOpeningFeed(t *testing.T) {
	local := broadcast.NewLocal(8)
	opening := make(chan struct{})
	proceed := make(chan struct{})
	feed := func(ctx context.Context, auctionID string) (<-chan []byte, func(), error) {
		close(opening)
		<-proceed
		return LocalFeed(local)(ctx, auctionID)
	}
	sm := newSubscriptionManager(feed, NewHub())

	first := make(chan error, 1)
	go func() { first <- sm.Subscribe(context.Background(), "a1") }()
	<-opening

	// a second joiner that gives up early drops its reference
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sm.Subscribe(ctx, "a1"), context.DeadlineExceeded)
	assert.Equal(t, 1, sm.active("a1"))

	close(proceed)
	require.NoError(t, <-first)
	assert.Equal(t, 1, local.Subscribers("a1"))
}
