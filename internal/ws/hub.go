package ws

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Hub keeps one room of connections per auction. A room is dropped as soon
// as its last connection leaves.
type Hub struct {
	rooms *xsync.MapOf[string, *room]
}

func NewHub() *Hub { return &Hub{rooms: xsync.NewMapOf[string, *room]()} }

// Broadcast writes msg to every connection in the auction's room.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	if r, ok := h.rooms.Load(auctionID); ok {
		r.broadcast(msg)
	}
}

func (h *Hub) Join(auctionID string, c *clientConn) {
	h.rooms.Compute(auctionID, func(r *room, loaded bool) (*room, bool) {
		if !loaded {
			r = newRoom()
		}
		r.add(c)
		return r, false
	})
}

func (h *Hub) Leave(auctionID string, c *clientConn) {
	h.rooms.Compute(auctionID, func(r *room, loaded bool) (*room, bool) {
		if !loaded {
			return r, true
		}
		r.remove(c)
		return r, r.size() == 0
	})
}

// Members reports how many connections sit in the auction's room.
func (h *Hub) Members(auctionID string) int {
	if r, ok := h.rooms.Load(auctionID); ok {
		return r.size()
	}
	return 0
}

// Rooms reports how many auctions have at least one connection.
func (h *Hub) Rooms() int { return h.rooms.Size() }
