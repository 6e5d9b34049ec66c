package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/broadcast"
	"diamondauction/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	maxMessageSize = 4096
	handlerTimeout = 1900 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// ConnContext is the per-connection state handed to every router handler.
type ConnContext struct {
	UserID string
	Server *WsServer

	conn  *clientConn
	rooms map[string]struct{}
	last  string // auction joined most recently
}

// target resolves the auction a frame refers to.
func (cc *ConnContext) target(auctionID string) (string, error) {
	if auctionID != "" {
		return auctionID, nil
	}
	if cc.last == "" {
		return "", auctionerr.Invalid("auction_id is required")
	}
	return cc.last, nil
}

type WsServer struct {
	hub        *Hub
	subMgr     *subscriptionManager
	router     *Router
	auctionSvc auction.IAuctionService
}

func NewWsServer(h *Hub, feed Feed, auctionSvc auction.IAuctionService) *WsServer {
	router := NewRouter()
	srv := &WsServer{
		hub:        h,
		subMgr:     newSubscriptionManager(feed, h),
		router:     router,
		auctionSvc: auctionSvc,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	userID := ginCtx.Query("user_id")
	if userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required", "code": auctionerr.ErrInvalidInput.Code})
		return
	}
	auctionID := ginCtx.Query("auction_id")

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	// ─────────────────── Client connected ────────────────────────
	cc := &ConnContext{
		UserID: userID,
		Server: s,
		conn:   &clientConn{rawConn: rawConn},
		rooms:  map[string]struct{}{},
	}
	if auctionID != "" {
		if err := s.join(ginCtx.Request.Context(), cc, auctionID); err != nil {
			s.writeError(cc.conn, err)
		}
	}

	done := make(chan struct{})
	go s.reader(cc, done)
	go s.pinger(cc.conn, done)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, EventJoinAuction,
		func(ctx context.Context, cc *ConnContext, req JoinRequest) (JoinAck, error) {
			if req.AuctionID == "" {
				return JoinAck{}, auctionerr.Invalid("auction_id is required")
			}
			return JoinAck{AuctionID: req.AuctionID}, s.join(ctx, cc, req.AuctionID)
		},
	)

	Register(s.router, EventLeaveAuction,
		func(ctx context.Context, cc *ConnContext, req JoinRequest) (JoinAck, error) {
			id, err := cc.target(req.AuctionID)
			if err != nil {
				return JoinAck{}, err
			}
			s.leave(cc, id)
			return JoinAck{AuctionID: id}, nil
		},
	)

	Register(s.router, EventBid,
		func(ctx context.Context, cc *ConnContext, req BidRequest) (BidAck, error) {
			id, err := cc.target(req.AuctionID)
			if err != nil {
				return BidAck{}, err
			}
			if !req.Amount.IsPositive() {
				return BidAck{}, auctionerr.Invalid("amount must be positive")
			}
			a, err := s.auctionSvc.PlaceBid(ctx, id, cc.UserID, req.Amount)
			if err != nil {
				return BidAck{}, err
			}
			return BidAck{AuctionID: id, CurrentPrice: a.CurrentPrice, HighestBidderID: a.LeaderID()}, nil
		},
	)

	Register(s.router, EventAutoBid,
		func(ctx context.Context, cc *ConnContext, req AutoBidRequest) (BidAck, error) {
			id, err := cc.target(req.AuctionID)
			if err != nil {
				return BidAck{}, err
			}
			if !req.MaxAmount.IsPositive() {
				return BidAck{}, auctionerr.Invalid("max_amount must be positive")
			}
			a, err := s.auctionSvc.SetAutoBid(ctx, id, cc.UserID, req.MaxAmount)
			if err != nil {
				return BidAck{}, err
			}
			return BidAck{AuctionID: id, CurrentPrice: a.CurrentPrice, HighestBidderID: a.LeaderID()}, nil
		},
	)
}

// join adds the connection to the auction's room and pushes the current
// state, which is how a reconnecting client catches up. The room and the
// feed are set up before the snapshot is read, so a bid committed in
// between arrives as an event instead of falling in the gap.
func (s *WsServer) join(ctx context.Context, cc *ConnContext, auctionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	if _, err := s.auctionSvc.GetAuction(ctx, auctionID); err != nil {
		return err
	}
	fresh := false
	if _, ok := cc.rooms[auctionID]; !ok {
		s.hub.Join(auctionID, cc.conn)
		if err := s.subMgr.Subscribe(ctx, auctionID); err != nil {
			s.hub.Leave(auctionID, cc.conn)
			return auctionerr.Internal(err)
		}
		cc.rooms[auctionID] = struct{}{}
		fresh = true
	}

	snap, err := s.auctionSvc.CurrentBid(ctx, auctionID)
	if err != nil {
		if fresh {
			s.leave(cc, auctionID)
		}
		return err
	}
	cc.last = auctionID

	return cc.conn.writeJSON(map[string]any{
		"event": broadcast.EventSnapshot,
		"body":  snap,
	})
}

func (s *WsServer) leave(cc *ConnContext, auctionID string) {
	if _, ok := cc.rooms[auctionID]; !ok {
		return
	}
	delete(cc.rooms, auctionID)
	s.hub.Leave(auctionID, cc.conn)
	s.subMgr.Unsubscribe(auctionID)
	if cc.last == auctionID {
		cc.last = ""
	}
}

func (s *WsServer) reader(cc *ConnContext, done chan struct{}) {
	conn := cc.conn
	defer func() {
		for id := range cc.rooms {
			s.leave(cc, id)
		}
		conn.close()
		close(done)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				zap.L().Debug("ws.read", zap.String("user_id", cc.UserID), zap.Error(err))
			}
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			s.writeError(conn, err)
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		reply := map[string]any{"event": env.Event + "-ack"}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) writeError(conn *clientConn, err error) {
	body := ErrorBody{Error: err.Error(), Code: auctionerr.CodeOf(err)}
	if auctionerr.KindOf(err) == auctionerr.KindInternal {
		zap.L().Error("ws.handler_failed", zap.Error(err))
		body.Error = auctionerr.ErrInternal.Message
	}
	_ = conn.writeJSON(map[string]any{
		"event": EventError,
		"body":  body,
	})
}

func (s *WsServer) pinger(conn *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				conn.close()
				return
			}
		}
	}
}
