package ws

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"diamondauction/internal/auctionerr"
)

type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error)

// Router maps client event names to handlers. All handlers are registered
// before the server accepts connections; dispatch never mutates the map.
type Router struct {
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds event to a handler that receives the decoded body.
func Register[Req any, Res any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) (Res, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}
	if _, dup := r.handlers[event]; dup {
		panic("ws router: duplicate event " + event)
	}
	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, auctionerr.Invalid("malformed %s body: %v", event, err)
			}
		}
		return h(ctx, c, req)
	}
}

// Events lists the registered event names.
func (r *Router) Events() []string {
	out := make([]string, 0, len(r.handlers))
	for e := range r.handlers {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) (any, error) {
	h, ok := r.handlers[env.Event]
	if !ok {
		return nil, auctionerr.Invalid("unknown event %q, expected one of %s", env.Event, strings.Join(r.Events(), ", "))
	}
	return h(ctx, c, env.Body)
}
