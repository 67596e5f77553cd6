package relay

import (
	"context"

	"bolt/config"
	"bolt/logging"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/time/rate"
)

// connection is the transport adapter for one websocket client. Frames are
// read and fully answered one at a time; responses for message N are always
// written before message N+1 is read.
type connection struct {
	ws      *websocket.Conn
	session *session
	limiter *rate.Limiter
	remote  string
}

func newConnection(ws *websocket.Conn, s *session, remote string, cfg *config.Config) *connection {
	ws.SetReadLimit(int64(cfg.Limits.MaxMessageLength))
	return &connection{
		ws:      ws,
		session: s,
		// enough for interactive clients, not enough for floods
		limiter: rate.NewLimiter(rate.Limit(cfg.MessageRateLimit), cfg.MessageRateBurst),
		remote:  remote,
	}
}

// run processes frames until the peer disconnects or a store failure makes
// further responses unsafe. gorilla answers pings at the control layer and
// surfaces close frames as read errors, so only text and binary frames reach
// the dispatch here.
func (c *connection) run(ctx context.Context) {
	defer c.ws.Close()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.DebugMethod("relay", "run", "client %s closed the connection", c.remote)
			} else {
				logging.DebugMethod("relay", "run", "read from %s failed: %v", c.remote, err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			if err := c.write(noticeMessage("binary messages are not supported")); err != nil {
				return
			}
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !c.limiter.Allow() {
			if err := c.write(noticeMessage("rate-limited: slow down")); err != nil {
				return
			}
			continue
		}

		responses, err := c.session.handleFrame(ctx, data)
		if err != nil {
			// store failure: no response can be trusted, close instead of
			// leaving the client guessing
			logging.Error("store failure on connection %s: %v", c.remote, err)
			return
		}
		for _, env := range responses {
			if err := c.write(env); err != nil {
				logging.DebugMethod("relay", "run", "write to %s failed: %v", c.remote, err)
				return
			}
		}
	}
}

func (c *connection) write(env nostr.Envelope) error {
	data, err := EncodeRelayMessage(env)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
