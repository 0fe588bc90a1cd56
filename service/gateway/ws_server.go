package gateway

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PPKitchen/tools/errs"
	"PPKitchen/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Routes mounts one WebSocket endpoint per variant.
func (g *Gateway) Routes(r gin.IRoutes) {
	for _, v := range g.opts.Variants {
		v := v
		r.GET(v.Path, func(c *gin.Context) { g.ServeWS(v, c.Writer, c.Request) })
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeWS(v Variant, w http.ResponseWriter, r *http.Request) {
	if g.closed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	params := readHandshakeParams(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Info("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	hs := newHandshake(v, g.verifier, g.opts.AuthTimeout)
	if ce := hs.run(r.Context(), params); ce != nil {
		g.opts.Metrics.Handshake(v.Name, "rejected")
		fields := []zap.Field{
			zap.String("variant", v.Name),
			zap.String("remote", r.RemoteAddr),
			zap.Int("closeCode", ce.Code),
		}
		if hs.Cause != nil {
			fields = append(fields, zap.Error(hs.Cause))
		}
		g.log.Info("handshake rejected", fields...)
		g.reject(ws, ce.Code, ce.Msg)
		return
	}

	now := g.opts.Clock.Now()
	c := NewConnection(ConnectionInfo{
		ID:          g.ids.NextString(),
		Principal:   hs.Principal,
		DeviceClass: hs.Device,
		DeviceID:    hs.DeviceID,
		Variant:     v.Name,
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: now,
	}, ws, g.opts.SendQueueSize)

	if err := g.admit(c); err != nil {
		g.opts.Metrics.Handshake(v.Name, "error")
		g.log.Warn("admit failed", zap.String("connId", c.id), zap.Error(err))
		g.reject(ws, websocket.CloseTryAgainLater, "unavailable")
		return
	}
	defer g.conns.Done()

	g.opts.Metrics.Handshake(v.Name, "admitted")
	g.opts.Metrics.ConnectionOpened(v.Name, string(c.deviceClass))
	g.log.Info("connection admitted",
		zap.String("connId", c.id),
		zap.String("userId", c.principal.UserID),
		zap.String("deviceClass", string(c.deviceClass)),
		zap.String("variant", v.Name),
	)

	safe.Go("presence.online", func() { g.presenceOnline(c) })

	g.router.send(c, BuildConnected(ConnectedPayload{
		ConnectionID:     c.id,
		UserID:           c.principal.UserID,
		DeviceClass:      string(c.deviceClass),
		HeartbeatSeconds: int(g.opts.HeartbeatInterval / time.Second),
	}))

	go g.writePump(c)
	g.readPump(c, ws)
}

// admit registers c unless the gateway is shutting down.
func (g *Gateway) admit(c *Connection) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.shutdown {
		return errs.New("gateway shutting down")
	}
	if err := g.reg.Admit(c); err != nil {
		return err
	}
	g.conns.Add(1)
	return nil
}

func (g *Gateway) reject(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.opts.WriteWait))
	_ = ws.Close()
}

// touch records a sign of life from c.
func (g *Gateway) touch(c *Connection) {
	if !g.reg.Touch(c.id, g.opts.Clock.Now()) {
		return
	}
	presence := g.opts.Presence
	safe.Go("presence.refresh", func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := presence.Refresh(ctx, c.principal.UserID); err != nil {
			g.log.Debug("presence refresh failed", zap.String("userId", c.principal.UserID), zap.Error(err))
		}
	})
}

// writePump is the only goroutine writing data frames to the socket.
func (g *Gateway) writePump(c *Connection) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.transport.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
			if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.log.Info("write failed", zap.String("connId", c.id), zap.Error(err))
				g.terminate(c, closeNone, "write failed")
				return
			}
		}
	}
}

// readPump reads client frames until the socket fails or c is terminated.
func (g *Gateway) readPump(c *Connection, ws *websocket.Conn) {
	defer g.terminate(c, closeNone, "read loop ended")

	ws.SetReadLimit(g.opts.MaxMessageSize)
	ws.SetPongHandler(func(string) error {
		g.touch(c)
		return nil
	})
	limiter := rate.NewLimiter(rate.Limit(g.opts.InboundRate), g.opts.InboundBurst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				g.log.Debug("peer closed", zap.String("connId", c.id))
			case isTimeout(err):
				g.log.Info("read timeout", zap.String("connId", c.id), zap.Error(err))
			case !c.closing():
				g.log.Info("read failed", zap.String("connId", c.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if !limiter.Allow() {
			g.log.Warn("inbound rate exceeded, frame dropped",
				zap.String("connId", c.id),
				zap.String("userId", c.principal.UserID),
			)
			continue
		}
		g.inbound.Handle(ctx, c, data)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// originChecker allows same-host requests, requests without an Origin header
// and any origin in allowed. An empty list or "*" allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		if !ok {
			_, ok = set[strings.ToLower(u.Host)]
		}
		return ok
	}
}
