// Package gateway is the real-time connection gateway: it admits authenticated
// WebSocket clients, tracks their topic subscriptions, probes them for
// liveness and fans events out to the right subset of connections.
package gateway

import (
	"context"
	"sync"
	"time"

	"PPKitchen/logger"
	"PPKitchen/service/metrics"
	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
	"PPKitchen/tools/ids"
	"PPKitchen/tools/safe"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultAuthTimeout       = 5 * time.Second
	defaultAuthorizeTimeout  = 3 * time.Second
	defaultWriteWait         = 10 * time.Second
	defaultSendQueueSize     = 256
	defaultMaxMessageSize    = 64 << 10
	defaultMaxSubscriptions  = 100
	defaultInboundRate       = 20
	defaultInboundBurst      = 40
	presenceTimeout          = 2 * time.Second
)

// closeNone terminates without sending a close frame.
const closeNone = 0

// Variant is one WebSocket endpoint with its admission rules.
type Variant struct {
	Name string
	Path string
	// RequireDevice makes deviceType and deviceId mandatory.
	RequireDevice bool
	// MissingToken is the rejection for a connection without a token. Only
	// consulted when RequireDevice is false; otherwise any missing parameter
	// is ErrMissingParams.
	MissingToken *errs.CodeError
	// DefaultNamespace is applied to subscribe topics that carry no resource type.
	DefaultNamespace string
}

func (v Variant) missingTokenErr() *errs.CodeError {
	if v.MissingToken != nil {
		return v.MissingToken
	}
	return errs.ErrMissingParams
}

var (
	GeneralVariant = Variant{
		Name:          "general",
		Path:          "/ws",
		RequireDevice: true,
	}
	CollectionsVariant = Variant{
		Name:             "collections",
		Path:             "/ws/collections",
		MissingToken:     errs.ErrTokenRequired,
		DefaultNamespace: topic.Collection,
	}
)

// Presence mirrors admitted connections into a shared store.
type Presence interface {
	Online(ctx context.Context, userID, connID, device string) error
	Refresh(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID, connID string) error
}

type noopPresence struct{}

func (noopPresence) Online(context.Context, string, string, string) error { return nil }
func (noopPresence) Refresh(context.Context, string) error                { return nil }
func (noopPresence) Offline(context.Context, string, string) error        { return nil }

// Options tunes a Gateway. Zero values fall back to defaults.
type Options struct {
	NodeID            string
	NodeNumber        int64
	Variants          []Variant
	HeartbeatInterval time.Duration
	// HeartbeatTimeout defaults to twice the interval.
	HeartbeatTimeout time.Duration
	AuthTimeout      time.Duration
	AuthorizeTimeout time.Duration
	WriteWait        time.Duration
	SendQueueSize    int
	MaxMessageSize   int64
	MaxSubscriptions int
	InboundRate      float64
	InboundBurst     int
	// AllowedOrigins restricts upgrades by Origin header. Empty or "*" allows all.
	AllowedOrigins []string

	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Presence Presence
}

func (o *Options) norm() {
	if o.NodeID == "" {
		o.NodeID = "gateway-1"
	}
	if len(o.Variants) == 0 {
		o.Variants = []Variant{GeneralVariant, CollectionsVariant}
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 2 * o.HeartbeatInterval
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = defaultAuthTimeout
	}
	if o.AuthorizeTimeout <= 0 {
		o.AuthorizeTimeout = defaultAuthorizeTimeout
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = defaultSendQueueSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.MaxSubscriptions == 0 {
		o.MaxSubscriptions = defaultMaxSubscriptions
	}
	if o.InboundRate <= 0 {
		o.InboundRate = defaultInboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = defaultInboundBurst
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	o.Logger = logger.OrDefault(o.Logger)
	if o.Presence == nil {
		o.Presence = noopPresence{}
	}
}

// Gateway ties the registry, router, subscription manager, liveness monitor
// and inbound handlers together. Construct it with New; there is no package
// level instance.
type Gateway struct {
	opts     Options
	verifier TokenVerifier
	reg      *Registry
	router   *Router
	subs     *SubscriptionManager
	monitor  *Monitor
	inbound  *FrameDispatcher
	ids      *ids.Generator
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu       sync.RWMutex
	shutdown bool
	conns    sync.WaitGroup
}

func New(verifier TokenVerifier, authz Authorizer, opts Options) *Gateway {
	opts.norm()
	log := opts.Logger.Named("gateway").With(zap.String("node", opts.NodeID))
	opts.Logger = log

	g := &Gateway{
		opts:     opts,
		verifier: verifier,
		reg:      NewRegistry(),
		ids:      ids.NewGenerator(opts.NodeNumber),
		log:      log,
	}
	g.router = NewRouter(g.reg, log.Named("dispatch"), opts.Metrics)
	g.subs = newSubscriptionManager(g.reg, g.router, authz, opts, opts.Variants)
	g.monitor = newMonitor(g.reg, opts, g.terminate)
	g.inbound = newFrameDispatcher(g)
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return g
}

func (g *Gateway) Registry() *Registry { return g.reg }
func (g *Gateway) Options() Options    { return g.opts }

// Dispatch delivers ev to every connection selected by t.
func (g *Gateway) Dispatch(t Target, ev Event) (DispatchResult, error) {
	return g.router.Dispatch(t, ev)
}

// Start begins heartbeat probing.
func (g *Gateway) Start() {
	g.monitor.Start()
	g.log.Info("gateway started",
		zap.Duration("heartbeat", g.opts.HeartbeatInterval),
		zap.Duration("timeout", g.opts.HeartbeatTimeout),
	)
}

// Shutdown refuses new connections, closes every live one with 1001 and waits
// for their goroutines until ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.shutdown = true
	g.mu.Unlock()

	g.monitor.Stop()

	var err error
	for _, c := range g.reg.drain() {
		g.terminate(c, websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, errs.WrapMsg(ctx.Err(), "waiting for connections"))
	}
	g.log.Info("gateway stopped")
	return err
}

func (g *Gateway) closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shutdown
}

// terminate removes c from the registry and releases its socket. Only the
// first call for a connection has any effect.
func (g *Gateway) terminate(c *Connection, code int, reason string) {
	g.reg.Remove(c.id)
	if !c.markClosed() {
		return
	}
	if code != closeNone {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.opts.WriteWait))
	}
	_ = c.transport.Close()

	g.opts.Metrics.ConnectionClosed(c.variant, string(c.deviceClass))
	g.log.Info("connection closed",
		zap.String("connId", c.id),
		zap.String("userId", c.principal.UserID),
		zap.String("deviceClass", string(c.deviceClass)),
		zap.String("reason", reason),
	)

	safe.Go("presence.offline", func() { g.presenceOffline(c) })
}

// presenceOnline records c in the presence store unless it already started
// closing. Holding presenceMu keeps it ordered before presenceOffline.
func (g *Gateway) presenceOnline(c *Connection) {
	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()
	if c.closing() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := g.opts.Presence.Online(ctx, c.principal.UserID, c.id, string(c.deviceClass)); err != nil {
		g.log.Warn("presence online failed", zap.String("connId", c.id), zap.Error(err))
	}
}

func (g *Gateway) presenceOffline(c *Connection) {
	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := g.opts.Presence.Offline(ctx, c.principal.UserID, c.id); err != nil {
		g.log.Warn("presence offline failed", zap.String("connId", c.id), zap.Error(err))
	}
}
