package gateway

import (
	"context"
	"time"

	"PPKitchen/logger"
	"PPKitchen/service/metrics"
	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Authorizer decides whether a principal may read the resource behind a topic.
type Authorizer interface {
	CanRead(ctx context.Context, p security.Principal, t topic.Topic) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p security.Principal, t topic.Topic) (bool, error)

func (f AuthorizerFunc) CanRead(ctx context.Context, p security.Principal, t topic.Topic) (bool, error) {
	return f(ctx, p, t)
}

// AllowAll grants every read.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, security.Principal, topic.Topic) (bool, error) {
	return true, nil
})

// SubscriptionManager owns topic membership changes.
type SubscriptionManager struct {
	reg      *Registry
	router   *Router
	authz    Authorizer
	timeout  time.Duration
	limit    int
	defaults map[string]string // variant -> default namespace
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func newSubscriptionManager(reg *Registry, router *Router, authz Authorizer, opts Options, variants []Variant) *SubscriptionManager {
	if authz == nil {
		authz = AllowAll
	}
	defaults := make(map[string]string, len(variants))
	for _, v := range variants {
		defaults[v.Name] = v.DefaultNamespace
	}
	return &SubscriptionManager{
		reg:      reg,
		router:   router,
		authz:    authz,
		timeout:  opts.AuthorizeTimeout,
		limit:    opts.MaxSubscriptions,
		defaults: defaults,
		log:      logger.OrDefault(opts.Logger).Named("subscription"),
		metrics:  opts.Metrics,
	}
}

// Subscribe adds raw to the connection's topics when the authorizer allows it
// and acknowledges with a subscribed frame. A denied or failed authorization
// leaves state unchanged and sends nothing.
func (s *SubscriptionManager) Subscribe(ctx context.Context, connID, raw string) error {
	c, ok := s.reg.Get(connID)
	if !ok {
		return errs.ErrConnectionNotFound.WrapMsg("subscribe", "connId", connID)
	}
	t, err := topic.Parse(raw, s.defaults[c.variant])
	if err != nil {
		s.metrics.Subscribe("invalid")
		s.router.send(c, BuildError(errs.ErrInvalidTopic.Msg))
		return err
	}

	actx, cancel := context.WithTimeout(ctx, s.timeout)
	allowed, err := s.authz.CanRead(actx, c.principal, t)
	cancel()
	if err != nil {
		s.metrics.Subscribe("error")
		s.log.Warn("authorization failed",
			zap.String("connId", connID),
			zap.String("userId", c.principal.UserID),
			zap.String("topic", t.String()),
			zap.Error(err),
		)
		return nil
	}
	if !allowed {
		s.metrics.Subscribe("denied")
		s.log.Debug("subscribe denied",
			zap.String("connId", connID),
			zap.String("userId", c.principal.UserID),
			zap.String("topic", t.String()),
		)
		return nil
	}

	if _, err := s.reg.Subscribe(connID, t, s.limit); err != nil {
		if errors.Is(err, errs.ErrSubscriptionLimit) {
			s.metrics.Subscribe("limit")
			s.router.send(c, BuildError(errs.ErrSubscriptionLimit.Msg))
		}
		return err
	}
	s.metrics.Subscribe("ok")
	s.router.send(c, BuildSubscribed(t.String()))
	return nil
}

// Unsubscribe removes raw and always acknowledges, held or not.
func (s *SubscriptionManager) Unsubscribe(connID, raw string) error {
	c, ok := s.reg.Get(connID)
	if !ok {
		return errs.ErrConnectionNotFound.WrapMsg("unsubscribe", "connId", connID)
	}
	t, err := topic.Parse(raw, s.defaults[c.variant])
	if err != nil {
		s.router.send(c, BuildError(errs.ErrInvalidTopic.Msg))
		return err
	}
	if _, err := s.reg.Unsubscribe(connID, t); err != nil {
		return err
	}
	s.router.send(c, BuildUnsubscribed(t.String()))
	return nil
}
