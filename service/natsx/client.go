package natsx

import (
	"strings"
	"sync"
	"time"

	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxConfig is the nats section of the application config.
type NatsxConfig struct {
	Servers       []string      `yaml:"servers"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Token         string        `yaml:"token"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
	Timeout       time.Duration `yaml:"timeout"`
}

func (c *NatsxConfig) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Name == "" {
		c.Name = "kitchen-gateway"
	}
}

func (c NatsxConfig) options(log *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.User != "":
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	return opts
}

// NatsxClient owns one NATS connection and the subscriptions made on it.
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	log *zap.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription // subject -> sub
}

// NewNatsxClient connects to the configured servers.
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.New("nats servers missing")
	}
	cfg.norm()
	log := logger.Named("natsx")
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), cfg.options(log)...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", strings.Join(cfg.Servers, ","))
	}
	return &NatsxClient{
		cfg:  cfg,
		nc:   nc,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

func (c *NatsxClient) Conn() *nats.Conn { return c.nc }

// Close drains subscriptions, then the connection.
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for subject, sub := range c.subs {
		_ = sub.Drain()
		delete(c.subs, subject)
	}
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
