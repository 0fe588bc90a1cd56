// Package config loads the gateway's AppConfig: defaults, then an optional
// YAML file, then Nacos, then KITCHEN_* environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"PPKitchen/data/database/mgo/mongoutil"
	"PPKitchen/service/gateway"
	"PPKitchen/service/kafka"
	"PPKitchen/service/nacos"
	"PPKitchen/service/natsx"
	"PPKitchen/service/storage/redis"
	"PPKitchen/tools/errs"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the YAML file to load.
const EnvConfigPath = "KITCHEN_CONFIG"

type AppConfig struct {
	Server  ServerConfig     `yaml:"server"`
	Gateway GatewayConfig    `yaml:"gateway"`
	JWT     JWTConfig        `yaml:"jwt"`
	Redis   redis.Config     `yaml:"redis"`
	Mongo   mongoutil.Config `yaml:"mongo"`
	Authz   AuthzConfig      `yaml:"authz"`
	Nats    NatsConfig       `yaml:"nats"`
	Kafka   kafka.Config     `yaml:"kafka"`
	Nacos   nacos.Config     `yaml:"nacos"`
	Log     LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"httpAddr"`
	GRPCAddr        string        `yaml:"grpcAddr"`
	AdvertiseIP     string        `yaml:"advertiseIp"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ServiceToken    string        `yaml:"serviceToken"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GatewayConfig struct {
	NodeID            string        `yaml:"nodeId"`
	NodeNumber        int64         `yaml:"nodeNumber"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`
	AuthTimeout       time.Duration `yaml:"authTimeout"`
	AuthorizeTimeout  time.Duration `yaml:"authorizeTimeout"`
	WriteWait         time.Duration `yaml:"writeWait"`
	SendQueueSize     int           `yaml:"sendQueueSize"`
	MaxMessageSize    int64         `yaml:"maxMessageSize"`
	MaxSubscriptions  int           `yaml:"maxSubscriptions"`
	InboundRate       float64       `yaml:"inboundRate"`
	InboundBurst      int           `yaml:"inboundBurst"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Alg    string        `yaml:"alg"`
	Issuer string        `yaml:"issuer"`
	Leeway time.Duration `yaml:"leeway"`
}

type AuthzConfig struct {
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
}

type NatsConfig struct {
	natsx.NatsxConfig `yaml:",inline"`
	Subject           string `yaml:"subject"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config that runs a single local node.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			NodeNumber:        1,
			HeartbeatInterval: 30 * time.Second,
			AuthTimeout:       5 * time.Second,
			AuthorizeTimeout:  3 * time.Second,
			WriteWait:         10 * time.Second,
			SendQueueSize:     256,
			MaxMessageSize:    64 << 10,
			MaxSubscriptions:  100,
			InboundRate:       20,
			InboundBurst:      40,
		},
		JWT:   JWTConfig{Alg: "HS256"},
		Authz: AuthzConfig{CacheSize: 10000, CacheTTL: 30 * time.Second},
		Nats:  NatsConfig{Subject: "kitchen.gateway.dispatch"},
		Kafka: kafka.Config{GroupBase: "kitchen-gateway", InitialOffset: "newest"},
		Log:   LogConfig{Level: "info"},
	}
}

// ApplyYAML overlays content on c. Keys absent from content keep their value.
func (c *AppConfig) ApplyYAML(content []byte) error {
	if err := yaml.Unmarshal(content, c); err != nil {
		return errs.WrapMsg(err, "parse config yaml")
	}
	return nil
}

// ApplyFile overlays the YAML file at path.
func (c *AppConfig) ApplyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errs.WrapMsg(err, "read config", "path", path)
	}
	return c.ApplyYAML(b)
}

type envVar struct {
	name string
	set  func(c *AppConfig, v string) error
}

func str(dst func(c *AppConfig) *string) func(*AppConfig, string) error {
	return func(c *AppConfig, v string) error {
		*dst(c) = v
		return nil
	}
}

func list(dst func(c *AppConfig) *[]string) func(*AppConfig, string) error {
	return func(c *AppConfig, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envVars = []envVar{
	{"KITCHEN_HTTP_ADDR", str(func(c *AppConfig) *string { return &c.Server.HTTPAddr })},
	{"KITCHEN_GRPC_ADDR", str(func(c *AppConfig) *string { return &c.Server.GRPCAddr })},
	{"KITCHEN_ADVERTISE_IP", str(func(c *AppConfig) *string { return &c.Server.AdvertiseIP })},
	{"KITCHEN_ALLOWED_ORIGINS", list(func(c *AppConfig) *[]string { return &c.Server.AllowedOrigins })},
	{"KITCHEN_SERVICE_TOKEN", str(func(c *AppConfig) *string { return &c.Server.ServiceToken })},
	{"KITCHEN_NODE_ID", str(func(c *AppConfig) *string { return &c.Gateway.NodeID })},
	{"KITCHEN_NODE_NUMBER", func(c *AppConfig, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errs.WrapMsg(err, "KITCHEN_NODE_NUMBER")
		}
		c.Gateway.NodeNumber = n
		return nil
	}},
	{"KITCHEN_JWT_SECRET", str(func(c *AppConfig) *string { return &c.JWT.Secret })},
	{"KITCHEN_REDIS_ADDR", str(func(c *AppConfig) *string { return &c.Redis.Addr })},
	{"KITCHEN_REDIS_PASSWORD", str(func(c *AppConfig) *string { return &c.Redis.Password })},
	{"KITCHEN_MONGO_URI", str(func(c *AppConfig) *string { return &c.Mongo.Uri })},
	{"KITCHEN_MONGO_DATABASE", str(func(c *AppConfig) *string { return &c.Mongo.Database })},
	{"KITCHEN_NATS_SERVERS", list(func(c *AppConfig) *[]string { return &c.Nats.Servers })},
	{"KITCHEN_KAFKA_BROKERS", list(func(c *AppConfig) *[]string { return &c.Kafka.Brokers })},
	{"KITCHEN_NACOS_SERVERS", list(func(c *AppConfig) *[]string { return &c.Nacos.Servers })},
	{"KITCHEN_LOG_LEVEL", str(func(c *AppConfig) *string { return &c.Log.Level })},
}

// ApplyEnv applies every KITCHEN_* variable lookup finds.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.set(c, v); err != nil {
			return err
		}
	}
	return nil
}

// Validate fills derived values and rejects unusable settings.
func (c *AppConfig) Validate() error {
	g := &c.Gateway
	if g.HeartbeatInterval <= 0 {
		return errs.New("gateway.heartbeatInterval must be positive")
	}
	if g.HeartbeatTimeout == 0 {
		g.HeartbeatTimeout = 2 * g.HeartbeatInterval
	}
	if g.HeartbeatTimeout < g.HeartbeatInterval {
		return errs.New("gateway.heartbeatTimeout is shorter than the interval",
			"timeout", g.HeartbeatTimeout, "interval", g.HeartbeatInterval)
	}
	if g.NodeNumber < 0 || g.NodeNumber > 1023 {
		return errs.New("gateway.nodeNumber out of range", "nodeNumber", g.NodeNumber)
	}
	if g.NodeID == "" {
		g.NodeID = strconv.FormatInt(g.NodeNumber, 10)
	}
	if c.JWT.Secret == "" {
		return errs.New("jwt.secret is required")
	}
	if c.Server.HTTPAddr == "" {
		return errs.New("server.httpAddr is required")
	}
	if c.Nats.Subject == "" && len(c.Nats.Servers) > 0 {
		return errs.New("nats.subject is required when nats.servers is set")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errs.WrapMsg(err, "log.level", "level", c.Log.Level)
	}
	return nil
}

// GatewayOptions maps the config onto gateway options. Runtime collaborators
// (clock, logger, metrics, presence) are left for the caller.
func (c *AppConfig) GatewayOptions() gateway.Options {
	g := c.Gateway
	return gateway.Options{
		NodeID:            g.NodeID,
		NodeNumber:        g.NodeNumber,
		HeartbeatInterval: g.HeartbeatInterval,
		HeartbeatTimeout:  g.HeartbeatTimeout,
		AuthTimeout:       g.AuthTimeout,
		AuthorizeTimeout:  g.AuthorizeTimeout,
		WriteWait:         g.WriteWait,
		SendQueueSize:     g.SendQueueSize,
		MaxMessageSize:    g.MaxMessageSize,
		MaxSubscriptions:  g.MaxSubscriptions,
		InboundRate:       g.InboundRate,
		InboundBurst:      g.InboundBurst,
		AllowedOrigins:    c.Server.AllowedOrigins,
	}
}
