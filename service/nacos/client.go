// Package nacos holds the Nacos config and naming clients of the gateway.
package nacos

import (
	"net"
	"strconv"

	"PPKitchen/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Config is the nacos section of the application config.
type Config struct {
	Servers     []string `yaml:"servers"` // host:port
	Namespace   string   `yaml:"namespace"`
	Group       string   `yaml:"group"`
	DataID      string   `yaml:"dataId"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TimeoutMs   uint64   `yaml:"timeoutMs"`
	LogLevel    string   `yaml:"logLevel"`
	CacheDir    string   `yaml:"cacheDir"`
	LogDir      string   `yaml:"logDir"`
	ServiceName string   `yaml:"serviceName"`
}

func (c Config) Enabled() bool { return len(c.Servers) > 0 }

func (c Config) group() string {
	if c.Group == "" {
		return "DEFAULT_GROUP"
	}
	return c.Group
}

func (c Config) serverConfigs() ([]constant.ServerConfig, error) {
	out := make([]constant.ServerConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			return nil, errs.WrapMsg(err, "nacos server address", "server", s)
		}
		p, err := strconv.ParseUint(port, 10, 64)
		if err != nil {
			return nil, errs.WrapMsg(err, "nacos server port", "server", s)
		}
		out = append(out, *constant.NewServerConfig(host, p))
	}
	return out, nil
}

func (c Config) clientConfig() *constant.ClientConfig {
	timeout := c.TimeoutMs
	if timeout == 0 {
		timeout = 5000
	}
	level := c.LogLevel
	if level == "" {
		level = "warn"
	}
	opts := []constant.ClientOption{
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(timeout),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(level),
	}
	if c.CacheDir != "" {
		opts = append(opts, constant.WithCacheDir(c.CacheDir))
	}
	if c.LogDir != "" {
		opts = append(opts, constant.WithLogDir(c.LogDir))
	}
	if c.Username != "" {
		opts = append(opts, constant.WithUsername(c.Username), constant.WithPassword(c.Password))
	}
	return constant.NewClientConfig(opts...)
}

func (c Config) params() (vo.NacosClientParam, error) {
	sc, err := c.serverConfigs()
	if err != nil {
		return vo.NacosClientParam{}, err
	}
	return vo.NacosClientParam{ClientConfig: c.clientConfig(), ServerConfigs: sc}, nil
}

// NewConfigClient builds a config client for c.
func NewConfigClient(c Config) (config_client.IConfigClient, error) {
	p, err := c.params()
	if err != nil {
		return nil, err
	}
	cli, err := clients.NewConfigClient(p)
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos config client")
	}
	return cli, nil
}

// NewNamingClient builds a naming client for c.
func NewNamingClient(c Config) (naming_client.INamingClient, error) {
	p, err := c.params()
	if err != nil {
		return nil, err
	}
	cli, err := clients.NewNamingClient(p)
	if err != nil {
		return nil, errs.WrapMsg(err, "nacos naming client")
	}
	return cli, nil
}
