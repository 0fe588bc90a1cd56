package redis

import (
	"context"
	"time"

	"PPKitchen/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Config is the connection section of the application config.
type Config struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	PingTimeout time.Duration `yaml:"pingTimeout"`
}

// NewClient connects and pings. The caller owns the returned client.
func NewClient(ctx context.Context, c Config) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, errs.New("redis addr is empty")
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 3 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: c.DialTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	return rdb, nil
}
