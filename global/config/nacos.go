package config

import (
	"os"

	"PPKitchen/logger"
	"PPKitchen/service/nacos"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RemoteSource is a live config document, in practice a Nacos data id.
type RemoteSource interface {
	Load() (string, error)
	Watch(onChange func(content string)) error
}

// Load builds the config in order: defaults, the file named by path (or
// KITCHEN_CONFIG), Nacos when configured, then the environment. The returned
// source is nil when Nacos is not configured.
func Load(path string) (*AppConfig, RemoteSource, error) {
	return load(path, os.LookupEnv, func(c nacos.Config) (RemoteSource, error) {
		cli, err := nacos.NewConfigClient(c)
		if err != nil {
			return nil, err
		}
		return nacos.NewConfigWatcher(cli, c), nil
	})
}

func load(path string, lookup func(string) (string, bool), remote func(nacos.Config) (RemoteSource, error)) (*AppConfig, RemoteSource, error) {
	c := Default()
	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		if err := c.ApplyFile(path); err != nil {
			return nil, nil, err
		}
	}
	// Nacos servers may themselves come from the environment.
	if err := c.ApplyEnv(lookup); err != nil {
		return nil, nil, err
	}

	var src RemoteSource
	if c.Nacos.Enabled() && c.Nacos.DataID != "" {
		var err error
		if src, err = remote(c.Nacos); err != nil {
			return nil, nil, err
		}
		content, err := src.Load()
		if err != nil {
			return nil, nil, err
		}
		if err := c.ApplyYAML([]byte(content)); err != nil {
			return nil, nil, err
		}
		if err := c.ApplyEnv(lookup); err != nil {
			return nil, nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return c, src, nil
}

// WatchLogLevel re-applies log.level whenever the remote document changes.
// Other keys need a restart.
func WatchLogLevel(src RemoteSource) error {
	return src.Watch(func(content string) {
		var doc struct {
			Log LogConfig `yaml:"log"`
		}
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			logger.Warn("remote config unreadable", zap.Error(err))
			return
		}
		if doc.Log.Level == "" || doc.Log.Level == logger.Level() {
			return
		}
		if err := logger.SetLevel(doc.Log.Level); err != nil {
			logger.Warn("remote log level rejected", zap.String("level", doc.Log.Level), zap.Error(err))
			return
		}
		logger.Info("log level changed", zap.String("level", doc.Log.Level))
	})
}
