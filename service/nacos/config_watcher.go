package nacos

import (
	"sync"

	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// ConfigWatcher keeps the latest content of one Nacos data id.
type ConfigWatcher struct {
	cli    config_client.IConfigClient
	dataID string
	group  string
	log    *zap.Logger

	mu      sync.RWMutex
	current string
}

func NewConfigWatcher(cli config_client.IConfigClient, c Config) *ConfigWatcher {
	return &ConfigWatcher{
		cli:    cli,
		dataID: c.DataID,
		group:  c.group(),
		log:    logger.Named("nacos"),
	}
}

// Load fetches the current content once.
func (w *ConfigWatcher) Load() (string, error) {
	content, err := w.cli.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", errs.WrapMsg(err, "nacos get config", "dataId", w.dataID, "group", w.group)
	}
	w.set(content)
	return content, nil
}

// Watch calls onChange with every later revision.
func (w *ConfigWatcher) Watch(onChange func(content string)) error {
	err := w.cli.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(_, _, dataID, data string) {
			w.log.Info("nacos config changed", zap.String("dataId", dataID), zap.Int("bytes", len(data)))
			w.set(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos listen config", "dataId", w.dataID)
	}
	return nil
}

// Stop cancels the listener.
func (w *ConfigWatcher) Stop() error {
	return w.cli.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
}

func (w *ConfigWatcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) set(s string) {
	w.mu.Lock()
	w.current = s
	w.mu.Unlock()
}
