package gateway

import (
	"sync"
	"time"

	"PPKitchen/logger"
	"PPKitchen/service/metrics"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Monitor probes every connection on a fixed interval and evicts those that
// have not answered within the timeout window.
type Monitor struct {
	reg       *Registry
	clock     clock.Clock
	interval  time.Duration
	timeout   time.Duration
	writeWait time.Duration
	terminate func(c *Connection, code int, reason string)
	log       *zap.Logger
	metrics   *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func newMonitor(reg *Registry, opts Options, terminate func(*Connection, int, string)) *Monitor {
	return &Monitor{
		reg:       reg,
		clock:     opts.Clock,
		interval:  opts.HeartbeatInterval,
		timeout:   opts.HeartbeatTimeout,
		writeWait: opts.WriteWait,
		terminate: terminate,
		log:       logger.OrDefault(opts.Logger).Named("liveness"),
		metrics:   opts.Metrics,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the ticker loop. Calling it more than once has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		ticker := m.clock.Ticker(m.interval)
		go func() {
			defer close(m.doneCh)
			defer ticker.Stop()
			for {
				select {
				case <-m.stopCh:
					return
				case <-ticker.C:
					m.sweep()
				}
			}
		}()
	})
}

// Stop ends the loop and waits for an in-flight sweep.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	// never started: release doneCh so Stop does not block
	m.startOnce.Do(func() {
		close(m.doneCh)
	})
	<-m.doneCh
}

func (m *Monitor) sweep() {
	now := m.clock.Now()
	evicted, probed := m.reg.sweep(now, m.timeout)

	// evicted connections are out of the registry; nothing writes lastLiveness now
	for _, c := range evicted {
		m.metrics.Evicted()
		m.log.Warn("connection evicted: heartbeat timeout",
			zap.String("connId", c.id),
			zap.String("userId", c.principal.UserID),
			zap.String("deviceClass", string(c.deviceClass)),
			zap.Duration("silentFor", now.Sub(c.lastLiveness)),
		)
		m.terminate(c, websocket.CloseGoingAway, "heartbeat timeout")
	}

	for _, c := range probed {
		if c.closing() {
			continue
		}
		if err := c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.writeWait)); err != nil {
			m.log.Info("ping failed",
				zap.String("connId", c.id),
				zap.String("userId", c.principal.UserID),
				zap.Error(err),
			)
			m.terminate(c, closeNone, "ping failed")
		}
	}
}
