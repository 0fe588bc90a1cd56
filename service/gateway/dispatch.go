package gateway

import (
	"encoding/json"

	"PPKitchen/logger"
	"PPKitchen/service/metrics"
	"PPKitchen/tools/errs"

	"go.uber.org/zap"
)

// DispatchResult counts what one Dispatch call did.
type DispatchResult struct {
	Matched   int `json:"matched"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Router resolves a Target against the Registry and enqueues an event on
// every matching connection.
type Router struct {
	reg     *Registry
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRouter(reg *Registry, log *zap.Logger, m *metrics.Metrics) *Router {
	return &Router{reg: reg, log: logger.OrDefault(log), metrics: m}
}

// Dispatch serializes ev once and hands it to each selected connection. A
// full queue or a closing connection loses the event for that connection
// only. The returned error is non-nil only for an invalid target or event.
func (r *Router) Dispatch(target Target, ev Event) (DispatchResult, error) {
	var res DispatchResult
	if err := target.Validate(); err != nil {
		return res, err
	}
	if ev.payload == nil {
		return res, errs.ErrInvalidEventPayload.WrapMsg("empty event")
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return res, errs.ErrInvalidEventPayload.WrapMsg(err.Error(), "type", ev.Type())
	}

	deliver := func(c *Connection) {
		res.Matched++
		if c.enqueue(frame) {
			res.Delivered++
			return
		}
		res.Dropped++
		r.log.Warn("event dropped",
			zap.String("connId", c.id),
			zap.String("userId", c.principal.UserID),
			zap.String("event", ev.Type()),
		)
	}

	if target.Kind == TargetUser {
		r.reg.forUser(target.UserID, deliver)
	} else {
		r.reg.ForEach(target.matches, deliver)
	}

	r.metrics.Dispatched(string(target.Kind), res.Delivered, res.Dropped)
	r.log.Debug("dispatched",
		zap.String("target", target.String()),
		zap.String("event", ev.Type()),
		zap.Int("matched", res.Matched),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

// send enqueues a control frame for one connection.
func (r *Router) send(c *Connection, frame []byte) bool {
	if c.enqueue(frame) {
		return true
	}
	r.log.Debug("frame dropped", zap.String("connId", c.id))
	return false
}
