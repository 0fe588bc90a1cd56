package gateway

import (
	"context"

	"PPKitchen/tools/errs"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FrameHandler handles one client frame type.
type FrameHandler func(ctx context.Context, c *Connection, f *Frame) error

// FrameDispatcher routes client frames by type.
type FrameDispatcher struct {
	g        *Gateway
	handlers map[string]FrameHandler
}

func newFrameDispatcher(g *Gateway) *FrameDispatcher {
	d := &FrameDispatcher{g: g, handlers: make(map[string]FrameHandler)}
	d.Register(FrameSubscribe, d.handleSubscribe)
	d.Register(FrameUnsubscribe, d.handleUnsubscribe)
	d.Register(FramePing, d.handlePing)
	return d
}

func (d *FrameDispatcher) Register(frameType string, h FrameHandler) { d.handlers[frameType] = h }

// Handle parses raw and runs its handler. Protocol errors are reported to the
// client as error frames; the connection stays open.
func (d *FrameDispatcher) Handle(ctx context.Context, c *Connection, raw []byte) {
	f, err := ParseFrameJSON(raw)
	if err != nil {
		d.g.opts.Metrics.InboundFrame("invalid")
		d.g.router.send(c, BuildError(errs.ErrInvalidFrame.Msg))
		d.g.log.Debug("bad frame", zap.String("connId", c.id), zap.Error(err))
		return
	}
	h, ok := d.handlers[f.Type]
	if !ok {
		d.g.opts.Metrics.InboundFrame("unknown")
		d.g.router.send(c, BuildError(errs.ErrUnknownFrameType.Msg+": "+f.Type))
		return
	}
	d.g.opts.Metrics.InboundFrame(f.Type)
	if err := h(ctx, c, f); err != nil {
		d.g.log.Debug("frame rejected",
			zap.String("connId", c.id),
			zap.String("type", f.Type),
			zap.Error(err),
		)
	}
}

func (d *FrameDispatcher) handleSubscribe(ctx context.Context, c *Connection, f *Frame) error {
	raw, err := f.TopicPayload()
	if err != nil {
		d.g.router.send(c, BuildError(errs.ErrInvalidTopic.Msg))
		return err
	}
	return d.g.subs.Subscribe(ctx, c.id, raw)
}

func (d *FrameDispatcher) handleUnsubscribe(_ context.Context, c *Connection, f *Frame) error {
	raw, err := f.TopicPayload()
	if err != nil {
		d.g.router.send(c, BuildError(errs.ErrInvalidTopic.Msg))
		return err
	}
	err = d.g.subs.Unsubscribe(c.id, raw)
	if errors.Is(err, errs.ErrConnectionNotFound) {
		return nil
	}
	return err
}

func (d *FrameDispatcher) handlePing(_ context.Context, c *Connection, _ *Frame) error {
	d.g.touch(c)
	d.g.router.send(c, BuildPong())
	return nil
}
