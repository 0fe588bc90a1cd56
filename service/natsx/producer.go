package natsx

import (
	"context"

	"PPKitchen/tools/errs"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// MsgIDHeader carries the dedupe key of a message.
const MsgIDHeader = "Nats-Msg-Id"

// NatsxProducer publishes on core NATS. Domain services and local tooling use
// it to hand events to the gateway.
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish sends data with a fresh message id unless hdr already has one.
func (p *NatsxProducer) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := newMsg(subject, data, hdr)
	if err := p.c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", subject)
	}
	return nil
}

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Set(k, v)
	}
	if msg.Header.Get(MsgIDHeader) == "" {
		msg.Header.Set(MsgIDHeader, uuid.NewString())
	}
	return msg
}
