package natsx

import (
	"context"

	"PPKitchen/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsxConsumer subscribes handlers behind a shared middleware chain.
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// Subscribe registers h on subject. With an empty queue every subscriber
// receives every message; with a queue group the group shares them.
func (cs *NatsxConsumer) Subscribe(subject, queue string, h NatsxHandler) error {
	if subject == "" {
		return errs.New("nats subject is empty")
	}
	h = NatsxChain(h, cs.mws...)
	cb := func(m *nats.Msg) { _ = h(context.Background(), toMessage(m)) }

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = cs.c.nc.Subscribe(subject, cb)
	} else {
		sub, err = cs.c.nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return errs.WrapMsg(err, "nats subscribe", "subject", subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	cs.c.mu.Lock()
	if old, ok := cs.c.subs[subject]; ok {
		_ = old.Unsubscribe()
	}
	cs.c.subs[subject] = sub
	cs.c.mu.Unlock()
	return nil
}

func toMessage(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
