package natsx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNatsxChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, msg NatsxMessage) error {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))

	require.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestNatsxIdemMiddleware(t *testing.T) {
	calls := 0
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(NewMemIdem(16, time.Minute)))

	withID := NatsxMessage{Header: map[string]string{MsgIDHeader: "m1"}}
	require.NoError(t, h(context.Background(), withID))
	require.NoError(t, h(context.Background(), withID))
	assert.Equal(t, 1, calls)

	require.NoError(t, h(context.Background(), NatsxMessage{Data: []byte("x")}))
	require.NoError(t, h(context.Background(), NatsxMessage{Data: []byte("x")}))
	assert.Equal(t, 3, calls)
}

func TestNatsxRecover(t *testing.T) {
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		panic("bad payload")
	}, NatsxRecover())
	err := h(context.Background(), NatsxMessage{Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad payload")
}

func TestNatsxLogErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		return errors.New("boom")
	}, NatsxLogErrors(zap.New(core)))
	assert.Error(t, h(context.Background(), NatsxMessage{Subject: "kitchen.events"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kitchen.events", logs.All()[0].ContextMap()["subject"])
}

func TestToMessageCopiesData(t *testing.T) {
	m := nats.NewMsg("kitchen.events")
	m.Data = []byte("abc")
	m.Header.Set(MsgIDHeader, "id-1")

	out := toMessage(m)
	m.Data[0] = 'z'
	assert.Equal(t, "abc", string(out.Data))
	assert.Equal(t, map[string]string{MsgIDHeader: "id-1"}, out.Header)
	assert.Nil(t, headerToMap(nil))
}

func TestNewMsgAssignsID(t *testing.T) {
	m := newMsg("s", []byte("d"), nil)
	assert.NotEmpty(t, m.Header.Get(MsgIDHeader))

	m = newMsg("s", []byte("d"), map[string]string{MsgIDHeader: "keep"})
	assert.Equal(t, "keep", m.Header.Get(MsgIDHeader))
}

func TestNewNatsxClientValidates(t *testing.T) {
	_, err := NewNatsxClient(NatsxConfig{})
	assert.Error(t, err)
}
