package natsx

import (
	"context"

	"PPKitchen/tools/safe"

	"go.uber.org/zap"
)

// NatsxMessage is a received message, detached from the connection's buffers.
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler processes one message.
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware wraps a handler (logging, dedupe, recovery).
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain applies mws so that the first one runs outermost.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxRecover turns a panicking handler into an error.
func NatsxRecover() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			if rerr := safe.Run("natsx."+msg.Subject, func() { err = next(ctx, msg) }); rerr != nil {
				return rerr
			}
			return err
		}
	}
}

// NatsxLogErrors logs handler failures.
func NatsxLogErrors(log *zap.Logger) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			err := next(ctx, msg)
			if err != nil {
				log.Warn("nats message failed", zap.String("subject", msg.Subject), zap.Error(err))
			}
			return err
		}
	}
}
