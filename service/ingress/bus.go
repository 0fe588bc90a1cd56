package ingress

import (
	"context"

	"PPKitchen/service/natsx"
)

// NatsHandler feeds NATS messages into Handle. Rejected envelopes are logged
// by Handle and reported back so the logging middleware sees them too.
func (in *Ingress) NatsHandler() natsx.NatsxHandler {
	return func(_ context.Context, msg natsx.NatsxMessage) error {
		_, err := in.Handle(SourceNATS, msg.Data)
		return err
	}
}

// KafkaHandler is the callback the Kafka consumer invokes per record.
func (in *Ingress) KafkaHandler() func(ctx context.Context, value []byte) error {
	return func(_ context.Context, value []byte) error {
		_, err := in.Handle(SourceKafka, value)
		return err
	}
}
