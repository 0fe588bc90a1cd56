package kafka

import (
	"context"

	"PPKitchen/tools/errs"

	"github.com/Shopify/sarama"
)

// Producer publishes dispatch envelopes. Domain services and tooling use it;
// the gateway itself only consumes.
type Producer struct {
	p sarama.SyncProducer
}

func NewProducer(c Config) (*Producer, error) {
	sc, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducer(c.Brokers, sc)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer")
	}
	return &Producer{p: p}, nil
}

// Publish sends value keyed by key so that one key stays on one partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err = p.p.SendMessage(msg)
	if err != nil {
		return 0, 0, errs.WrapMsg(err, "kafka publish", "topic", topic)
	}
	return partition, offset, nil
}

func (p *Producer) Close() error { return p.p.Close() }
