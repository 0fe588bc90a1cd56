package kafka

import (
	"context"
	"sync"
	"time"

	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Handler processes one record value.
type Handler func(ctx context.Context, value []byte) error

// Consumer runs one consumer group over the configured topics.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	h      *groupHandler
	log    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer joins the node's consumer group.
func NewConsumer(c Config, nodeID string, h Handler) (*Consumer, error) {
	if !c.Enabled() {
		return nil, errs.New("kafka brokers or topics missing")
	}
	sc, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID(nodeID), sc)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka consumer group", "group", c.GroupID(nodeID))
	}
	return newConsumer(group, c.Topics, h, nil), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, h Handler, log *zap.Logger) *Consumer {
	log = logger.OrDefault(log).Named("kafka")
	return &Consumer{
		group:  group,
		topics: topics,
		h:      &groupHandler{h: h, log: log},
		log:    log,
	}
}

// Start consumes in the background until ctx ends or Close is called.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.log.Warn("consumer group error", zap.Error(err))
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			// Consume returns on every rebalance.
			err := c.group.Consume(ctx, c.topics, c.h)
			if ctx.Err() != nil || errs.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.log.Warn("consume failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()
}

// Close leaves the group and waits for the loops to finish.
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	return err
}

type groupHandler struct {
	h   Handler
	log *zap.Logger
}

func (g *groupHandler) Setup(s sarama.ConsumerGroupSession) error {
	g.log.Info("consumer group joined", zap.String("member", s.MemberID()), zap.Any("claims", s.Claims()))
	return nil
}

func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	g.log.Debug("consumer group cleanup")
	return nil
}

// ConsumeClaim marks every record, including rejected ones: a bad envelope
// will not get better on redelivery.
func (g *groupHandler) ConsumeClaim(s sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := g.h(s.Context(), msg.Value); err != nil {
				g.log.Warn("record rejected",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			s.MarkMessage(msg, "")
		case <-s.Context().Done():
			return nil
		}
	}
}
