package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildBaseConfig(t *testing.T) {
	sc, err := BuildBaseConfig(Config{Version: "2.8.0", InitialOffset: "oldest", Compression: "lz4"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_8_0_0, sc.Version)
	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.CompressionLZ4, sc.Producer.Compression)
	assert.Equal(t, 1, sc.Producer.Retry.Max)

	_, err = BuildBaseConfig(Config{Version: "banana"})
	assert.Error(t, err)
}

func TestGroupIDPerNode(t *testing.T) {
	assert.Equal(t, "kitchen-gateway-7", Config{}.GroupID("7"))
	assert.Equal(t, "edge-a", Config{GroupBase: "edge"}.GroupID("a"))
	assert.False(t, Config{Brokers: []string{"k:9092"}}.Enabled())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestConsumeClaimMarksEveryRecord(t *testing.T) {
	var got []string
	h := &groupHandler{h: func(_ context.Context, v []byte) error {
		got = append(got, string(v))
		if string(v) == "bad" {
			return errors.New("rejected")
		}
		return nil
	}, log: zap.NewNop()}

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}
	claim.ch <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("a")}
	claim.ch <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("bad")}
	claim.ch <- &sarama.ConsumerMessage{Offset: 3, Value: []byte("b")}
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, claim))
	assert.Equal(t, []string{"a", "bad", "b"}, got)
	assert.Equal(t, []int64{1, 2, 3}, sess.marked)
}

func TestConsumeClaimStopsOnSessionEnd(t *testing.T) {
	h := &groupHandler{h: func(context.Context, []byte) error { return nil }, log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}
	assert.NoError(t, h.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}

type fakeGroup struct {
	sarama.ConsumerGroup
	errs     chan error
	consumed chan []string
	closed   bool
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	select {
	case g.consumed <- topics:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.closed = true
	close(g.errs)
	return nil
}

func TestConsumerLifecycle(t *testing.T) {
	g := &fakeGroup{errs: make(chan error, 1), consumed: make(chan []string, 1)}
	c := newConsumer(g, []string{"kitchen.events"}, func(context.Context, []byte) error { return nil }, nil)
	c.Start(context.Background())
	g.errs <- errors.New("rebalance")

	select {
	case topics := <-g.consumed:
		assert.Equal(t, []string{"kitchen.events"}, topics)
	case <-time.After(time.Second):
		t.Fatal("consume loop did not start")
	}
	require.NoError(t, c.Close())
	assert.True(t, g.closed)
}

func TestProducerPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndSucceed()
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := &Producer{p: sp}

	_, _, err := p.Publish(context.Background(), "kitchen.events", "u1", []byte(`{}`))
	require.NoError(t, err)
	_, _, err = p.Publish(context.Background(), "kitchen.events", "", []byte(`{}`))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Publish(ctx, "kitchen.events", "", nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

type fakeAdmin struct {
	sarama.ClusterAdmin
	existing map[string]int
	created  map[string]int32
	expanded map[string]int32
}

func (a *fakeAdmin) DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error) {
	out := make([]*sarama.TopicMetadata, 0, len(topics))
	for _, t := range topics {
		n, ok := a.existing[t]
		if !ok {
			out = append(out, &sarama.TopicMetadata{Name: t, Err: sarama.ErrUnknownTopicOrPartition})
			continue
		}
		out = append(out, &sarama.TopicMetadata{Name: t, Partitions: make([]*sarama.PartitionMetadata, n)})
	}
	return out, nil
}

func (a *fakeAdmin) CreateTopic(t string, d *sarama.TopicDetail, _ bool) error {
	a.created[t] = d.NumPartitions
	return nil
}

func (a *fakeAdmin) CreatePartitions(t string, count int32, _ [][]int32, _ bool) error {
	a.expanded[t] = count
	return nil
}

func TestEnsureTopicsWith(t *testing.T) {
	admin := &fakeAdmin{
		existing: map[string]int{"small": 1, "big": 16},
		created:  map[string]int32{},
		expanded: map[string]int32{},
	}
	cfg := Config{Topics: []string{"new", "small", "big"}, Partitions: 4}
	require.NoError(t, EnsureTopicsWith(admin, cfg, nil))
	assert.Equal(t, map[string]int32{"new": 4}, admin.created)
	assert.Equal(t, map[string]int32{"small": 4}, admin.expanded)
}
