package kafka

import (
	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopicsWith creates the missing topics of c and grows partitions of
// existing ones. Kafka cannot shrink partitions, so fewer is left alone.
func EnsureTopicsWith(admin sarama.ClusterAdmin, c Config, log *zap.Logger) error {
	log = logger.OrDefault(log).Named("kafka")
	parts, rf := c.Partitions, c.ReplicationFactor
	if parts <= 0 {
		parts = 1
	}
	if rf <= 0 {
		rf = 1
	}
	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}

	for _, t := range c.Topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return errs.WrapMsg(err, "describe topic", "topic", t)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError
		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     parts,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errs.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errs.Is(err, sarama.ErrTopicAlreadyExists) {
					log.Info("topic exists (race)", zap.String("topic", t))
					continue
				}
				return errs.WrapMsg(err, "create topic", "topic", t)
			}
			log.Info("topic created", zap.String("topic", t), zap.Int32("partitions", parts), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if parts > cur {
			if err := admin.CreatePartitions(t, parts, nil, false); err != nil {
				return errs.WrapMsg(err, "expand partitions", "topic", t, "from", cur, "to", parts)
			}
			log.Info("topic partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", parts))
		}
	}
	return nil
}

// EnsureTopics opens a cluster admin for the duration of EnsureTopicsWith.
func EnsureTopics(c Config, log *zap.Logger) error {
	sc, err := BuildBaseConfig(c)
	if err != nil {
		return err
	}
	admin, err := sarama.NewClusterAdmin(c.Brokers, sc)
	if err != nil {
		return errs.WrapMsg(err, "kafka cluster admin")
	}
	defer admin.Close()
	return EnsureTopicsWith(admin, c, log)
}

func strPtr(s string) *string { return &s }
