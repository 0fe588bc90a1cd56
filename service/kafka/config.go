package kafka

import (
	"strings"
	"time"

	"PPKitchen/tools/errs"

	"github.com/Shopify/sarama"
)

// Config is the kafka section of the application config.
type Config struct {
	Brokers           []string `yaml:"brokers"`
	Topics            []string `yaml:"topics"`
	GroupBase         string   `yaml:"groupBase"`
	Version           string   `yaml:"version"`
	InitialOffset     string   `yaml:"initialOffset"` // newest/oldest
	Compression       string   `yaml:"compression"`   // none/snappy/lz4/zstd
	ProducerRetries   int      `yaml:"producerRetries"`
	EnsureTopics      bool     `yaml:"ensureTopics"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replicationFactor"`
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 && len(c.Topics) > 0 }

// GroupID gives each node its own consumer group so every gateway instance
// sees every envelope.
func (c Config) GroupID(nodeID string) string {
	base := c.GroupBase
	if base == "" {
		base = "kitchen-gateway"
	}
	return base + "-" + nodeID
}

// BuildBaseConfig turns c into a sarama config shared by the consumer and the
// producer.
func BuildBaseConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.WrapMsg(err, "kafka version", "version", c.Version)
		}
		cfg.Version = v
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	switch strings.ToLower(c.InitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
