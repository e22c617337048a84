// Package kafkaconsumer feeds dataset-published events from a Kafka consumer
// group into an ingest.Applier.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/gridslice/internal/core/config"
	obs "github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/ingest"
	mylog "github.com/mohammed-shakir/gridslice/internal/logger"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	RetryBackoff        time.Duration
}

func FromConfig(k config.KafkaCfg) Config {
	return Config{
		Brokers:             k.BrokerList(),
		Topic:               k.IngestTopic,
		GroupID:             k.IngestGroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		RetryBackoff:        2 * time.Second,
	}
}

// Applier is satisfied by *ingest.Applier.
type Applier interface {
	Apply(ctx context.Context, ev ingest.Event) (ingest.Outcome, error)
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	applier Applier
}

func New(cfg Config, logger *slog.Logger, a Applier) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, applier: a}
}

func (c *Consumer) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	return cfg
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.applier == nil {
		return errors.New("kafkaconsumer: missing applier")
	}
	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.saramaConfig())
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "ingest")
	handler := &groupHandler{process: c.ProcessOne}

	c.logger.InfoContext(ctx, "ingest consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			obs.IncKafkaConsumerError("consume")
			c.logger.ErrorContext(ctx, "consumer error", "topic", c.cfg.Topic, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "ingest consumer shutting down")
			return nil
		}
	}
}

// ProcessOne decodes and applies one message. Undecodable and invalid events
// are logged and acknowledged; apply failures are returned for redelivery.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev ingest.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.ErrorContext(ctx, "undecodable event skipped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	out, err := c.applier.Apply(ctx, ev)
	switch {
	case out == ingest.Invalid:
		obs.IncKafkaConsumerError("invalid")
		c.logger.WarnContext(ctx, "invalid event skipped",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	case err != nil:
		obs.IncKafkaConsumerError("apply")
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}
