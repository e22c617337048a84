// Package loadevents publishes a Kafka event each time a dataset becomes
// resident.
package loadevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
)

type Event struct {
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Res        int       `json:"res"`
	Bytes      int       `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	Reload     bool      `json:"reload,omitempty"`
	TS         time.Time `json:"ts"`
}

func FromLoad(li dataset.LoadInfo, now time.Time) Event {
	return Event{
		Year:       li.Key.Year,
		Month:      li.Key.Month,
		Res:        int(li.Key.Res),
		Bytes:      li.Bytes,
		DurationMs: li.Duration.Milliseconds(),
		Reload:     li.Reload,
		TS:         now.UTC(),
	}
}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
	drained chan struct{}
}

var _ dataset.LoadListener = (*Publisher)(nil)

func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("loadevents: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, logger), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  logger,
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("loadevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(fmt.Sprintf("%d-%02d-%d", ev.Year, ev.Month, ev.Res)),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncKafkaPublish(p.topic, nil)
		}
	}()

	go func() {
		defer close(p.drained)
		for err := range p.prod.Errors() {
			if err == nil {
				continue
			}
			observability.IncKafkaPublish(p.topic, err)
			p.logger.Warn("loadevents: producer error", "topic", p.topic, "err", err.Err)
		}
	}()

	return p
}

// Publish queues ev; when the queue is full the event is dropped.
func (p *Publisher) Publish(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

// DatasetLoaded publishes a load event for li.
func (p *Publisher) DatasetLoaded(li dataset.LoadInfo) {
	if !p.Publish(FromLoad(li, time.Now())) {
		p.logger.Debug("loadevents: queue full, event dropped", "dataset", li.Key.String())
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.drained
	if err != nil {
		return fmt.Errorf("loadevents: close producer: %w", err)
	}
	return nil
}
