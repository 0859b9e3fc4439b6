package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the stream contract events are published to.
const DefaultTopic = "credora.contract-events"

// KafkaConfig holds publisher configuration.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	Retries         int
	DeliveryTimeout time.Duration
}

// KafkaSink publishes contract events to Kafka for downstream consumers
// (indexers, notification pipelines). It wraps franz-go with a Sink-shaped
// interface.
type KafkaSink struct {
	client *kgo.Client
	topic  string

	mu     sync.RWMutex
	closed bool
}

// NewKafkaSink creates a Kafka-backed event sink.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// Publish sends one event synchronously, keyed by contract name so per-contract
// ordering is preserved within a partition.
func (s *KafkaSink) Publish(ctx context.Context, ev Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("kafka sink is closed")
	}
	s.mu.RUnlock()

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.Contract),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (s *KafkaSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}
