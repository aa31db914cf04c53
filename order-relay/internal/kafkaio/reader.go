// Package kafkaio adapts the Kafka clients to the relay: a kafka-go reader
// that polls in bounded batches and commits only on request, and a sarama
// transactional producer for the downstream topics.
package kafkaio

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"notification-hub/shared/pkg/config"
	"notification-hub/shared/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// Record is one upstream record as seen by the processors.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}

// ReaderSource polls a single topic as a member of the relay's consumer
// group. Offsets are committed only through Commit; Rewind discards the
// uncommitted position so the next Poll starts again from the last commit.
type ReaderSource struct {
	cfg        kafka.ReaderConfig
	timeout    time.Duration
	maxRecords int

	mu      sync.Mutex
	reader  *kafka.Reader
	pending []kafka.Message
}

// NewReaderConfig builds the kafka-go reader settings for one topic.
func NewReaderConfig(k config.Kafka, topic string, p config.Polling) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     k.Brokers,
		GroupID:     k.GroupID,
		Topic:       topic,
		Dialer:      newDialer(k),
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     p.Timeout,
		StartOffset: kafka.FirstOffset,
		// zero means CommitMessages is synchronous
		CommitInterval: 0,
		ErrorLogger:    kafka.LoggerFunc(logger.With("topic", topic).Error),
	}
}

func newDialer(k config.Kafka) *kafka.Dialer {
	d := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if k.SASLUsername != "" {
		d.SASLMechanism = plain.Mechanism{Username: k.SASLUsername, Password: k.SASLPassword}
	}
	if k.TLS {
		d.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return d
}

func NewReaderSource(k config.Kafka, topic string, p config.Polling) *ReaderSource {
	cfg := NewReaderConfig(k, topic, p)
	return &ReaderSource{
		cfg:        cfg,
		timeout:    p.Timeout,
		maxRecords: p.MaxRecords,
		reader:     kafka.NewReader(cfg),
	}
}

func (s *ReaderSource) Topic() string { return s.cfg.Topic }

// Poll returns the records that arrive within the poll timeout, at most
// maxRecords of them. An empty batch is not an error.
func (s *ReaderSource) Poll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var records []Record
	for len(records) < s.maxRecords {
		m, err := s.reader.FetchMessage(pollCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, classify("kafka.poll", err).With("topic", s.cfg.Topic)
		}
		s.pending = append(s.pending, m)
		records = append(records, Record{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
		})
	}
	return records, nil
}

// Commit synchronously commits everything returned by Poll since the last
// commit or rewind.
func (s *ReaderSource) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, s.pending...); err != nil {
		return classify("kafka.commit", err).With("topic", s.cfg.Topic)
	}
	s.pending = s.pending[:0]
	return nil
}

// Rewind drops the uncommitted position. kafka-go keeps prefetched messages
// in the reader, so the reader is replaced and rejoins the group at the
// committed offsets.
func (s *ReaderSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	err := s.reader.Close()
	s.reader = kafka.NewReader(s.cfg)
	if err != nil {
		return classify("kafka.rewind", err).With("topic", s.cfg.Topic)
	}
	return nil
}

func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	return s.reader.Close()
}
