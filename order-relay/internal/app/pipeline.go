package app

import (
	"fmt"
	"os"

	"notification-hub/order-relay/internal/consumer"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/order-relay/internal/orderproducer"
	"notification-hub/order-relay/internal/processor"
	"notification-hub/order-relay/internal/store"
	"notification-hub/order-relay/internal/transform"
	"notification-hub/shared/pkg/config"
	"notification-hub/shared/pkg/domain"
	"notification-hub/shared/pkg/logger"
)

// EventTypes are the upstream topics the relay consumes, one consumer each.
var EventTypes = []domain.EventType{
	domain.EventMessage,
	domain.EventTask,
	domain.EventInbox,
	domain.EventDone,
}

// Pipeline is one consumer together with the resources it owns.
type Pipeline struct {
	Consumer *consumer.Consumer
	// Release frees what the consumer does not close itself, such as the
	// transactional producer.
	Release func() error
}

// Close stops the consumer and releases its resources.
func (p *Pipeline) Close() {
	p.Consumer.Stop()
	if p.Release != nil {
		if err := p.Release(); err != nil {
			logger.Warn("release %s: %v", p.Consumer.Name(), err)
		}
	}
}

// BuildFunc creates the pipeline of one event type.
type BuildFunc func(eventType domain.EventType) (*Pipeline, error)

// KafkaBuilder wires a kafka-go reader, a sarama transactional writer, the
// order producer and the processor of each event type.
func KafkaBuilder(cfg config.Config, st *store.Store, m *metrics.Collector) BuildFunc {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "local"
	}

	return func(et domain.EventType) (*Pipeline, error) {
		topic, err := topicFor(cfg.Topics, et)
		if err != nil {
			return nil, err
		}

		txnID := fmt.Sprintf("%s-%s-%s", cfg.Kafka.TransactionalIDPrefix, et, instance)
		writer, err := kafkaio.NewTxnWriter(cfg.Kafka, txnID)
		if err != nil {
			return nil, fmt.Errorf("writer for %s: %w", et, err)
		}
		prod := orderproducer.New(st, writer, cfg.Topics.Order, cfg.Topics.Cancel)

		var proc processor.Processor
		switch et {
		case domain.EventMessage:
			proc = processor.NewOrderProcessor[domain.MessageEvent](transform.MessageRules, st, prod, m)
		case domain.EventTask:
			proc = processor.NewOrderProcessor[domain.TaskEvent](transform.TaskRules, st, prod, m)
		case domain.EventInbox:
			proc = processor.NewOrderProcessor[domain.InboxEvent](transform.InboxRules, st, prod, m)
		case domain.EventDone:
			proc = processor.NewCancelProcessor(st, prod, m, cfg.CancelOnDone)
		}

		source := kafkaio.NewReaderSource(cfg.Kafka, topic, cfg.Polling)
		c := consumer.New(et, source, proc, m, consumer.Options{
			PauseInterval: cfg.Polling.PauseInterval,
			RetryBackoff:  cfg.Polling.RetryBackoff,
		})
		return &Pipeline{Consumer: c, Release: writer.FlushAndClose}, nil
	}
}

func topicFor(t config.Topics, et domain.EventType) (string, error) {
	switch et {
	case domain.EventMessage:
		return t.Message, nil
	case domain.EventTask:
		return t.Task, nil
	case domain.EventInbox:
		return t.Inbox, nil
	case domain.EventDone:
		return t.Done, nil
	}
	return "", fmt.Errorf("no topic for event type %q", et)
}
