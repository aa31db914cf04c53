package kafkaio

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/shared/pkg/config"
	"notification-hub/shared/pkg/logger"

	"github.com/IBM/sarama"
)

var ErrWriterClosed = errors.New("transactional writer is closed")

// Message is one downstream record. The key is always the order id.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// TxnWriter sends batches of messages inside one Kafka transaction each.
// It is not shared: every consumer owns its writer and transactional id.
type TxnWriter struct {
	mu       sync.Mutex
	producer sarama.SyncProducer
	closed   bool
}

// NewSaramaConfig returns an idempotent, transactional producer config.
func NewSaramaConfig(k config.Kafka, transactionalID string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if k.Version != "" {
		v, err := sarama.ParseKafkaVersion(k.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka version %q: %w", k.Version, err)
		}
		cfg.Version = v
	}
	cfg.ClientID = transactionalID
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Transaction.ID = transactionalID

	if k.SASLUsername != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		cfg.Net.SASL.User = k.SASLUsername
		cfg.Net.SASL.Password = k.SASLPassword
	}
	if k.TLS {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return cfg, cfg.Validate()
}

func NewTxnWriter(k config.Kafka, transactionalID string) (*TxnWriter, error) {
	cfg, err := NewSaramaConfig(k, transactionalID)
	if err != nil {
		return nil, failure.New(failure.UnrecoverableBroker, "kafka.writer.config", err)
	}
	prod, err := sarama.NewSyncProducer(k.Brokers, cfg)
	if err != nil {
		return nil, classify("kafka.writer.connect", err)
	}
	return NewTxnWriterFromProducer(prod), nil
}

// NewTxnWriterFromProducer wraps an existing transactional producer.
func NewTxnWriterFromProducer(prod sarama.SyncProducer) *TxnWriter {
	return &TxnWriter{producer: prod}
}

// SendTransactionally publishes all messages or none of them. When the
// transaction hits a fatal error the producer is closed and the error is
// unrecoverable; otherwise the transaction is aborted and the error can be
// retried.
func (w *TxnWriter) SendTransactionally(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return failure.New(failure.UnrecoverableBroker, "kafka.txn", ErrWriterClosed)
	}

	if err := w.producer.BeginTxn(); err != nil {
		return w.fail("kafka.txn.begin", err)
	}

	pms := make([]*sarama.ProducerMessage, 0, len(msgs))
	for _, m := range msgs {
		pms = append(pms, &sarama.ProducerMessage{
			Topic: m.Topic,
			Key:   sarama.StringEncoder(m.Key),
			Value: sarama.ByteEncoder(m.Value),
		})
	}
	if err := w.producer.SendMessages(pms); err != nil {
		return w.fail("kafka.txn.send", err)
	}
	if err := w.producer.CommitTxn(); err != nil {
		return w.fail("kafka.txn.commit", err)
	}
	return nil
}

func (w *TxnWriter) fail(op string, err error) error {
	if w.fatal() {
		logger.Error("%s: fatal transaction state, closing producer: %v", op, err)
		w.closeLocked()
		return failure.New(failure.UnrecoverableBroker, op, err)
	}

	if w.producer.TxnStatus()&sarama.ProducerTxnFlagInTransaction != 0 ||
		w.producer.TxnStatus()&sarama.ProducerTxnFlagAbortableError != 0 {
		if abortErr := w.producer.AbortTxn(); abortErr != nil {
			if w.fatal() {
				w.closeLocked()
				return failure.New(failure.UnrecoverableBroker, op, errors.Join(err, abortErr))
			}
			return failure.New(failure.RetriableBroker, op, errors.Join(err, abortErr))
		}
	}

	kind := kindOf(err)
	if kind == failure.UnrecoverableBroker {
		// the transaction was aborted cleanly, so the same batch can be
		// tried again
		kind = failure.RetriableBroker
	}
	return failure.New(kind, op, err)
}

func (w *TxnWriter) fatal() bool {
	return w.producer.TxnStatus()&sarama.ProducerTxnFlagFatalError != 0
}

// Closed reports whether the writer can no longer be used.
func (w *TxnWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// FlushAndClose waits for in-flight messages and releases the producer.
func (w *TxnWriter) FlushAndClose() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *TxnWriter) closeLocked() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.producer.Close()
}
