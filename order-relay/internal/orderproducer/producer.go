// Package orderproducer sends notification orders and cancellations
// downstream and records them, as one unit per batch.
//
// The database transaction is opened first and committed last: rows are
// inserted with conflict detection, only the rows that were actually
// written are published in a Kafka transaction, and the database commits
// after the Kafka commit. Any failure in between rolls both back.
package orderproducer

import (
	"context"
	"encoding/json"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/store"
	"notification-hub/shared/pkg/domain"
)

// Tx is the part of the store used inside a transaction.
type Tx interface {
	InsertIgnoringConflicts(ctx context.Context, records []domain.OrderRecord) (store.PersistResult, error)
	MarkCancelled(ctx context.Context, orderIDs []string) ([]string, error)
}

// TxStore opens database transactions.
type TxStore interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Writer publishes a batch in one Kafka transaction.
type Writer interface {
	SendTransactionally(msgs []kafkaio.Message) error
}

type gormTxStore struct {
	s *store.Store
}

func (g gormTxStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return g.s.Transaction(ctx, func(tx *store.Store) error { return fn(tx) })
}

type Producer struct {
	store       TxStore
	writer      Writer
	orderTopic  string
	cancelTopic string
}

func New(s *store.Store, w Writer, orderTopic, cancelTopic string) *Producer {
	return NewWithStore(gormTxStore{s: s}, w, orderTopic, cancelTopic)
}

func NewWithStore(s TxStore, w Writer, orderTopic, cancelTopic string) *Producer {
	return &Producer{store: s, writer: w, orderTopic: orderTopic, cancelTopic: cancelTopic}
}

// SendAndPersist records the batch and sends the orders whose record was
// new. Records whose order id already existed come back in
// PersistResult.Conflicting and their orders are not sent.
func (p *Producer) SendAndPersist(ctx context.Context, orders map[string]domain.NotificationOrder, records []domain.OrderRecord) (store.PersistResult, error) {
	if len(records) == 0 {
		return store.PersistResult{}, nil
	}

	var result store.PersistResult
	err := p.store.InTx(ctx, func(tx Tx) error {
		res, err := tx.InsertIgnoringConflicts(ctx, records)
		if err != nil {
			return err
		}

		msgs := make([]kafkaio.Message, 0, len(res.Persisted))
		for _, rec := range res.Persisted {
			order, ok := orders[rec.OrderID]
			if !ok {
				return failure.Errorf(failure.Unknown, "orderproducer.send", "no order for record %s", rec.OrderID)
			}
			value, err := json.Marshal(order)
			if err != nil {
				return failure.New(failure.Unknown, "orderproducer.encode", err).With("order_id", rec.OrderID)
			}
			msgs = append(msgs, kafkaio.Message{Topic: p.orderTopic, Key: rec.OrderID, Value: value})
		}

		if err := p.writer.SendTransactionally(msgs); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return store.PersistResult{}, err
	}
	return result, nil
}

// Cancel marks the orders cancelled and sends a cancellation for each order
// that was not cancelled before. It returns the order ids that were sent.
func (p *Producer) Cancel(ctx context.Context, requests []domain.CancellationRequest) ([]string, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	byID := make(map[string]domain.CancellationRequest, len(requests))
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		if _, dup := byID[r.OrderID]; dup {
			continue
		}
		byID[r.OrderID] = r
		ids = append(ids, r.OrderID)
	}

	var sent []string
	err := p.store.InTx(ctx, func(tx Tx) error {
		flipped, err := tx.MarkCancelled(ctx, ids)
		if err != nil {
			return err
		}

		msgs := make([]kafkaio.Message, 0, len(flipped))
		for _, id := range flipped {
			value, err := json.Marshal(byID[id])
			if err != nil {
				return failure.New(failure.Unknown, "orderproducer.encode", err).With("order_id", id)
			}
			msgs = append(msgs, kafkaio.Message{Topic: p.cancelTopic, Key: id, Value: value})
		}

		if err := p.writer.SendTransactionally(msgs); err != nil {
			return err
		}
		sent = flipped
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}
