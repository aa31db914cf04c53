package processor

import (
	"context"
	"encoding/json"
	"time"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/order-relay/internal/store"
	"notification-hub/order-relay/internal/transform"
	"notification-hub/shared/pkg/domain"
	"notification-hub/shared/pkg/logger"
)

// Event is any upstream variant carrying a notice.
type Event interface {
	Base() domain.Notice
}

// Lookup finds orders that were already issued.
type Lookup interface {
	FetchByOrderIDs(ctx context.Context, orderIDs []string) ([]domain.OrderRecord, error)
}

// OrderSender sends and records a batch of orders.
type OrderSender interface {
	SendAndPersist(ctx context.Context, orders map[string]domain.NotificationOrder, records []domain.OrderRecord) (store.PersistResult, error)
}

type pendingOrder struct {
	order    domain.NotificationOrder
	record   domain.OrderRecord
	producer string
}

// OrderProcessor handles message, task and inbox batches. The rules decide
// the event type.
type OrderProcessor[E Event] struct {
	rules   transform.Rules
	lookup  Lookup
	sender  OrderSender
	metrics *metrics.Collector
	log     *logger.Scoped

	transform func(transform.Rules, domain.Key, domain.Notice) (domain.NotificationOrder, error)
	now       func() time.Time
}

func NewOrderProcessor[E Event](rules transform.Rules, lookup Lookup, sender OrderSender, m *metrics.Collector) *OrderProcessor[E] {
	return &OrderProcessor[E]{
		rules:     rules,
		lookup:    lookup,
		sender:    sender,
		metrics:   m,
		log:       logger.With("event_type", string(rules.EventType)),
		transform: transform.Transform,
		now:       time.Now,
	}
}

func (p *OrderProcessor[E]) EventType() domain.EventType { return p.rules.EventType }

func (p *OrderProcessor[E]) Process(ctx context.Context, records []kafkaio.Record) error {
	return p.metrics.RecordMetrics(p.rules.EventType, func(s *metrics.Session) error {
		return p.process(ctx, records, s)
	})
}

func (p *OrderProcessor[E]) process(ctx context.Context, records []kafkaio.Record, s *metrics.Session) error {
	pending := make(map[string]pendingOrder)
	var ids []string
	problematic := 0

	for _, rec := range records {
		key, ok := decodeKey(rec.Key)
		if !ok {
			s.MissingKey()
			p.log.Warn("skipping record %s without a usable key", position(rec))
			continue
		}
		s.Seen(key.Producer())
		if rec.Value == nil {
			continue
		}

		var po *pendingOrder
		err := guard(func() error {
			var err error
			po, err = p.transformRecord(key, rec.Value)
			return err
		})
		switch {
		case err == nil && po == nil:
			// no external notification requested
		case err == nil:
			if _, seen := pending[po.order.OrderID]; !seen {
				ids = append(ids, po.order.OrderID)
			}
			pending[po.order.OrderID] = *po
		case isValidation(err):
			s.Failed(key.Producer())
			p.log.Warn("dropping invalid record %s from %s: %v", position(rec), key.Producer(), err)
		default:
			problematic++
			p.log.Error("could not transform record %s from %s: %v", position(rec), key.Producer(), err)
		}
	}

	if len(pending) > 0 {
		if err := p.send(ctx, pending, ids, s); err != nil {
			return err
		}
	}
	if problematic > 0 {
		return untransformable(p.rules.EventType, problematic)
	}
	return nil
}

func (p *OrderProcessor[E]) transformRecord(key domain.Key, value []byte) (*pendingOrder, error) {
	var event E
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, failure.New(failure.Validation, "processor.decode", err)
	}
	notice := event.Base()
	if !notice.ExternalNotification && len(notice.PreferredChannels) == 0 {
		return nil, nil
	}

	order, err := p.transform(p.rules, key, notice)
	if err != nil {
		return nil, err
	}
	record, err := transform.NewRecord(p.rules, key, order, p.now())
	if err != nil {
		return nil, err
	}
	return &pendingOrder{order: order, record: record, producer: key.Producer()}, nil
}

func (p *OrderProcessor[E]) send(ctx context.Context, pending map[string]pendingOrder, ids []string, s *metrics.Session) error {
	existing, err := p.lookup.FetchByOrderIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, rec := range existing {
		po, ok := pending[rec.OrderID]
		if !ok {
			continue
		}
		s.Duplicate(po.producer)
		p.log.Info("order %s was already sent, skipping", rec.OrderID)
		delete(pending, rec.OrderID)
	}
	if len(pending) == 0 {
		return nil
	}

	orders := make(map[string]domain.NotificationOrder, len(pending))
	records := make([]domain.OrderRecord, 0, len(pending))
	for _, id := range ids {
		po, ok := pending[id]
		if !ok {
			continue
		}
		orders[id] = po.order
		records = append(records, po.record)
	}

	result, err := p.sender.SendAndPersist(ctx, orders, records)
	if err != nil {
		return err
	}
	for _, rec := range result.Persisted {
		s.Processed(pending[rec.OrderID].producer)
	}
	for _, rec := range result.Conflicting {
		// another writer got there between lookup and insert
		s.Duplicate(pending[rec.OrderID].producer)
		p.log.Info("order %s was sent concurrently, skipping", rec.OrderID)
	}
	p.log.Info("sent %d order(s), %d duplicate(s)", len(result.Persisted), len(result.Conflicting))
	return nil
}
