package processor

import (
	"context"
	"encoding/json"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/order-relay/internal/transform"
	"notification-hub/shared/pkg/domain"
	"notification-hub/shared/pkg/logger"
)

// DoneLookup finds the order a done event refers to.
type DoneLookup interface {
	FetchForDone(ctx context.Context, eventID, ordererID, subjectID string) (*domain.OrderRecord, error)
}

// Canceller marks orders cancelled and sends the cancellations.
type Canceller interface {
	Cancel(ctx context.Context, requests []domain.CancellationRequest) ([]string, error)
}

// CancelProcessor relays done events as cancellations of the orders issued
// for the same event. With enabled unset it only reports what it would send.
type CancelProcessor struct {
	lookup    DoneLookup
	canceller Canceller
	metrics   *metrics.Collector
	enabled   bool
	log       *logger.Scoped
}

func NewCancelProcessor(lookup DoneLookup, canceller Canceller, m *metrics.Collector, enabled bool) *CancelProcessor {
	return &CancelProcessor{
		lookup:    lookup,
		canceller: canceller,
		metrics:   m,
		enabled:   enabled,
		log:       logger.With("event_type", string(domain.EventDone)),
	}
}

func (p *CancelProcessor) EventType() domain.EventType { return domain.EventDone }

func (p *CancelProcessor) Process(ctx context.Context, records []kafkaio.Record) error {
	return p.metrics.RecordMetrics(domain.EventDone, func(s *metrics.Session) error {
		return p.process(ctx, records, s)
	})
}

func (p *CancelProcessor) process(ctx context.Context, records []kafkaio.Record, s *metrics.Session) error {
	var requests []domain.CancellationRequest
	producers := map[string]string{}
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

		var done domain.DoneEvent
		err := guard(func() error {
			if err := json.Unmarshal(rec.Value, &done); err != nil {
				return failure.New(failure.Validation, "processor.decode", err)
			}
			return transform.ValidateDone(key, done)
		})
		switch {
		case err == nil:
		case isValidation(err):
			s.Failed(key.Producer())
			p.log.Warn("dropping invalid record %s from %s: %v", position(rec), key.Producer(), err)
			continue
		default:
			problematic++
			p.log.Error("could not read record %s from %s: %v", position(rec), key.Producer(), err)
			continue
		}

		order, err := p.lookup.FetchForDone(ctx, key.EventID, key.SystemUser, done.SubjectID)
		if err != nil {
			return err
		}
		switch {
		case order == nil:
			s.Cancellation(metrics.CancelNotFound, 1)
		case order.Cancelled:
			s.Duplicate(key.Producer())
			s.Cancellation(metrics.CancelDuplicate, 1)
		default:
			if _, queued := producers[order.OrderID]; queued {
				continue
			}
			producers[order.OrderID] = key.Producer()
			requests = append(requests, order.Cancellation())
		}
	}

	if len(requests) > 0 {
		if err := p.cancel(ctx, requests, producers, s); err != nil {
			return err
		}
	}
	if problematic > 0 {
		return untransformable(domain.EventDone, problematic)
	}
	return nil
}

func (p *CancelProcessor) cancel(ctx context.Context, requests []domain.CancellationRequest, producers map[string]string, s *metrics.Session) error {
	if !p.enabled {
		s.Cancellation(metrics.CancelDisabled, len(requests))
		p.log.Info("cancellation disabled, would have sent %d cancellation(s)", len(requests))
		return nil
	}

	sent, err := p.canceller.Cancel(ctx, requests)
	if err != nil {
		return err
	}
	for _, id := range sent {
		s.Processed(producers[id])
	}
	s.Cancellation(metrics.CancelSent, len(sent))
	s.Cancellation(metrics.CancelDuplicate, len(requests)-len(sent))
	p.log.Info("sent %d cancellation(s)", len(sent))
	return nil
}
