// Package processor turns a polled batch of upstream records into
// notification orders (or cancellations) and hands them to the order
// producer as one unit.
//
// A record is either skipped (no key, tombstone, no external notification
// requested), dropped (invalid, counted and logged), queued for sending, or
// marked problematic. Problematic records do not stop the batch: the rest
// is sent and one aggregate error is returned afterwards so the consumer
// rewinds and the batch is redelivered. Redelivery is safe because orders
// already sent are filtered out by the store.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/order-relay/internal/kafkaio"
	"notification-hub/order-relay/internal/transform"
	"notification-hub/shared/pkg/domain"
)

// Processor handles one polled batch.
type Processor interface {
	Process(ctx context.Context, records []kafkaio.Record) error
}

// UntransformableError reports how many records of a batch failed for a
// reason other than validation.
type UntransformableError struct {
	EventType domain.EventType
	Count     int
}

func (e *UntransformableError) Error() string {
	return fmt.Sprintf("%d %s record(s) could not be transformed", e.Count, e.EventType)
}

func untransformable(eventType domain.EventType, count int) error {
	return failure.New(failure.Untransformable, "processor.batch",
		&UntransformableError{EventType: eventType, Count: count})
}

// decodeKey parses the record key. A key that is absent, undecodable or
// names neither producer nor event cannot be attributed to anyone.
func decodeKey(raw []byte) (domain.Key, bool) {
	if len(raw) == 0 {
		return domain.Key{}, false
	}
	var key domain.Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return domain.Key{}, false
	}
	if key.SystemUser == "" && key.EventID == "" {
		return domain.Key{}, false
	}
	return key, true
}

func isValidation(err error) bool {
	var fve *transform.FieldValidationError
	return errors.As(err, &fve) || failure.Is(err, failure.Validation)
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func position(rec kafkaio.Record) string {
	return fmt.Sprintf("%s/%d@%d", rec.Topic, rec.Partition, rec.Offset)
}
