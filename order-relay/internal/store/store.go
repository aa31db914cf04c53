// Package store persists issued notification orders. The order id is the
// primary key of order_record and doubles as the idempotency key: inserts
// never fail on a duplicate id, they report it back as a conflict.
package store

import (
	"context"
	"errors"
	"strings"

	"notification-hub/shared/pkg/domain"

	"gorm.io/gorm"
)

const (
	insertChunkSize = 500
	lookupChunkSize = 1000
)

// PersistResult splits a batch insert into the rows written and the rows
// whose order id already existed.
type PersistResult struct {
	Persisted   []domain.OrderRecord
	Conflicting []domain.OrderRecord
}

// PersistedIDs returns the set of order ids that were actually written.
func (r PersistResult) PersistedIDs() map[string]bool {
	ids := make(map[string]bool, len(r.Persisted))
	for _, rec := range r.Persisted {
		ids[rec.OrderID] = true
	}
	return ids
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the order_record table.
func (s *Store) Migrate(ctx context.Context) error {
	return classify("store.migrate", s.db.WithContext(ctx).AutoMigrate(&orderRecordModel{}))
}

// Ping checks that a connection can be obtained.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("store.ping", err)
	}
	return classify("store.ping", sqlDB.PingContext(ctx))
}

// Transaction runs fn inside one database transaction. The transaction is
// rolled back when fn returns an error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return classify("store.transaction", err)
}

// FetchByOrderIDs returns the stored records for the ids that exist.
func (s *Store) FetchByOrderIDs(ctx context.Context, orderIDs []string) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for start := 0; start < len(orderIDs); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(orderIDs))
		var models []orderRecordModel
		err := s.db.WithContext(ctx).
			Where("order_id IN ?", orderIDs[start:end]).
			Find(&models).Error
		if err != nil {
			return nil, classify("store.fetch_by_order_ids", err)
		}
		for _, m := range models {
			out = append(out, m.toDomain())
		}
	}
	return out, nil
}

// FetchForDone finds the order a done event refers to. It returns nil when
// no order was ever issued for the event.
func (s *Store) FetchForDone(ctx context.Context, eventID, ordererID, subjectID string) (*domain.OrderRecord, error) {
	var m orderRecordModel
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND orderer_id = ? AND subject_id = ?", eventID, ordererID, subjectID).
		Order("created_at").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.fetch_for_done", err)
	}
	rec := m.toDomain()
	return &rec, nil
}

var insertColumns = []string{
	"order_id", "event_id", "subject_id", "orderer_id", "namespace", "app_name",
	"event_type", "channels", "payload", "created_at", "cancelled",
}

// InsertIgnoringConflicts writes records in bulk. A record whose order id
// already exists is left untouched and returned in Conflicting. Safe under
// concurrent writers racing on the same id.
func (s *Store) InsertIgnoringConflicts(ctx context.Context, records []domain.OrderRecord) (PersistResult, error) {
	var result PersistResult
	for start := 0; start < len(records); start += insertChunkSize {
		chunk := records[start:min(start+insertChunkSize, len(records))]

		query, args := buildInsert(chunk)
		var inserted []string
		if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&inserted).Error; err != nil {
			return PersistResult{}, classify("store.insert", err)
		}

		written := make(map[string]bool, len(inserted))
		for _, id := range inserted {
			written[id] = true
		}
		for _, rec := range chunk {
			if written[rec.OrderID] {
				result.Persisted = append(result.Persisted, rec)
				// a second record with the same id in this chunk conflicts
				delete(written, rec.OrderID)
			} else {
				result.Conflicting = append(result.Conflicting, rec)
			}
		}
	}
	return result, nil
}

func buildInsert(chunk []domain.OrderRecord) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO order_record (")
	b.WriteString(strings.Join(insertColumns, ", "))
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(insertColumns)), ", ") + ")"
	args := make([]any, 0, len(chunk)*len(insertColumns))
	for i, rec := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		m := toModel(rec)
		args = append(args,
			m.OrderID, m.EventID, m.SubjectID, m.OrdererID, m.Namespace, m.AppName,
			m.EventType, m.Channels, m.Payload, m.CreatedAt, m.Cancelled,
		)
	}
	b.WriteString(" ON CONFLICT (order_id) DO NOTHING RETURNING order_id")
	return b.String(), args
}

// MarkCancelled flags the given orders as cancelled and returns the ids that
// were flipped. Orders already cancelled are not returned, so a caller never
// cancels the same order twice.
func (s *Store) MarkCancelled(ctx context.Context, orderIDs []string) ([]string, error) {
	var flipped []string
	for start := 0; start < len(orderIDs); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(orderIDs))
		var ids []string
		err := s.db.WithContext(ctx).
			Raw("UPDATE order_record SET cancelled = ? WHERE order_id IN ? AND cancelled = ? RETURNING order_id",
				true, orderIDs[start:end], false).
			Scan(&ids).Error
		if err != nil {
			return nil, classify("store.mark_cancelled", err)
		}
		flipped = append(flipped, ids...)
	}
	return flipped, nil
}

