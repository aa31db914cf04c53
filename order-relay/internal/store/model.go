package store

import (
	"time"

	"notification-hub/shared/pkg/domain"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

/* -------------------- GORM MODEL -------------------- */

type orderRecordModel struct {
	OrderID   string         `gorm:"primaryKey;column:order_id;type:varchar(200)"`
	EventID   string         `gorm:"column:event_id;type:varchar(50);not null;index:idx_order_record_lookup"`
	SubjectID string         `gorm:"column:subject_id;type:varchar(11);not null;index:idx_order_record_lookup"`
	OrdererID string         `gorm:"column:orderer_id;type:varchar(100);not null;index:idx_order_record_lookup"`
	Namespace string         `gorm:"column:namespace;type:varchar(100)"`
	AppName   string         `gorm:"column:app_name;type:varchar(100)"`
	EventType string         `gorm:"column:event_type;type:varchar(16);not null"`
	Channels  pq.StringArray `gorm:"column:channels;type:text[]"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	Cancelled bool           `gorm:"column:cancelled;not null;default:false"`
}

func (orderRecordModel) TableName() string { return "order_record" }

/* -------------------- Mapping -------------------- */

func toModel(r domain.OrderRecord) orderRecordModel {
	channels := make(pq.StringArray, 0, len(r.Channels))
	for _, c := range r.Channels {
		channels = append(channels, string(c))
	}
	return orderRecordModel{
		OrderID:   r.OrderID,
		EventID:   r.EventID,
		SubjectID: r.SubjectID,
		OrdererID: r.OrdererID,
		Namespace: r.Namespace,
		AppName:   r.AppName,
		EventType: string(r.EventType),
		Channels:  channels,
		Payload:   datatypes.JSON(r.Payload),
		CreatedAt: r.CreatedAt,
		Cancelled: r.Cancelled,
	}
}

func (m orderRecordModel) toDomain() domain.OrderRecord {
	channels := make([]domain.Channel, 0, len(m.Channels))
	for _, c := range m.Channels {
		channels = append(channels, domain.Channel(c))
	}
	return domain.OrderRecord{
		OrderID:   m.OrderID,
		EventID:   m.EventID,
		SubjectID: m.SubjectID,
		OrdererID: m.OrdererID,
		Namespace: m.Namespace,
		AppName:   m.AppName,
		EventType: domain.EventType(m.EventType),
		Channels:  channels,
		Payload:   []byte(m.Payload),
		CreatedAt: m.CreatedAt,
		Cancelled: m.Cancelled,
	}
}
