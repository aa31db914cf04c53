// Package transform turns upstream notices into external notification
// orders. Every function here is pure.
package transform

import (
	"encoding/json"
	"fmt"
	"time"

	"notification-hub/shared/pkg/domain"
)

// Transform validates a notice and builds its order.
func Transform(r Rules, key domain.Key, n domain.Notice) (domain.NotificationOrder, error) {
	if err := validateKey(key); err != nil {
		return domain.NotificationOrder{}, err
	}
	if err := validateNotice(r, n); err != nil {
		return domain.NotificationOrder{}, err
	}
	channels, err := preferredChannels(n.PreferredChannels, n.ExternalNotification)
	if err != nil {
		return domain.NotificationOrder{}, err
	}

	order := domain.NotificationOrder{
		OrderID:           r.OrderID(key.SystemUser, key.EventID),
		OrdererID:         key.SystemUser,
		SubjectID:         n.SubjectID,
		SecurityLevel:     n.SecurityLevel,
		Title:             firstNonEmpty(n.EmailTitle, r.Title),
		SMSText:           firstNonEmpty(n.SMSText, r.SMSText),
		EmailText:         firstNonEmpty(n.EmailText, r.EmailText),
		RetryCount:        r.RetryCount,
		PreferredChannels: channels,
	}
	if r.RetryIntervalDays > 0 {
		days := r.RetryIntervalDays
		order.RetryIntervalDays = &days
	}
	return order, nil
}

func Message(key domain.Key, e domain.MessageEvent) (domain.NotificationOrder, error) {
	return Transform(MessageRules, key, e.Notice)
}

func Task(key domain.Key, e domain.TaskEvent) (domain.NotificationOrder, error) {
	return Transform(TaskRules, key, e.Notice)
}

func Inbox(key domain.Key, e domain.InboxEvent) (domain.NotificationOrder, error) {
	return Transform(InboxRules, key, e.Notice)
}

// NewRecord builds the row persisted alongside an order.
func NewRecord(r Rules, key domain.Key, order domain.NotificationOrder, now time.Time) (domain.OrderRecord, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("marshal order %s: %w", order.OrderID, err)
	}
	return domain.OrderRecord{
		OrderID:   order.OrderID,
		EventID:   key.EventID,
		SubjectID: order.SubjectID,
		OrdererID: order.OrdererID,
		Namespace: key.Namespace,
		AppName:   key.AppName,
		EventType: r.EventType,
		Channels:  order.PreferredChannels,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
