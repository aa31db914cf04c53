package domain

import "time"

// Channel defines the type of notification
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// ExternalChannels are the channels an external notification order may prefer.
var ExternalChannels = []Channel{ChannelSMS, ChannelEmail}

// EventType identifies the upstream event variant.
type EventType string

const (
	EventMessage EventType = "message"
	EventTask    EventType = "task"
	EventInbox   EventType = "inbox"
	EventDone    EventType = "done"
)

// Key is the structured record key on every upstream topic.
type Key struct {
	SystemUser string `json:"systemUser"`
	EventID    string `json:"eventId"`
	Namespace  string `json:"namespace,omitempty"`
	AppName    string `json:"appName,omitempty"`
}

// Producer names the upstream application, used as the metrics label.
func (k Key) Producer() string {
	if k.Namespace != "" && k.AppName != "" {
		return k.Namespace + "/" + k.AppName
	}
	return k.SystemUser
}

// Notice is the shape shared by the message, task and inbox events.
type Notice struct {
	SubjectID            string    `json:"subjectId"`
	GroupingID           string    `json:"groupingId"`
	Text                 string    `json:"text"`
	Link                 string    `json:"link,omitempty"`
	SecurityLevel        int       `json:"securityLevel"`
	ExternalNotification bool      `json:"externalNotification"`
	PreferredChannels    []string  `json:"preferredChannels,omitempty"`
	SMSText              string    `json:"smsText,omitempty"`
	EmailTitle           string    `json:"emailTitle,omitempty"`
	EmailText            string    `json:"emailText,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// Base exposes the embedded Notice of any event variant.
func (n Notice) Base() Notice { return n }

// MessageEvent is an informational notice.
type MessageEvent struct {
	Notice
}

// TaskEvent asks the user to act.
type TaskEvent struct {
	Notice
}

// InboxEvent points to an item in the user's inbox.
type InboxEvent struct {
	Notice
}

// DoneEvent marks a previously published event as completed.
type DoneEvent struct {
	SubjectID  string    `json:"subjectId"`
	GroupingID string    `json:"groupingId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationOrder is what gets published to the order topic.
type NotificationOrder struct {
	OrderID           string    `json:"orderId"`
	OrdererID         string    `json:"ordererId"`
	SubjectID         string    `json:"subjectId"`
	SecurityLevel     int       `json:"securityLevel"`
	Title             string    `json:"title"`
	SMSText           string    `json:"smsText"`
	EmailText         string    `json:"emailText"`
	RetryCount        int       `json:"retryCount"`
	RetryIntervalDays *int      `json:"retryIntervalDays,omitempty"`
	PreferredChannels []Channel `json:"preferredChannels"`
}

// CancellationRequest is what gets published to the cancellation topic.
type CancellationRequest struct {
	OrderID   string `json:"orderId"`
	OrdererID string `json:"ordererId"`
}

// OrderRecord is the persisted audit and idempotency row for an order.
type OrderRecord struct {
	OrderID   string
	EventID   string
	SubjectID string
	OrdererID string
	Namespace string
	AppName   string
	EventType EventType
	Channels  []Channel
	Payload   []byte
	CreatedAt time.Time
	Cancelled bool
}

// Producer mirrors Key.Producer for a stored record.
func (r OrderRecord) Producer() string {
	if r.Namespace != "" && r.AppName != "" {
		return r.Namespace + "/" + r.AppName
	}
	return r.OrdererID
}

// Cancellation builds the request that stops this order.
func (r OrderRecord) Cancellation() CancellationRequest {
	return CancellationRequest{OrderID: r.OrderID, OrdererID: r.OrdererID}
}
