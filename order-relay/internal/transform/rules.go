package transform

import (
	"fmt"

	"notification-hub/shared/pkg/domain"
)

const (
	MaxLengthSystemUser = 100
	MaxLengthEventID    = 50
	MaxLengthSubjectID  = 11
	MaxLengthGroupingID = 100
	MaxLengthLink       = 200
	MaxLengthSMSText    = 160
	MaxLengthEmailTitle = 40
	MaxLengthEmailText  = 4000

	// MinSecurityLevel is the lowest login level an external notification
	// may be ordered for.
	MinSecurityLevel = 4
)

// Rules holds everything that differs between the notice variants.
type Rules struct {
	EventType     domain.EventType
	Prefix        string
	MaxTextLength int
	LinkRequired  bool

	RetryCount        int
	RetryIntervalDays int // zero means no renotification

	Title     string
	SMSText   string
	EmailText string
}

var (
	MessageRules = Rules{
		EventType:     domain.EventMessage,
		Prefix:        "B",
		MaxTextLength: 300,
		Title:         "You have a new message",
		SMSText:       "Hi! You have received a new message. Log in to read it.",
		EmailText:     "Hi!\n\nYou have received a new message. Log in to read it.\n",
	}
	TaskRules = Rules{
		EventType:         domain.EventTask,
		Prefix:            "O",
		MaxTextLength:     500,
		LinkRequired:      true,
		RetryCount:        1,
		RetryIntervalDays: 7,
		Title:             "You have a new task",
		SMSText:           "Hi! You have received a new task. Log in to see what you need to do.",
		EmailText:         "Hi!\n\nYou have received a new task. Log in to see what you need to do.\n",
	}
	InboxRules = Rules{
		EventType:         domain.EventInbox,
		Prefix:            "I",
		MaxTextLength:     500,
		RetryCount:        1,
		RetryIntervalDays: 4,
		Title:             "You have a new item in your inbox",
		SMSText:           "Hi! You have received a new item in your inbox. Log in to read it.",
		EmailText:         "Hi!\n\nYou have received a new item in your inbox. Log in to read it.\n",
	}
)

// RulesFor returns the rules of an order-producing event type.
func RulesFor(t domain.EventType) (Rules, error) {
	switch t {
	case domain.EventMessage:
		return MessageRules, nil
	case domain.EventTask:
		return TaskRules, nil
	case domain.EventInbox:
		return InboxRules, nil
	}
	return Rules{}, fmt.Errorf("transform: no order rules for event type %q", t)
}

// OrderID builds the deterministic order id for an event.
func (r Rules) OrderID(systemUser, eventID string) string {
	return OrderID(r.Prefix, systemUser, eventID)
}

// OrderID is "{prefix}-{systemUser}-{eventID}".
func OrderID(prefix, systemUser, eventID string) string {
	return prefix + "-" + systemUser + "-" + eventID
}
