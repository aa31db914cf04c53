package transform

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"notification-hub/shared/pkg/domain"
)

func testKey(eventID string) domain.Key {
	return domain.Key{SystemUser: "srv-notify", EventID: eventID, Namespace: "team", AppName: "app"}
}

func testNotice() domain.Notice {
	return domain.Notice{
		SubjectID:            "12345678901",
		GroupingID:           "case-42",
		Text:                 "Your application has been received",
		Link:                 "https://example.org/case/42",
		SecurityLevel:        4,
		ExternalNotification: true,
		PreferredChannels:    []string{"SMS", "email"},
		Timestamp:            time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOrderIDIsDeterministic(t *testing.T) {
	for _, r := range []Rules{MessageRules, TaskRules, InboxRules} {
		a := r.OrderID("srv-notify", "7")
		b := r.OrderID("srv-notify", "7")
		if a != b {
			t.Fatalf("%s: order id not stable: %q vs %q", r.EventType, a, b)
		}
		if !strings.HasPrefix(a, r.Prefix+"-") {
			t.Fatalf("%s: order id %q lacks prefix %q", r.EventType, a, r.Prefix)
		}
	}
	if MessageRules.OrderID("p", "1") == TaskRules.OrderID("p", "1") {
		t.Fatal("order ids must differ across event types")
	}
}

func TestTransformPerType(t *testing.T) {
	cases := []struct {
		name      string
		run       func(domain.Key, domain.Notice) (domain.NotificationOrder, error)
		wantID    string
		wantRetry int
		wantDays  *int
	}{
		{
			name:   "message",
			run:    func(k domain.Key, n domain.Notice) (domain.NotificationOrder, error) { return Message(k, domain.MessageEvent{Notice: n}) },
			wantID: "B-srv-notify-1",
		},
		{
			name:      "task",
			run:       func(k domain.Key, n domain.Notice) (domain.NotificationOrder, error) { return Task(k, domain.TaskEvent{Notice: n}) },
			wantID:    "O-srv-notify-1",
			wantRetry: 1,
			wantDays:  intPtr(7),
		},
		{
			name:      "inbox",
			run:       func(k domain.Key, n domain.Notice) (domain.NotificationOrder, error) { return Inbox(k, domain.InboxEvent{Notice: n}) },
			wantID:    "I-srv-notify-1",
			wantRetry: 1,
			wantDays:  intPtr(4),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, err := tc.run(testKey("1"), testNotice())
			if err != nil {
				t.Fatalf("transform: %v", err)
			}
			if order.OrderID != tc.wantID {
				t.Errorf("order id = %q, want %q", order.OrderID, tc.wantID)
			}
			if order.OrdererID != "srv-notify" {
				t.Errorf("orderer = %q", order.OrdererID)
			}
			if order.SecurityLevel != 4 {
				t.Errorf("security level = %d", order.SecurityLevel)
			}
			if order.Title == "" || order.SMSText == "" || order.EmailText == "" {
				t.Errorf("texts must be filled: %+v", order)
			}
			if order.RetryCount != tc.wantRetry {
				t.Errorf("retry count = %d, want %d", order.RetryCount, tc.wantRetry)
			}
			switch {
			case tc.wantDays == nil && order.RetryIntervalDays != nil:
				t.Errorf("retry interval = %d, want none", *order.RetryIntervalDays)
			case tc.wantDays != nil && (order.RetryIntervalDays == nil || *order.RetryIntervalDays != *tc.wantDays):
				t.Errorf("retry interval = %v, want %d", order.RetryIntervalDays, *tc.wantDays)
			}
			if len(order.PreferredChannels) != 2 || order.PreferredChannels[1] != domain.ChannelEmail {
				t.Errorf("channels = %v", order.PreferredChannels)
			}
		})
	}
}

func TestTransformCustomTexts(t *testing.T) {
	n := testNotice()
	n.SMSText = "Custom sms"
	n.EmailTitle = "Custom title"
	n.EmailText = "Custom body"

	order, err := Transform(MessageRules, testKey("1"), n)
	if err != nil {
		t.Fatal(err)
	}
	if order.SMSText != "Custom sms" || order.Title != "Custom title" || order.EmailText != "Custom body" {
		t.Fatalf("custom texts not used: %+v", order)
	}
}

func TestTransformValidation(t *testing.T) {
	cases := []struct {
		name      string
		rules     Rules
		key       func(*domain.Key)
		notice    func(*domain.Notice)
		wantField string
	}{
		{"system user too long", MessageRules, func(k *domain.Key) { k.SystemUser = strings.Repeat("s", 101) }, nil, "system user"},
		{"event id too long", MessageRules, func(k *domain.Key) { k.EventID = strings.Repeat("e", 51) }, nil, "event id"},
		{"event id empty", MessageRules, func(k *domain.Key) { k.EventID = "" }, nil, "event id"},
		{"subject id too long", MessageRules, nil, func(n *domain.Notice) { n.SubjectID = "123456789012" }, "subject id"},
		{"subject id not digits", MessageRules, nil, func(n *domain.Notice) { n.SubjectID = "1234567890a" }, "subject id"},
		{"grouping id too long", InboxRules, nil, func(n *domain.Notice) { n.GroupingID = strings.Repeat("g", 101) }, "grouping id"},
		{"message text too long", MessageRules, nil, func(n *domain.Notice) { n.Text = strings.Repeat("t", 301) }, "text"},
		{"task text too long", TaskRules, nil, func(n *domain.Notice) { n.Text = strings.Repeat("t", 501) }, "text"},
		{"link too long", MessageRules, nil, func(n *domain.Notice) { n.Link = "https://example.org/" + strings.Repeat("l", 200) }, "link"},
		{"link invalid", MessageRules, nil, func(n *domain.Notice) { n.Link = "invalidLink" }, "link"},
		{"task link empty", TaskRules, nil, func(n *domain.Notice) { n.Link = "" }, "link"},
		{"security level too low", MessageRules, nil, func(n *domain.Notice) { n.SecurityLevel = 2 }, "security level"},
		{"unknown channel", MessageRules, nil, func(n *domain.Notice) { n.PreferredChannels = []string{"PIGEON"} }, "preferred channel"},
		{"push is not external", MessageRules, nil, func(n *domain.Notice) { n.PreferredChannels = []string{"PUSH"} }, "preferred channel"},
		{"channels without external flag", MessageRules, nil, func(n *domain.Notice) {
			n.ExternalNotification = false
			n.PreferredChannels = []string{"SMS"}
		}, "preferred channels"},
		{"sms text too long", MessageRules, nil, func(n *domain.Notice) { n.SMSText = strings.Repeat("s", 161) }, "sms text"},
		{"email title too long", MessageRules, nil, func(n *domain.Notice) { n.EmailTitle = strings.Repeat("s", 41) }, "email title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := testKey("1")
			n := testNotice()
			if tc.key != nil {
				tc.key(&key)
			}
			if tc.notice != nil {
				tc.notice(&n)
			}
			_, err := Transform(tc.rules, key, n)
			var fve *FieldValidationError
			if !errors.As(err, &fve) {
				t.Fatalf("expected FieldValidationError, got %v", err)
			}
			if fve.Field != tc.wantField {
				t.Fatalf("field = %q, want %q", fve.Field, tc.wantField)
			}
			if !strings.Contains(err.Error(), tc.wantField) {
				t.Fatalf("message %q should name %q", err, tc.wantField)
			}
		})
	}
}

func TestEmptyLinkAllowedForMessage(t *testing.T) {
	n := testNotice()
	n.Link = ""
	if _, err := Transform(MessageRules, testKey("1"), n); err != nil {
		t.Fatalf("empty link should be allowed for messages: %v", err)
	}
	if _, err := Transform(InboxRules, testKey("1"), n); err != nil {
		t.Fatalf("empty link should be allowed for inbox items: %v", err)
	}
}

func TestSecurityLevelAboveFloorAllowed(t *testing.T) {
	n := testNotice()
	n.SecurityLevel = 5
	if _, err := Transform(MessageRules, testKey("1"), n); err != nil {
		t.Fatalf("level 5 should pass the floor: %v", err)
	}
}

func TestNewRecord(t *testing.T) {
	key := testKey("9")
	order, err := Transform(TaskRules, key, testNotice())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec, err := NewRecord(TaskRules, key, order, now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.OrderID != "O-srv-notify-9" || rec.EventID != "9" || rec.EventType != domain.EventTask {
		t.Fatalf("record = %+v", rec)
	}
	if rec.CreatedAt.Location() != time.UTC {
		t.Fatal("created at should be stored in UTC")
	}
	var decoded domain.NotificationOrder
	if err := json.Unmarshal(rec.Payload, &decoded); err != nil {
		t.Fatalf("payload is not the order json: %v", err)
	}
	if decoded.OrderID != rec.OrderID {
		t.Fatalf("payload order id = %q", decoded.OrderID)
	}
}

func TestValidateDone(t *testing.T) {
	if err := ValidateDone(testKey("1"), domain.DoneEvent{SubjectID: "12345678901"}); err != nil {
		t.Fatalf("valid done rejected: %v", err)
	}
	err := ValidateDone(testKey("1"), domain.DoneEvent{SubjectID: ""})
	var fve *FieldValidationError
	if !errors.As(err, &fve) || fve.Field != "subject id" {
		t.Fatalf("expected subject id error, got %v", err)
	}
}

func intPtr(v int) *int { return &v }
