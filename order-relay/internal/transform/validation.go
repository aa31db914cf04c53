package transform

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"notification-hub/shared/pkg/domain"
)

// FieldValidationError is returned when an event can never become an order.
type FieldValidationError struct {
	Field  string
	Reason string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *FieldValidationError {
	return &FieldValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func requireMaxLength(value, field string, max int) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "required field is empty")
	}
	return optionalMaxLength(value, field, max)
}

func optionalMaxLength(value, field string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return invalid(field, "length %d exceeds max %d", n, max)
	}
	return nil
}

func validateSubjectID(value string) error {
	if err := requireMaxLength(value, "subject id", MaxLengthSubjectID); err != nil {
		return err
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return invalid("subject id", "must contain digits only")
		}
	}
	return nil
}

// validateLink accepts an empty link unless the rules require one. A
// non-empty link must be an absolute http(s) url, since it ends up as the
// click target of the notification.
func validateLink(value string, required bool) error {
	if value == "" {
		if required {
			return invalid("link", "required field is empty")
		}
		return nil
	}
	if err := optionalMaxLength(value, "link", MaxLengthLink); err != nil {
		return err
	}
	u, err := url.ParseRequestURI(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("link", "%q is not an absolute http(s) url", value)
	}
	return nil
}

func validateSecurityLevel(level int) error {
	if level < MinSecurityLevel {
		return invalid("security level", "level %d is not allowed, must be at least %d", level, MinSecurityLevel)
	}
	return nil
}

// preferredChannels validates and normalises the preferred channel list.
func preferredChannels(raw []string, external bool) ([]domain.Channel, error) {
	if len(raw) > 0 && !external {
		return nil, invalid("preferred channels", "set while external notification is off")
	}
	out := make([]domain.Channel, 0, len(raw))
	seen := make(map[domain.Channel]bool, len(raw))
	for _, v := range raw {
		ch := domain.Channel(strings.ToUpper(strings.TrimSpace(v)))
		if !isExternalChannel(ch) {
			return nil, invalid("preferred channel", "%q is not supported", v)
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out, nil
}

func isExternalChannel(ch domain.Channel) bool {
	for _, allowed := range domain.ExternalChannels {
		if ch == allowed {
			return true
		}
	}
	return false
}

func validateKey(key domain.Key) error {
	if err := requireMaxLength(key.SystemUser, "system user", MaxLengthSystemUser); err != nil {
		return err
	}
	return requireMaxLength(key.EventID, "event id", MaxLengthEventID)
}

func validateNotice(r Rules, n domain.Notice) error {
	if err := validateSubjectID(n.SubjectID); err != nil {
		return err
	}
	if err := requireMaxLength(n.GroupingID, "grouping id", MaxLengthGroupingID); err != nil {
		return err
	}
	if err := requireMaxLength(n.Text, "text", r.MaxTextLength); err != nil {
		return err
	}
	if err := validateLink(n.Link, r.LinkRequired); err != nil {
		return err
	}
	if err := validateSecurityLevel(n.SecurityLevel); err != nil {
		return err
	}
	if err := optionalMaxLength(n.SMSText, "sms text", MaxLengthSMSText); err != nil {
		return err
	}
	if err := optionalMaxLength(n.EmailTitle, "email title", MaxLengthEmailTitle); err != nil {
		return err
	}
	return optionalMaxLength(n.EmailText, "email text", MaxLengthEmailText)
}

// ValidateDone checks a done event and its key before a record lookup.
func ValidateDone(key domain.Key, done domain.DoneEvent) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return validateSubjectID(done.SubjectID)
}
