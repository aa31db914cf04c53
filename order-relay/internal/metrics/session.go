package metrics

// Cancellation outcomes.
const (
	CancelSent      = "sent"
	CancelDuplicate = "duplicate"
	CancelNotFound  = "not_found"
	CancelDisabled  = "disabled"
)

// Session accumulates the counts of one batch. It is used by a single
// goroutine and needs no locking.
type Session struct {
	seen          map[string]int
	processed     map[string]int
	failed        map[string]int
	duplicate     map[string]int
	missingKey    int
	cancellations map[string]int
}

func newSession() *Session {
	return &Session{
		seen:          map[string]int{},
		processed:     map[string]int{},
		failed:        map[string]int{},
		duplicate:     map[string]int{},
		cancellations: map[string]int{},
	}
}

func (s *Session) Seen(producer string)      { s.seen[producer]++ }
func (s *Session) Processed(producer string) { s.processed[producer]++ }
func (s *Session) Failed(producer string)    { s.failed[producer]++ }
func (s *Session) Duplicate(producer string) { s.duplicate[producer]++ }
func (s *Session) MissingKey()               { s.missingKey++ }

// Cancellation counts n cancellations with the given outcome.
func (s *Session) Cancellation(outcome string, n int) {
	if n > 0 {
		s.cancellations[outcome] += n
	}
}

// ProcessedCount is the number of events sent in this session.
func (s *Session) ProcessedCount() int { return sum(s.processed) }

// DuplicateCount is the number of events found already sent.
func (s *Session) DuplicateCount() int { return sum(s.duplicate) }

// FailedCount is the number of events dropped as invalid.
func (s *Session) FailedCount() int { return sum(s.failed) }

// MissingKeyCount is the number of events skipped for lack of a key.
func (s *Session) MissingKeyCount() int { return s.missingKey }

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
