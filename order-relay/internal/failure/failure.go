// Package failure tags errors with the kind the consumer loop dispatches on.
//
// Errors are classified where they happen (store, writer, reader,
// transformer) and carried up wrapped in *Error. Only the consumer decides
// what to do with a kind.
package failure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	// Validation marks a record that can never be turned into an order.
	Validation
	// MissingKey marks a record without a usable key.
	MissingKey
	RetriableBroker
	UnrecoverableBroker
	RetriableStore
	UnrecoverableStore
	// Untransformable is the aggregate error for a batch where at least one
	// record failed unexpectedly.
	Untransformable
	// Authorization covers missing ACLs and unknown topics. Persistent but
	// usually fixed by an operator without a restart.
	Authorization
)

var kindNames = map[Kind]string{
	Unknown:             "unknown",
	Validation:          "validation",
	MissingKey:          "missing_key",
	RetriableBroker:     "retriable_broker",
	UnrecoverableBroker: "unrecoverable_broker",
	RetriableStore:      "retriable_store",
	UnrecoverableStore:  "unrecoverable_store",
	Untransformable:     "untransformable",
	Authorization:       "authorization",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is an error with a Kind and optional context values.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Context map[string]any
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// With attaches a context value and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retriable reports whether the kind is worth another attempt on the same
// offsets.
func (k Kind) Retriable() bool {
	switch k {
	case RetriableBroker, RetriableStore, Untransformable:
		return true
	}
	return false
}
