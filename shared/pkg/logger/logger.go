package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Scoped is a Logger carrying fixed attributes (topic, event type, ...).
type Scoped struct {
	base *slog.Logger
}

var std *slog.Logger

func init() {
	id := uuid.New().String()
	std = newSlog(os.Stdout, id)
}

func newSlog(w io.Writer, instance string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With("instance", instance)
}

// SetOutput redirects the package logger, mainly for tests.
func SetOutput(w io.Writer) {
	std = newSlog(w, uuid.New().String())
}

func Info(msg string, args ...any) {
	std.Info(fmt.Sprintf(msg, args...))
}

func Warn(msg string, args ...any) {
	std.Warn(fmt.Sprintf(msg, args...))
}

func Error(msg string, args ...any) {
	std.Error(fmt.Sprintf(msg, args...))
}

func Fatal(args ...any) {
	std.Error(fmt.Sprint(args...))
	os.Exit(1) // logs + os.Exit(1)
}

// With returns a scoped logger. Attributes are alternating key/value pairs
// as accepted by slog.
func With(attrs ...any) *Scoped {
	return &Scoped{base: std.With(attrs...)}
}

func (s *Scoped) Info(msg string, args ...any) {
	s.base.Info(fmt.Sprintf(msg, args...))
}

func (s *Scoped) Warn(msg string, args ...any) {
	s.base.Warn(fmt.Sprintf(msg, args...))
}

func (s *Scoped) Error(msg string, args ...any) {
	s.base.Error(fmt.Sprintf(msg, args...))
}

// With adds more attributes to an already scoped logger.
func (s *Scoped) With(attrs ...any) *Scoped {
	return &Scoped{base: s.base.With(attrs...)}
}
