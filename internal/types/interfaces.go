package types

import "time"

// Clock abstracts time for testability. The dispatch loop and builder take
// their "now" from a Clock so tests can pin the instant.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used where a *slog.Logger
// would force an import cycle or over-specify the dependency.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
