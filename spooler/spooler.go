package spooler

import (
	"context"
	"time"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

// countJobs returns the number of jobs the OS spooler holds for the named
// queue. Platform files provide the implementation; tests replace it.
var countJobs = platformJobCount

// JobCount reports how many jobs the OS spooler currently holds for the
// named printer queue. Probe failures count as an empty queue: an
// unreadable spooler must never wedge dispatch, so the safe answer is 0.
func JobCount(ctx context.Context, printerName string, logger Logger) int {
	if logger == nil {
		logger = nullLogger{}
	}
	n, err := countJobs(ctx, printerName)
	if err != nil {
		logger.Debug("Spooler probe failed, assuming empty queue",
			"printer", printerName, "error", err)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

// WaitUntilIdle polls the OS spooler until the named queue drains, maxWait
// elapses, or ctx is cancelled. The timeout is a result, not an error: a
// stuck spooler queue should not fail the job that already reached it.
// Returns true if the queue drained, false on timeout or cancellation.
func WaitUntilIdle(ctx context.Context, printerName string, maxWait, poll time.Duration, logger Logger) bool {
	if logger == nil {
		logger = nullLogger{}
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if JobCount(ctx, printerName, logger) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			logger.Warn("Spooler queue did not drain in time",
				"printer", printerName, "max_wait", maxWait)
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
