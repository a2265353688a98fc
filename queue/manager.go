package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetprint/storage"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// OutcomeNotifier is notified when a job reaches a terminal state.
type OutcomeNotifier interface {
	JobOutcome(ctx context.Context, job *storage.PrintJob)
}

// conflictRetryWait is how long to back off before the single retry of a
// status transition that hit a storage write conflict.
const conflictRetryWait = 500 * time.Millisecond

// Manager owns the ordered work queue. The store's transactions carry the
// atomicity; the manager adds the retry policy, outcome notifications and
// queue-capacity enforcement on top.
type Manager struct {
	store    storage.Store
	notifier OutcomeNotifier
	logger   Logger
}

// NewManager creates a queue manager. notifier may be nil.
func NewManager(store storage.Store, notifier OutcomeNotifier, logger Logger) *Manager {
	return &Manager{store: store, notifier: notifier, logger: logger}
}

// Enqueue appends a pending job to the queue, assigning it the next
// position. Fails with storage.ErrNotPending if the job already left the
// pending state and storage.ErrAlreadyQueued if an entry exists. When the
// target device caps its queue size, a full queue is rejected.
func (m *Manager) Enqueue(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}

	if device, err := m.store.GetDevice(ctx, job.DeviceID); err == nil {
		if max := device.Settings.MaxQueueSize; max > 0 {
			pending, err := m.store.PendingCount(ctx, device.ID)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", jobID, err)
			}
			if pending >= max {
				return fmt.Errorf("enqueue %s: queue for device %s is full (%d entries)",
					jobID, device.ID, pending)
			}
		}
	}

	entry, err := m.store.EnqueueJob(ctx, jobID)
	if err != nil {
		return err
	}
	m.logger.Info("Job enqueued", "job", jobID, "device", job.DeviceID, "position", entry.Position)
	return nil
}

// NextEligible returns the lowest-position pending entry for the device,
// or storage.ErrNotFound when the device has no pending work.
func (m *Manager) NextEligible(ctx context.Context, deviceID string) (*storage.QueueEntry, error) {
	return m.store.NextEligibleEntry(ctx, deviceID)
}

// DevicesWithPending lists the devices that currently have at least one
// pending entry.
func (m *Manager) DevicesWithPending(ctx context.Context) ([]string, error) {
	return m.store.DevicesWithPending(ctx)
}

// MarkInProgress flips an entry and its job to in-progress. A transient
// storage write conflict gets exactly one retry after a short wait; a
// second conflict propagates to the caller.
func (m *Manager) MarkInProgress(ctx context.Context, entryID int64) error {
	err := m.store.MarkEntryInProgress(ctx, entryID)
	if !errors.Is(err, storage.ErrConflict) {
		return err
	}

	m.logger.Warn("Write conflict marking entry in progress, retrying once", "entry", entryID)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(conflictRetryWait):
	}
	return m.store.MarkEntryInProgress(ctx, entryID)
}

// Finish moves a job to a terminal state, removes its queue entry,
// renumbers the remaining entries and, for completed and failed outcomes,
// notifies the job's owner.
func (m *Manager) Finish(ctx context.Context, jobID string, outcome storage.JobStatus, message string) error {
	if err := m.store.FinishJob(ctx, jobID, outcome, message); err != nil {
		return fmt.Errorf("finish %s: %w", jobID, err)
	}
	m.logger.Info("Job finished", "job", jobID, "outcome", string(outcome))

	if m.notifier == nil {
		return nil
	}
	if outcome != storage.JobCompleted && outcome != storage.JobFailed {
		return nil
	}
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Warn("Failed to load finished job for notification", "job", jobID, "error", err)
		return nil
	}
	m.notifier.JobOutcome(ctx, job)
	return nil
}

// PendingCount reports how many pending entries a device has.
func (m *Manager) PendingCount(ctx context.Context, deviceID string) (int, error) {
	return m.store.PendingCount(ctx, deviceID)
}

// Snapshot returns the queue contents in position order, capped at limit.
func (m *Manager) Snapshot(ctx context.Context, limit int) ([]*storage.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.QueueSnapshot(ctx, limit)
}

// Stats returns aggregate queue counters.
func (m *Manager) Stats(ctx context.Context) (*storage.QueueStats, error) {
	return m.store.QueueStats(ctx)
}
