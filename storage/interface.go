package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when trying to create a record that already exists
	ErrDuplicate = errors.New("record already exists")
	// ErrNotPending is returned by queue transitions that require a pending state
	ErrNotPending = errors.New("not in pending state")
	// ErrAlreadyQueued is returned when a job already has a queue entry
	ErrAlreadyQueued = errors.New("job already queued")
	// ErrConflict is returned on a transient write conflict; callers may retry
	ErrConflict = errors.New("transient write conflict")
)

// Logger is the minimal logging surface the storage layer needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
	WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{})
}

// Global logger for the storage package
var storageLogger Logger

// SetLogger sets the logger for the storage package
func SetLogger(logger Logger) {
	storageLogger = logger
}

// Store is the persistence contract for jobs, queue entries, devices,
// error records and notifications. Multi-record mutations (Enqueue,
// MarkEntryInProgress, FinishJob, pause/resume) are atomic: a concurrent
// reader never observes a partially-applied transition.
type Store interface {
	// Jobs

	// CreateJob adds a new job in pending state. Returns ErrDuplicate if
	// the id already exists.
	CreateJob(ctx context.Context, job *PrintJob) error

	// GetJob retrieves a job by id. Returns ErrNotFound if missing.
	GetJob(ctx context.Context, id string) (*PrintJob, error)

	// JobsInProgress returns all jobs currently in-progress or paused,
	// for the supply monitor's device scan.
	JobsInProgress(ctx context.Context) ([]*PrintJob, error)

	// PauseHistory returns a job's pause records, oldest first.
	PauseHistory(ctx context.Context, jobID string) ([]*PauseRecord, error)

	// Queue

	// EnqueueJob atomically creates the queue entry at max(position)+1 and
	// transitions the job to queued. Returns ErrNotPending if the job is
	// not pending, ErrAlreadyQueued if an entry already exists.
	EnqueueJob(ctx context.Context, jobID string) (*QueueEntry, error)

	// NextEligibleEntry returns the lowest-position pending entry bound to
	// the device, or ErrNotFound.
	NextEligibleEntry(ctx context.Context, deviceID string) (*QueueEntry, error)

	// DevicesWithPending returns ids of devices that have at least one
	// pending entry.
	DevicesWithPending(ctx context.Context) ([]string, error)

	// MarkEntryInProgress atomically flips entry and job to in-progress.
	// Returns ErrNotPending unless the entry is pending, ErrConflict on a
	// transient write conflict.
	MarkEntryInProgress(ctx context.Context, entryID int64) error

	// FinishJob atomically deletes the queue entry, sets the terminal job
	// status and message, and renumbers the remaining entries to a
	// gap-free 1..M preserving relative order.
	FinishJob(ctx context.Context, jobID string, status JobStatus, message string) error

	// PendingCount returns the number of pending entries for a device.
	PendingCount(ctx context.Context, deviceID string) (int, error)

	// QueueSnapshot returns up to limit queue rows ordered by position.
	QueueSnapshot(ctx context.Context, limit int) ([]*QueueItem, error)

	// QueueStats returns aggregate queue counters.
	QueueStats(ctx context.Context) (*QueueStats, error)

	// Pause state (supply monitor only)

	// PauseJob atomically sets the job paused, records PauseInfo and
	// appends a pause history record. Returns ErrNotFound for unknown
	// jobs.
	PauseJob(ctx context.Context, jobID, reason, details string) error

	// ResumeJob atomically restores the job to in-progress, clears
	// PauseInfo and closes the latest open pause record.
	ResumeJob(ctx context.Context, jobID string) error

	// Devices

	UpsertDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, id string) (*Device, error)
	ListDevices(ctx context.Context) ([]*Device, error)
	SetDeviceStatus(ctx context.Context, id string, status DeviceStatus) error

	// UpdateDeviceSupplies records the latest probe readings.
	UpdateDeviceSupplies(ctx context.Context, id string, paper int, toner map[string]int, pageCount int) error

	// UpdateDeviceErrors replaces the device's last known error flags.
	UpdateDeviceErrors(ctx context.Context, id string, errs []string) error

	// Audit + notifications

	AddErrorRecord(ctx context.Context, rec *ErrorRecord) error
	ErrorRecords(ctx context.Context, limit int) ([]*ErrorRecord, error)
	AddNotification(ctx context.Context, n *Notification) error
	Notifications(ctx context.Context, scope string, limit int) ([]*Notification, error)

	// Close closes the storage connection
	Close() error
}
