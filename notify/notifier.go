package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fleetprint/storage"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Notifier persists notifications and mirrors them onto the realtime hub.
// All delivery is fire-and-forget: a failed persist is logged, never
// surfaced, so notification trouble cannot abort a dispatch.
type Notifier struct {
	store  storage.Store
	hub    *Hub
	logger Logger
}

// NewNotifier creates a notifier. hub may be nil when no realtime
// subscribers exist (tests, headless runs).
func NewNotifier(store storage.Store, hub *Hub, logger Logger) *Notifier {
	return &Notifier{store: store, hub: hub, logger: logger}
}

// Emit broadcasts a realtime event without persisting anything.
func (n *Notifier) Emit(event string, payload map[string]interface{}) {
	if n.hub == nil {
		return
	}
	n.hub.Broadcast(Message{Type: event, Data: payload, Timestamp: time.Now()})
}

// Notify persists a notification and broadcasts a matching realtime event.
func (n *Notifier) Notify(ctx context.Context, note *storage.Notification, event string) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if err := n.store.AddNotification(ctx, note); err != nil {
		n.logger.Error("Failed to persist notification",
			"kind", note.Kind, "scope", note.Scope, "error", err)
	}
	n.Emit(event, map[string]interface{}{
		"kind":      note.Kind,
		"title":     note.Title,
		"message":   note.Message,
		"job_id":    note.JobID,
		"device_id": note.DeviceID,
		"user_id":   note.UserID,
		"priority":  note.Priority,
	})
}

// JobOutcome notifies a job's owner about its terminal state. Only
// completed and failed jobs produce an outcome notification; cancelled
// jobs end silently because the user asked for the cancellation.
func (n *Notifier) JobOutcome(ctx context.Context, job *storage.PrintJob) {
	var event, title, message string
	switch job.Status {
	case storage.JobCompleted:
		event, title = EventJobCompleted, "Print job completed"
		message = "Your document printed successfully."
	case storage.JobFailed:
		event, title = EventJobFailed, "Print job failed"
		message = "Your document could not be printed."
		if job.ErrorMessage != "" {
			message = "Your document could not be printed: " + job.ErrorMessage
		}
	default:
		return
	}
	n.Notify(ctx, &storage.Notification{
		Scope:    storage.ScopeUser,
		UserID:   job.UserID,
		Priority: storage.PriorityNormal,
		Kind:     string(job.Status),
		Title:    title,
		Message:  message,
		JobID:    job.ID,
		DeviceID: job.DeviceID,
	}, event)
}

// JobPaused notifies the owner and administrators that a job was paused
// for the given reason.
func (n *Notifier) JobPaused(ctx context.Context, job *storage.PrintJob, reason string) {
	n.Notify(ctx, &storage.Notification{
		Scope:    storage.ScopeUser,
		UserID:   job.UserID,
		Priority: storage.PriorityHigh,
		Kind:     reason,
		Title:    "Print job paused",
		Message:  "Your print job was paused: " + reason,
		JobID:    job.ID,
		DeviceID: job.DeviceID,
	}, EventJobPaused)
	n.Notify(ctx, &storage.Notification{
		Scope:    storage.ScopeAdmin,
		Priority: storage.PriorityHigh,
		Kind:     reason,
		Title:    "Job paused on device " + job.DeviceID,
		Message:  reason,
		JobID:    job.ID,
		DeviceID: job.DeviceID,
	}, EventJobPaused)
}

// JobResumed notifies the owner that a previously paused job resumed.
func (n *Notifier) JobResumed(ctx context.Context, job *storage.PrintJob) {
	n.Notify(ctx, &storage.Notification{
		Scope:    storage.ScopeUser,
		UserID:   job.UserID,
		Priority: storage.PriorityNormal,
		Kind:     "resumed",
		Title:    "Print job resumed",
		Message:  "Your print job is back in the queue.",
		JobID:    job.ID,
		DeviceID: job.DeviceID,
	}, EventJobResumed)
}
