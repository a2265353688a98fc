package notify

import (
	"context"
	"testing"
	"time"

	"fleetprint/storage"
)

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

func newTestNotifier(t *testing.T) (*Notifier, *storage.SQLiteStore, chan Message) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hub := NewHub()
	t.Cleanup(hub.Stop)

	ch := make(chan Message, 10)
	hub.Register("test", ch)
	time.Sleep(10 * time.Millisecond)

	return NewNotifier(store, hub, nullLogger{}), store, ch
}

func expectEvent(t *testing.T, ch chan Message, eventType string) Message {
	t.Helper()
	select {
	case msg := <-ch:
		if msg.Type != eventType {
			t.Fatalf("expected event %q, got %q", eventType, msg.Type)
		}
		return msg
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("no %q event received", eventType)
		return Message{}
	}
}

func TestNotifyPersistsAndBroadcasts(t *testing.T) {
	notifier, store, ch := newTestNotifier(t)
	ctx := context.Background()

	notifier.Notify(ctx, &storage.Notification{
		Scope:    storage.ScopeUser,
		UserID:   "user-1",
		Priority: storage.PriorityHigh,
		Kind:     "out_of_paper",
		Title:    "Print job paused",
		Message:  "Your print job was paused: out of paper",
		JobID:    "job-1",
	}, EventJobPaused)

	notes, err := store.Notifications(ctx, storage.ScopeUser, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(notes))
	}
	if notes[0].ID == "" {
		t.Error("expected notifier to assign an id")
	}

	msg := expectEvent(t, ch, EventJobPaused)
	if msg.Data["kind"] != "out_of_paper" {
		t.Errorf("unexpected event data: %+v", msg.Data)
	}
}

func TestJobOutcome(t *testing.T) {
	notifier, store, ch := newTestNotifier(t)
	ctx := context.Background()

	completed := &storage.PrintJob{
		ID: "job-ok", UserID: "user-1", DeviceID: "dev-1",
		Status: storage.JobCompleted,
	}
	notifier.JobOutcome(ctx, completed)
	expectEvent(t, ch, EventJobCompleted)

	failed := &storage.PrintJob{
		ID: "job-bad", UserID: "user-1", DeviceID: "dev-1",
		Status: storage.JobFailed, ErrorMessage: "paper jam",
	}
	notifier.JobOutcome(ctx, failed)
	msg := expectEvent(t, ch, EventJobFailed)
	if msg.Data["job_id"] != "job-bad" {
		t.Errorf("unexpected event data: %+v", msg.Data)
	}

	// Cancelled jobs end silently.
	cancelled := &storage.PrintJob{
		ID: "job-cxl", UserID: "user-1", DeviceID: "dev-1",
		Status: storage.JobCancelled,
	}
	notifier.JobOutcome(ctx, cancelled)

	notes, err := store.Notifications(ctx, storage.ScopeUser, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 {
		t.Errorf("expected 2 outcome notifications, got %d", len(notes))
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected event for cancelled job: %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJobPausedNotifiesOwnerAndAdmins(t *testing.T) {
	notifier, store, _ := newTestNotifier(t)
	ctx := context.Background()

	job := &storage.PrintJob{ID: "job-1", UserID: "user-1", DeviceID: "dev-1"}
	notifier.JobPaused(ctx, job, "out_of_ink")

	user, _ := store.Notifications(ctx, storage.ScopeUser, 10)
	admin, _ := store.Notifications(ctx, storage.ScopeAdmin, 10)
	if len(user) != 1 {
		t.Errorf("expected 1 user notification, got %d", len(user))
	}
	if len(admin) != 1 {
		t.Errorf("expected 1 admin notification, got %d", len(admin))
	}
}

func TestEmitWithoutHub(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	notifier := NewNotifier(store, nil, nullLogger{})
	// Must not panic.
	notifier.Emit(EventDeviceStatus, map[string]interface{}{"device_id": "dev-1"})
}
