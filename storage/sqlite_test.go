package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestJob(id, deviceID string) *PrintJob {
	return &PrintJob{
		ID:       id,
		UserID:   "user-1",
		DeviceID: deviceID,
		FileRef:  "files/" + id + ".pdf",
		Settings: PrintSettings{Copies: 1},
	}
}

func newTestDevice(id, name string) *Device {
	return &Device{
		ID:         id,
		Name:       name,
		Address:    "192.168.1.50",
		Status:     DeviceOnline,
		PaperLevel: 100,
		TonerLevels: map[string]int{
			"black": 80,
		},
		Settings: DeviceSettings{MaxQueueSize: 50, AutoQueue: true},
	}
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("job-1", "dev-1")
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// Duplicate create should fail
	if err := store.CreateJob(ctx, newTestJob("job-1", "dev-1")); err != ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != JobPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("expected device dev-1, got %s", got.DeviceID)
	}

	if _, err := store.GetJob(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnqueueGuards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnqueueJob(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing job, got %v", err)
	}

	if err := store.CreateJob(ctx, newTestJob("job-1", "dev-1")); err != nil {
		t.Fatal(err)
	}

	entry, err := store.EnqueueJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if entry.Position != 1 {
		t.Errorf("expected position 1, got %d", entry.Position)
	}
	if entry.Status != EntryPending {
		t.Errorf("expected pending entry, got %s", entry.Status)
	}

	// Job is now queued, not pending
	if _, err := store.EnqueueJob(ctx, "job-1"); err != ErrNotPending {
		t.Errorf("expected ErrNotPending on re-enqueue, got %v", err)
	}

	job, _ := store.GetJob(ctx, "job-1")
	if job.Status != JobQueued {
		t.Errorf("expected queued status after enqueue, got %s", job.Status)
	}
}

// Positions must always form a gap-free 1..M over pending/in-progress
// entries, across any sequence of enqueue and finish operations.
func TestPositionContiguity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		if err := store.CreateJob(ctx, newTestJob(id, "dev-1")); err != nil {
			t.Fatal(err)
		}
		entry, err := store.EnqueueJob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Position != i {
			t.Errorf("job %d: expected position %d, got %d", i, i, entry.Position)
		}
	}

	// Finish jobs out of order, verifying contiguity after each removal
	for _, victim := range []string{"job-3", "job-1", "job-5"} {
		if err := store.FinishJob(ctx, victim, JobCompleted, ""); err != nil {
			t.Fatalf("FinishJob(%s) failed: %v", victim, err)
		}
		assertContiguousPositions(t, store)
	}

	// job-2 was enqueued before job-4; relative order must hold
	snapshot, err := store.QueueSnapshot(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(snapshot))
	}
	if snapshot[0].JobID != "job-2" || snapshot[0].Position != 1 {
		t.Errorf("expected job-2 at position 1, got %s at %d", snapshot[0].JobID, snapshot[0].Position)
	}
	if snapshot[1].JobID != "job-4" || snapshot[1].Position != 2 {
		t.Errorf("expected job-4 at position 2, got %s at %d", snapshot[1].JobID, snapshot[1].Position)
	}
}

func assertContiguousPositions(t *testing.T, store *SQLiteStore) {
	t.Helper()
	snapshot, err := store.QueueSnapshot(context.Background(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i, item := range snapshot {
		if item.Position != i+1 {
			t.Errorf("position gap: index %d has position %d", i, item.Position)
		}
	}
}

func TestMarkEntryInProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateJob(ctx, newTestJob("job-1", "dev-1")); err != nil {
		t.Fatal(err)
	}
	entry, err := store.EnqueueJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.MarkEntryInProgress(ctx, entry.ID); err != nil {
		t.Fatalf("MarkEntryInProgress failed: %v", err)
	}

	job, _ := store.GetJob(ctx, "job-1")
	if job.Status != JobInProgress {
		t.Errorf("expected in-progress job, got %s", job.Status)
	}
	if job.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	// Second transition must fail: entry is no longer pending
	if err := store.MarkEntryInProgress(ctx, entry.ID); err != ErrNotPending {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	if err := store.MarkEntryInProgress(ctx, 9999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown entry, got %v", err)
	}
}

func TestNextEligibleEntryPerDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, dev := range []string{"dev-1", "dev-2", "dev-1"} {
		id := fmt.Sprintf("job-%d", i+1)
		if err := store.CreateJob(ctx, newTestJob(id, dev)); err != nil {
			t.Fatal(err)
		}
		if _, err := store.EnqueueJob(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	entry, err := store.NextEligibleEntry(ctx, "dev-1")
	if err != nil {
		t.Fatalf("NextEligibleEntry failed: %v", err)
	}
	if entry.JobID != "job-1" {
		t.Errorf("expected job-1 first for dev-1, got %s", entry.JobID)
	}

	entry2, err := store.NextEligibleEntry(ctx, "dev-2")
	if err != nil {
		t.Fatal(err)
	}
	if entry2.JobID != "job-2" {
		t.Errorf("expected job-2 for dev-2, got %s", entry2.JobID)
	}

	if _, err := store.NextEligibleEntry(ctx, "dev-3"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for idle device, got %v", err)
	}

	devices, err := store.DevicesWithPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Errorf("expected 2 devices with pending work, got %v", devices)
	}
}

func TestFinishJobTerminalStates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateJob(ctx, newTestJob("job-1", "dev-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnqueueJob(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	if err := store.FinishJob(ctx, "job-1", JobQueued, ""); err == nil {
		t.Error("expected error finishing with non-terminal status")
	}

	if err := store.FinishJob(ctx, "job-1", JobFailed, "Printer is offline"); err != nil {
		t.Fatalf("FinishJob failed: %v", err)
	}

	job, _ := store.GetJob(ctx, "job-1")
	if job.Status != JobFailed {
		t.Errorf("expected failed status, got %s", job.Status)
	}
	if job.ErrorMessage != "Printer is offline" {
		t.Errorf("expected error message persisted, got %q", job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Error("expected completed_at set")
	}

	// Entry must be gone
	if _, err := store.NextEligibleEntry(ctx, "dev-1"); err != ErrNotFound {
		t.Errorf("expected no remaining entry, got %v", err)
	}

	if err := store.FinishJob(ctx, "missing", JobCompleted, ""); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPauseResumeHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateJob(ctx, newTestJob("job-1", "dev-1")); err != nil {
		t.Fatal(err)
	}
	entry, err := store.EnqueueJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkEntryInProgress(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}

	if err := store.PauseJob(ctx, "job-1", "out_of_paper", "Paper tray empty"); err != nil {
		t.Fatalf("PauseJob failed: %v", err)
	}

	job, _ := store.GetJob(ctx, "job-1")
	if job.Status != JobPaused || !job.Pause.IsPaused {
		t.Errorf("expected paused job, got status=%s paused=%v", job.Status, job.Pause.IsPaused)
	}
	if job.Pause.Reason != "out_of_paper" {
		t.Errorf("expected pause reason out_of_paper, got %q", job.Pause.Reason)
	}

	if err := store.ResumeJob(ctx, "job-1"); err != nil {
		t.Fatalf("ResumeJob failed: %v", err)
	}

	job, _ = store.GetJob(ctx, "job-1")
	if job.Status != JobInProgress || job.Pause.IsPaused {
		t.Errorf("expected resumed job, got status=%s paused=%v", job.Status, job.Pause.IsPaused)
	}

	// Second pause cycle
	if err := store.PauseJob(ctx, "job-1", "out_of_ink", "Black toner empty"); err != nil {
		t.Fatal(err)
	}

	history, err := store.PauseHistory(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 pause records, got %d", len(history))
	}
	if history[0].Reason != "out_of_paper" || history[0].ResumedAt == nil {
		t.Errorf("first record should be closed out_of_paper, got %+v", history[0])
	}
	if history[1].Reason != "out_of_ink" || history[1].ResumedAt != nil {
		t.Errorf("second record should be open out_of_ink, got %+v", history[1])
	}
}

func TestDeviceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	device := newTestDevice("dev-1", "Front Office HP")
	device.Settings.SeparatorPage = true
	if err := store.UpsertDevice(ctx, device); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	got, err := store.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got.Name != "Front Office HP" {
		t.Errorf("expected name round trip, got %q", got.Name)
	}
	if got.TonerLevels["black"] != 80 {
		t.Errorf("expected toner black=80, got %v", got.TonerLevels)
	}
	if !got.Settings.SeparatorPage {
		t.Error("expected separator page setting to persist")
	}

	if err := store.UpdateDeviceSupplies(ctx, "dev-1", 10, map[string]int{"black": 5}, 12345); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateDeviceErrors(ctx, "dev-1", []string{"lowToner"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetDeviceStatus(ctx, "dev-1", DeviceBusy); err != nil {
		t.Fatal(err)
	}

	got, _ = store.GetDevice(ctx, "dev-1")
	if got.PaperLevel != 10 || got.PageCount != 12345 {
		t.Errorf("supplies not updated: paper=%d pages=%d", got.PaperLevel, got.PageCount)
	}
	if len(got.LastKnownErrors) != 1 || got.LastKnownErrors[0] != "lowToner" {
		t.Errorf("expected lowToner flag, got %v", got.LastKnownErrors)
	}
	if got.Status != DeviceBusy {
		t.Errorf("expected busy status, got %s", got.Status)
	}

	if err := store.SetDeviceStatus(ctx, "missing", DeviceOffline); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorRecordsAndNotifications(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &ErrorRecord{
		DeviceID:     "dev-1",
		DeviceName:   "Front Office HP",
		Kind:         "HardwareError",
		Description:  "Paper jam detected",
		AffectedJobs: 2,
	}
	if err := store.AddErrorRecord(ctx, rec); err != nil {
		t.Fatalf("AddErrorRecord failed: %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected record id assigned")
	}

	records, err := store.ErrorRecords(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Kind != "HardwareError" {
		t.Errorf("unexpected records: %+v", records)
	}

	n := &Notification{
		ID:       "n-1",
		Scope:    ScopeAdmin,
		Priority: PriorityUrgent,
		Kind:     "printer-error",
		Title:    "Printer error",
		Message:  "Paper jam detected on Front Office HP",
		DeviceID: "dev-1",
	}
	if err := store.AddNotification(ctx, n); err != nil {
		t.Fatalf("AddNotification failed: %v", err)
	}

	admin, err := store.Notifications(ctx, ScopeAdmin, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(admin) != 1 || admin[0].Priority != PriorityUrgent {
		t.Errorf("unexpected notifications: %+v", admin)
	}

	user, err := store.Notifications(ctx, ScopeUser, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(user) != 0 {
		t.Errorf("expected no user notifications, got %d", len(user))
	}
}

func TestQueueStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertDevice(ctx, newTestDevice("dev-1", "HP")); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("job-%d", i)
		if err := store.CreateJob(ctx, newTestJob(id, "dev-1")); err != nil {
			t.Fatal(err)
		}
		if _, err := store.EnqueueJob(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	entry, err := store.NextEligibleEntry(ctx, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkEntryInProgress(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishJob(ctx, entry.JobID, JobCompleted, ""); err != nil {
		t.Fatal(err)
	}

	stats, err := store.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats failed: %v", err)
	}
	if stats.Pending != 2 {
		t.Errorf("expected 2 pending, got %d", stats.Pending)
	}
	if stats.InProgress != 0 {
		t.Errorf("expected 0 in progress, got %d", stats.InProgress)
	}
	if stats.CompletedToday != 1 {
		t.Errorf("expected 1 completed today, got %d", stats.CompletedToday)
	}
	if stats.Devices != 1 {
		t.Errorf("expected 1 device, got %d", stats.Devices)
	}
}

// Concurrent enqueues must never produce duplicate positions.
func TestConcurrentEnqueuePositions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		if err := store.CreateJob(ctx, newTestJob(fmt.Sprintf("job-%d", i), "dev-1")); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			// Busy conflicts are expected under concurrent writers; retry
			// the way the queue manager does.
			var err error
			for attempt := 0; attempt < 20; attempt++ {
				_, err = store.EnqueueJob(ctx, fmt.Sprintf("job-%d", i))
				if !errors.Is(err, ErrConflict) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent enqueue failed: %v", err)
		}
	}

	snapshot, err := store.QueueSnapshot(ctx, n+1)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != n {
		t.Fatalf("expected %d entries, got %d", n, len(snapshot))
	}
	seen := make(map[int]bool)
	for _, item := range snapshot {
		if seen[item.Position] {
			t.Errorf("duplicate position %d", item.Position)
		}
		seen[item.Position] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Errorf("missing position %d", i)
		}
	}
}
