package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fleetprint/faults"
	"fleetprint/queue"
	"fleetprint/storage"
)

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

type submission struct {
	path    string
	printer string
}

// fakeDriver records submissions and can delay or fail per printer.
type fakeDriver struct {
	mu          sync.Mutex
	submissions []submission
	delays      map[string]time.Duration
	err         error
}

func (d *fakeDriver) Submit(ctx context.Context, localPath string, settings storage.PrintSettings, printerName string) error {
	d.mu.Lock()
	delay := d.delays[printerName]
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.submissions = append(d.submissions, submission{path: localPath, printer: printerName})
	return nil
}

func (d *fakeDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions)
}

func (d *fakeDriver) last() submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions[len(d.submissions)-1]
}

type fakeFiles struct {
	err error
}

func (f *fakeFiles) Fetch(ctx context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/spool/" + ref, nil
}

type testEnv struct {
	processor *Processor
	store     *storage.SQLiteStore
	driver    *fakeDriver
	files     *fakeFiles
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	drv := &fakeDriver{delays: map[string]time.Duration{}}
	files := &fakeFiles{}
	manager := queue.NewManager(store, nil, nullLogger{})
	handler := faults.NewHandler(store, nil, nullLogger{})

	p := NewProcessor(manager, store, handler, files, drv,
		ProcessorConfig{TickInterval: time.Hour, IdleMaxWait: time.Second, IdlePoll: time.Millisecond},
		nullLogger{})
	p.waitIdle = func(ctx context.Context, printerName string) bool { return true }

	return &testEnv{processor: p, store: store, driver: drv, files: files}
}

func (e *testEnv) seedDevice(t *testing.T, id string, mutate func(*storage.Device)) {
	t.Helper()
	device := &storage.Device{
		ID: id, Name: id, Status: storage.DeviceOnline,
		PaperLevel: 100, TonerLevels: map[string]int{"black": 50},
	}
	if mutate != nil {
		mutate(device)
	}
	if err := e.store.UpsertDevice(context.Background(), device); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) seedQueuedJob(t *testing.T, jobID, deviceID string) {
	t.Helper()
	ctx := context.Background()
	err := e.store.CreateJob(ctx, &storage.PrintJob{
		ID: jobID, UserID: "user-1", DeviceID: deviceID, FileRef: "files/" + jobID + ".pdf",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.EnqueueJob(ctx, jobID); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) waitForStatus(t *testing.T, jobID string, want storage.JobStatus) *storage.PrintJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := e.store.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := e.store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s, stuck at %s", jobID, want, job.Status)
	return nil
}

func TestDispatchCompletesJob(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", nil)
	env.seedQueuedJob(t, "j1", "dev-1")

	env.processor.Tick(context.Background())
	env.waitForStatus(t, "j1", storage.JobCompleted)

	if env.driver.count() != 1 {
		t.Fatalf("expected 1 submission, got %d", env.driver.count())
	}
	sub := env.driver.last()
	if sub.printer != "dev-1" || sub.path != "/spool/files/j1.pdf" {
		t.Errorf("unexpected submission %+v", sub)
	}

	// Queue entry is gone once the job is terminal.
	if _, err := env.store.NextEligibleEntry(context.Background(), "dev-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected empty queue, got %v", err)
	}
}

func TestConcurrentDevicesDoNotBlockEachOther(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-slow", nil)
	env.seedDevice(t, "dev-fast", nil)
	env.seedQueuedJob(t, "j-slow", "dev-slow")
	env.seedQueuedJob(t, "j-fast", "dev-fast")
	env.driver.delays["dev-slow"] = 300 * time.Millisecond

	env.processor.Tick(context.Background())

	// The fast device finishes while the slow one is still mid-submit.
	env.waitForStatus(t, "j-fast", storage.JobCompleted)
	job, err := env.store.GetJob(context.Background(), "j-slow")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status.Terminal() {
		t.Error("slow device's job should still be in flight when fast one completes")
	}

	env.waitForStatus(t, "j-slow", storage.JobCompleted)
}

func TestTickSkipsLockedDevice(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", nil)
	env.seedQueuedJob(t, "j1", "dev-1")

	env.processor.Locks().Acquire("dev-1", "other-job")
	env.processor.Tick(context.Background())
	time.Sleep(50 * time.Millisecond)

	if env.driver.count() != 0 {
		t.Error("locked device should not be dispatched to")
	}
	job, _ := env.store.GetJob(context.Background(), "j1")
	if job.Status != storage.JobQueued {
		t.Errorf("job should still be queued, got %s", job.Status)
	}
}

func TestHealthCheckFailureFailsJobWithoutSubmission(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", func(d *storage.Device) {
		d.Status = storage.DeviceOffline
	})
	env.seedQueuedJob(t, "j1", "dev-1")

	env.processor.Tick(context.Background())
	job := env.waitForStatus(t, "j1", storage.JobFailed)

	if env.driver.count() != 0 {
		t.Error("no submission should be attempted for an unhealthy device")
	}
	if !strings.Contains(job.ErrorMessage, "offline") {
		t.Errorf("failure should carry the health reason, got %q", job.ErrorMessage)
	}

	records, err := env.store.ErrorRecords(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Kind != string(faults.CommunicationFailure) {
		t.Errorf("expected a CommunicationFailure record, got %+v", records)
	}
}

func TestFileFetchFailureFailsJob(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", nil)
	env.seedQueuedJob(t, "j1", "dev-1")
	env.files.err = errors.New("file access error: no such file")

	env.processor.Tick(context.Background())
	env.waitForStatus(t, "j1", storage.JobFailed)

	records, _ := env.store.ErrorRecords(context.Background(), 10)
	if len(records) != 1 || records[0].Kind != string(faults.FileAccessError) {
		t.Errorf("expected a FileAccessError record, got %+v", records)
	}
}

func TestSeparatorPageBetweenJobs(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", func(d *storage.Device) {
		d.Settings.SeparatorPage = true
	})
	env.seedQueuedJob(t, "j1", "dev-1")
	env.seedQueuedJob(t, "j2", "dev-1")

	env.processor.Tick(context.Background())
	env.waitForStatus(t, "j1", storage.JobCompleted)

	deadline := time.Now().Add(time.Second)
	for env.driver.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.driver.count() != 2 {
		t.Fatalf("expected job + separator submissions, got %d", env.driver.count())
	}
	if !strings.HasSuffix(env.driver.last().path, "separator.txt") {
		t.Errorf("second submission should be the separator, got %q", env.driver.last().path)
	}
}

func TestLockHeldUntilIdleConfirmed(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", nil)
	env.seedQueuedJob(t, "j1", "dev-1")

	idleRelease := make(chan struct{})
	env.processor.waitIdle = func(ctx context.Context, printerName string) bool {
		<-idleRelease
		return true
	}

	env.processor.Tick(context.Background())
	env.waitForStatus(t, "j1", storage.JobCompleted)

	// Job is terminal but the device stays locked until the spooler drains.
	if !env.processor.Locks().Held("dev-1") {
		t.Fatal("lock should be held while waiting for spooler idle")
	}

	close(idleRelease)
	deadline := time.Now().Add(time.Second)
	for env.processor.Locks().Held("dev-1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.processor.Locks().Held("dev-1") {
		t.Error("lock should be released after idle confirmation")
	}
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)

	if err := env.processor.Start(); err != nil {
		t.Fatal(err)
	}
	if !env.processor.IsRunning() {
		t.Error("processor should report running")
	}
	// Second start is a no-op.
	if err := env.processor.Start(); err != nil {
		t.Fatal(err)
	}

	env.processor.Stop()
	if env.processor.IsRunning() {
		t.Error("processor should report stopped")
	}
	// Second stop is a no-op.
	env.processor.Stop()
}
