package monitor

import (
	"context"
	"fmt"
	"sync"
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

// Pause issue identifiers recorded in pause history and notifications.
const (
	IssueOutOfPaper   = "out_of_paper"
	IssueOutOfInk     = "out_of_ink"
	IssuePrinterError = "printer_error"
)

// PauseNotifier delivers pause and resume events to the job owner and to
// administrators. Fire-and-forget.
type PauseNotifier interface {
	JobPaused(ctx context.Context, job *storage.PrintJob, reason string)
	JobResumed(ctx context.Context, job *storage.PrintJob)
	Emit(event string, payload map[string]interface{})
}

// SupplyMonitor periodically scans every device that has an active job and
// pauses or resumes those jobs as supplies run out and come back. It is
// the only writer of a job's pause state.
type SupplyMonitor struct {
	store    storage.Store
	notifier PauseNotifier
	logger   Logger
	interval time.Duration

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSupplyMonitor creates a supply monitor. interval defaults to 10s.
func NewSupplyMonitor(store storage.Store, notifier PauseNotifier, interval time.Duration, logger Logger) *SupplyMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SupplyMonitor{
		store:    store,
		notifier: notifier,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the monitoring loop.
func (m *SupplyMonitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("Supply monitor started", "interval", m.interval)
	return nil
}

// Stop halts the monitoring loop.
func (m *SupplyMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Supply monitor stopped")
}

// IsRunning returns whether the monitor is running.
func (m *SupplyMonitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *SupplyMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.stopCh
		cancel()
	}()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one monitoring round over every device with an active job.
// Each job flips pause state at most once per scan; a scan that observes
// an unchanged issue set changes nothing.
func (m *SupplyMonitor) Scan(ctx context.Context) {
	jobs, err := m.store.JobsInProgress(ctx)
	if err != nil {
		m.logger.Warn("Supply scan failed to list active jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	byDevice := make(map[string][]*storage.PrintJob)
	for _, job := range jobs {
		byDevice[job.DeviceID] = append(byDevice[job.DeviceID], job)
	}

	for deviceID, deviceJobs := range byDevice {
		device, err := m.store.GetDevice(ctx, deviceID)
		if err != nil {
			m.logger.Warn("Supply scan found jobs on unknown device", "device", deviceID)
			continue
		}
		issue, details := evaluateSupplies(device)
		for _, job := range deviceJobs {
			m.reconcile(ctx, job, device, issue, details)
		}
	}
}

// evaluateSupplies returns the first supply issue a device presents, in a
// fixed precedence: paper, then ink, then device error state.
func evaluateSupplies(device *storage.Device) (issue, details string) {
	if device.PaperLevel <= 0 {
		return IssueOutOfPaper, fmt.Sprintf("paper level is %d", device.PaperLevel)
	}
	for color, level := range device.TonerLevels {
		if level <= 0 {
			return IssueOutOfInk, fmt.Sprintf("%s toner is empty", color)
		}
	}
	if device.Status == storage.DeviceError || device.Status == storage.DeviceOffline {
		return IssuePrinterError, "device reports " + string(device.Status)
	}
	return "", ""
}

// reconcile moves one job toward the device's current supply state.
func (m *SupplyMonitor) reconcile(ctx context.Context, job *storage.PrintJob, device *storage.Device, issue, details string) {
	switch {
	case issue != "" && !job.Pause.IsPaused:
		if err := m.store.PauseJob(ctx, job.ID, issue, details); err != nil {
			m.logger.Error("Failed to pause job", "job", job.ID, "error", err)
			return
		}
		m.logger.Info("Job paused by supply monitor",
			"job", job.ID, "device", device.ID, "issue", issue)
		if m.notifier != nil {
			m.notifier.JobPaused(ctx, job, issue)
			m.notifier.Emit("printer_alert", map[string]interface{}{
				"device_id":   device.ID,
				"device_name": device.Name,
				"issue":       issue,
				"details":     details,
			})
		}

	case issue == "" && job.Pause.IsPaused:
		if err := m.store.ResumeJob(ctx, job.ID); err != nil {
			m.logger.Error("Failed to resume job", "job", job.ID, "error", err)
			return
		}
		m.logger.Info("Job resumed by supply monitor", "job", job.ID, "device", device.ID)
		if m.notifier != nil {
			m.notifier.JobResumed(ctx, job)
		}
	}
}
