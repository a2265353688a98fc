package dispatch

import (
	"context"
	"os"
	"sync"
	"time"

	"fleetprint/driver"
	"fleetprint/faults"
	"fleetprint/queue"
	"fleetprint/spooler"
	"fleetprint/storage"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// ProcessorConfig holds the dispatch loop's timing knobs.
type ProcessorConfig struct {
	// TickInterval is the scheduler period.
	TickInterval time.Duration
	// IdleMaxWait bounds the post-dispatch wait for the OS spooler to drain.
	IdleMaxWait time.Duration
	// IdlePoll is the spooler polling cadence during that wait.
	IdlePoll time.Duration
}

// DefaultProcessorConfig returns the production timings.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		TickInterval: 5 * time.Second,
		IdleMaxWait:  5 * time.Minute,
		IdlePoll:     2 * time.Second,
	}
}

// Processor is the top-level scheduler. Each tick it finds devices with
// pending work, claims each idle device's lock and runs one dispatch task
// per device concurrently. The lock, not queue order, is what keeps a
// device down to one in-flight job.
type Processor struct {
	manager *queue.Manager
	store   storage.Store
	handler *faults.Handler
	files   driver.FileStore
	drv     driver.Driver
	locks   *DeviceLocks
	logger  Logger
	config  ProcessorConfig

	// waitIdle blocks until the named OS queue drains or the bound
	// elapses. Replaceable in tests.
	waitIdle func(ctx context.Context, printerName string) bool

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewProcessor creates a dispatch processor.
func NewProcessor(manager *queue.Manager, store storage.Store, handler *faults.Handler,
	files driver.FileStore, drv driver.Driver, config ProcessorConfig, logger Logger) *Processor {

	if config.TickInterval <= 0 {
		config.TickInterval = 5 * time.Second
	}
	if config.IdleMaxWait <= 0 {
		config.IdleMaxWait = 5 * time.Minute
	}
	if config.IdlePoll <= 0 {
		config.IdlePoll = 2 * time.Second
	}

	p := &Processor{
		manager: manager,
		store:   store,
		handler: handler,
		files:   files,
		drv:     drv,
		locks:   NewDeviceLocks(),
		logger:  logger,
		config:  config,
	}
	p.waitIdle = func(ctx context.Context, printerName string) bool {
		return spooler.WaitUntilIdle(ctx, printerName, config.IdleMaxWait, config.IdlePoll, logger)
	}
	return p
}

// Locks exposes the device ownership table for introspection.
func (p *Processor) Locks() *DeviceLocks {
	return p.locks
}

// Start begins the dispatch loop.
func (p *Processor) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()

	p.logger.Info("Dispatch processor started", "tick_interval", p.config.TickInterval)
	return nil
}

// Stop halts the dispatch loop and waits for in-flight tasks to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Dispatch processor stopped")
}

// IsRunning returns whether the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-p.stopCh
		cancel()
	}()

	p.Tick(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round: every device with pending work that is
// not already owned by a dispatch task gets one task started for its top
// entry. Devices already locked are skipped until a later tick.
func (p *Processor) Tick(ctx context.Context) {
	devices, err := p.manager.DevicesWithPending(ctx)
	if err != nil {
		p.logger.Warn("Failed to list devices with pending work", "error", err)
		return
	}

	for _, deviceID := range devices {
		if p.locks.Held(deviceID) {
			continue
		}
		entry, err := p.manager.NextEligible(ctx, deviceID)
		if err != nil {
			continue
		}
		if !p.locks.Acquire(deviceID, entry.JobID) {
			continue
		}
		p.wg.Add(1)
		go func(deviceID string, entry *storage.QueueEntry) {
			defer p.wg.Done()
			p.dispatch(ctx, deviceID, entry)
		}(deviceID, entry)
	}
}

// dispatch runs one job on one device: mark in progress, health check,
// fetch, submit, finish, then hold the device lock until the OS spooler
// confirms the queue drained. The lock is released unconditionally.
func (p *Processor) dispatch(ctx context.Context, deviceID string, entry *storage.QueueEntry) {
	printerName := deviceID
	defer func() {
		p.waitIdle(ctx, printerName)
		p.locks.Release(deviceID)
	}()

	job, err := p.store.GetJob(ctx, entry.JobID)
	if err != nil {
		p.logger.Error("Failed to load job for dispatch", "job", entry.JobID, "error", err)
		return
	}

	if err := p.manager.MarkInProgress(ctx, entry.ID); err != nil {
		// A second conflict on the status flip fails this job, not the loop.
		p.logger.Error("Failed to mark job in progress", "job", job.ID, "error", err)
		p.handler.Handle(ctx, job, "storage conflict while starting job", nil)
		p.finishFailed(ctx, job.ID, "storage conflict while starting job")
		return
	}

	device, err := p.store.GetDevice(ctx, deviceID)
	if err != nil {
		msg := "Printer " + deviceID + " not found"
		p.handler.Handle(ctx, job, msg, nil)
		p.finishFailed(ctx, job.ID, msg)
		return
	}
	if device.Name != "" {
		printerName = device.Name
	}

	if health := faults.CheckDeviceHealth(device); !health.CanPrint {
		p.handler.Handle(ctx, job, health.Reason, device)
		p.finishFailed(ctx, job.ID, health.Reason)
		return
	}

	localPath, err := p.files.Fetch(ctx, job.FileRef)
	if err != nil {
		p.handler.Handle(ctx, job, err.Error(), device)
		p.finishFailed(ctx, job.ID, err.Error())
		return
	}

	if err := p.drv.Submit(ctx, localPath, job.Settings, printerName); err != nil {
		p.handler.Handle(ctx, job, err.Error(), device)
		p.finishFailed(ctx, job.ID, err.Error())
		return
	}

	if err := p.manager.Finish(ctx, job.ID, storage.JobCompleted, ""); err != nil {
		p.logger.Error("Failed to complete job", "job", job.ID, "error", err)
		return
	}
	p.logger.Info("Job dispatched", "job", job.ID, "device", deviceID)

	p.maybeSeparatorPage(ctx, device, printerName)
}

func (p *Processor) finishFailed(ctx context.Context, jobID, message string) {
	if err := p.manager.Finish(ctx, jobID, storage.JobFailed, message); err != nil {
		p.logger.Error("Failed to record job failure", "job", jobID, "error", err)
	}
}

// maybeSeparatorPage submits a separator between jobs when the device asks
// for one and more work is waiting. Best effort only; a failed separator
// never changes a job outcome.
func (p *Processor) maybeSeparatorPage(ctx context.Context, device *storage.Device, printerName string) {
	if !device.Settings.SeparatorPage {
		return
	}
	pending, err := p.manager.PendingCount(ctx, device.ID)
	if err != nil || pending == 0 {
		return
	}

	path, err := driver.SeparatorPage(os.TempDir())
	if err != nil {
		p.logger.Warn("Failed to create separator page", "device", device.ID, "error", err)
		return
	}
	settings := storage.PrintSettings{Copies: 1}
	if err := p.drv.Submit(ctx, path, settings, printerName); err != nil {
		p.logger.Warn("Failed to submit separator page", "device", device.ID, "error", err)
	}
}
