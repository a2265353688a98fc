package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetprint/probe"
	"fleetprint/storage"
)

// StatusProber queries one device's health over its management protocol.
type StatusProber interface {
	Status(address string) (*probe.Report, error)
}

// AlertNotifier persists admin alerts and mirrors them to realtime
// subscribers.
type AlertNotifier interface {
	Notify(ctx context.Context, note *storage.Notification, event string)
	Emit(event string, payload map[string]interface{})
}

// SNMPWatcher polls every known device's management interface on a fixed
// period, updating supplies, page counts and status, and alerting on
// newly appeared error flags. It runs independently of dispatch: a probe
// result never fails a job directly.
type SNMPWatcher struct {
	store    storage.Store
	prober   StatusProber
	notifier AlertNotifier
	logger   Logger
	interval time.Duration

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSNMPWatcher creates a watcher. interval defaults to 30s.
func NewSNMPWatcher(store storage.Store, prober StatusProber, notifier AlertNotifier, interval time.Duration, logger Logger) *SNMPWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SNMPWatcher{
		store:    store,
		prober:   prober,
		notifier: notifier,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the polling loop.
func (w *SNMPWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("SNMP watcher started", "interval", w.interval)
	return nil
}

// Stop halts the polling loop.
func (w *SNMPWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("SNMP watcher stopped")
}

// IsRunning returns whether the watcher is running.
func (w *SNMPWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *SNMPWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-w.stopCh
		cancel()
	}()

	w.Poll(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll probes every device with a network address once.
func (w *SNMPWatcher) Poll(ctx context.Context) {
	devices, err := w.store.ListDevices(ctx)
	if err != nil {
		w.logger.Warn("SNMP poll failed to list devices", "error", err)
		return
	}

	for _, device := range devices {
		if device.Address == "" || device.Disabled {
			continue
		}
		w.pollDevice(ctx, device)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *SNMPWatcher) pollDevice(ctx context.Context, device *storage.Device) {
	report, err := w.prober.Status(device.Address)
	if err != nil {
		// Unreachable means offline; the probe itself never defaults.
		w.logger.Debug("SNMP probe failed", "device", device.ID, "error", err)
		if device.Status != storage.DeviceOffline {
			if err := w.store.SetDeviceStatus(ctx, device.ID, storage.DeviceOffline); err != nil {
				w.logger.Warn("Failed to mark device offline", "device", device.ID, "error", err)
			}
			w.emitStatus(device, storage.DeviceOffline)
		}
		return
	}

	paper := device.PaperLevel
	if report.PaperLevel >= 0 {
		paper = report.PaperLevel
	}
	toner := report.TonerLevels
	if len(toner) == 0 {
		toner = device.TonerLevels
	}
	pageCount := report.PageCount
	if pageCount == 0 {
		pageCount = device.PageCount
	}
	if err := w.store.UpdateDeviceSupplies(ctx, device.ID, paper, toner, pageCount); err != nil {
		w.logger.Warn("Failed to update device supplies", "device", device.ID, "error", err)
	}

	if device.Status != report.Status {
		if err := w.store.SetDeviceStatus(ctx, device.ID, report.Status); err != nil {
			w.logger.Warn("Failed to update device status", "device", device.ID, "error", err)
		}
		w.emitStatus(device, report.Status)
	}

	w.alertNewFlags(ctx, device, report)

	if err := w.store.UpdateDeviceErrors(ctx, device.ID, report.ErrorFlags); err != nil {
		w.logger.Warn("Failed to update device error flags", "device", device.ID, "error", err)
	}
}

// alertNewFlags notifies administrators about error flags that were not
// present on the previous poll. Flags that persist across polls stay
// silent; flags that clear and return alert again.
func (w *SNMPWatcher) alertNewFlags(ctx context.Context, device *storage.Device, report *probe.Report) {
	known := make(map[string]bool, len(device.LastKnownErrors))
	for _, f := range device.LastKnownErrors {
		known[f] = true
	}

	for _, flag := range report.ErrorFlags {
		if known[flag] {
			continue
		}
		w.logger.Warn("Device reported new error flag",
			"device", device.ID, "flag", flag, "alert", report.Alert)
		if w.notifier == nil {
			continue
		}
		message := flag
		if report.Alert != "" {
			message = flag + ": " + report.Alert
		}
		w.notifier.Notify(ctx, &storage.Notification{
			ID:       uuid.NewString(),
			Scope:    storage.ScopeAdmin,
			Priority: storage.PriorityHigh,
			Kind:     flag,
			Title:    "Printer problem: " + device.Name,
			Message:  message,
			DeviceID: device.ID,
		}, "printer_alert")
	}
}

func (w *SNMPWatcher) emitStatus(device *storage.Device, status storage.DeviceStatus) {
	if w.notifier == nil {
		return
	}
	w.notifier.Emit("device_status", map[string]interface{}{
		"device_id":   device.ID,
		"device_name": device.Name,
		"status":      string(status),
	})
}
