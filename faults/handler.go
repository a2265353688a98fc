package faults

import (
	"context"

	"github.com/google/uuid"

	"fleetprint/storage"
)

// Logger is the minimal logging surface the handler needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Notifier delivers realtime events. Implementations must never block;
// delivery is fire-and-forget from the handler's perspective.
type Notifier interface {
	Emit(event string, payload map[string]interface{})
}

// Result describes the outcome of handling one failure.
type Result struct {
	Kind                Kind
	UserMessage         string
	NotificationCreated bool
}

// Health is the outcome of a pre-dispatch device health check.
type Health struct {
	CanPrint bool
	Reason   string
}

// criticalFlags are the device error flags that block dispatch outright.
var criticalFlags = map[string]string{
	"noPaper": "Printer is out of paper",
	"noToner": "Printer is out of toner",
	"jammed":  "Printer has a paper jam",
	"offline": "Printer is offline",
}

// Handler orchestrates classification, persistence and notification
// fan-out for dispatch failures.
type Handler struct {
	store    storage.Store
	notifier Notifier
	logger   Logger
}

// NewHandler creates a failure handler.
func NewHandler(store storage.Store, notifier Notifier, logger Logger) *Handler {
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// Handle classifies a failure and fans out its consequences: a user
// notification, an error record, an urgent admin alert for critical
// classes and an offline flip for communication failures. It never
// returns an error to the caller; internal persistence failures degrade
// to an UnknownError result so a broken notification path cannot abort
// the dispatch flow.
func (h *Handler) Handle(ctx context.Context, job *storage.PrintJob, message string, device *storage.Device) Result {
	kind := Classify(message)
	userMsg := UserMessage(kind)

	if device == nil && job != nil && job.DeviceID != "" {
		d, err := h.store.GetDevice(ctx, job.DeviceID)
		if err != nil {
			h.logger.Warn("Failed to resolve device for error handling",
				"device", job.DeviceID, "error", err)
		} else {
			device = d
		}
	}

	result := Result{Kind: kind, UserMessage: userMsg}

	deviceID, deviceName, location, address := "", "unknown", "", ""
	if device != nil {
		deviceID = device.ID
		deviceName = device.Name
		location = device.Location
		address = device.Address
	}

	userNote := &storage.Notification{
		ID:       uuid.NewString(),
		Scope:    storage.ScopeUser,
		Priority: storage.PriorityHigh,
		Kind:     string(kind),
		Title:    "Print job failed",
		Message:  userMsg,
		DeviceID: deviceID,
	}
	if job != nil {
		userNote.UserID = job.UserID
		userNote.JobID = job.ID
	}
	if err := h.store.AddNotification(ctx, userNote); err != nil {
		h.logger.Error("Failed to persist failure notification", "error", err)
		return Result{Kind: UnknownError, UserMessage: UserMessage(UnknownError)}
	}
	result.NotificationCreated = true

	rec := &storage.ErrorRecord{
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		Kind:        string(kind),
		Description: message,
		Location:    location,
		Address:     address,
	}
	if job != nil {
		rec.AffectedJobs = 1
	}
	if err := h.store.AddErrorRecord(ctx, rec); err != nil {
		h.logger.Error("Failed to persist error record", "error", err)
	}

	if Critical(kind) {
		adminNote := &storage.Notification{
			ID:       uuid.NewString(),
			Scope:    storage.ScopeAdmin,
			Priority: storage.PriorityUrgent,
			Kind:     string(kind),
			Title:    "Printer problem: " + deviceName,
			Message:  message,
			DeviceID: deviceID,
		}
		if job != nil {
			adminNote.JobID = job.ID
		}
		if err := h.store.AddNotification(ctx, adminNote); err != nil {
			h.logger.Error("Failed to persist admin notification", "error", err)
		}

		if h.notifier != nil {
			payload := map[string]interface{}{
				"kind":        string(kind),
				"message":     message,
				"device_id":   deviceID,
				"device_name": deviceName,
			}
			if job != nil {
				payload["job_id"] = job.ID
			}
			h.notifier.Emit("printer_alert", payload)
		}
	}

	if kind == CommunicationFailure && deviceID != "" {
		if err := h.store.SetDeviceStatus(ctx, deviceID, storage.DeviceOffline); err != nil {
			h.logger.Warn("Failed to mark device offline", "device", deviceID, "error", err)
		}
	}

	h.logger.Info("Dispatch failure handled",
		"kind", string(kind), "device", deviceName, "message", message)
	return result
}

// CheckHealth decides whether a device can accept a job right now. A
// device is dispatchable only if it exists, is enabled, is not offline or
// in maintenance, has paper and toner, and carries no critical error flag.
func (h *Handler) CheckHealth(ctx context.Context, deviceID string) Health {
	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		return Health{CanPrint: false, Reason: "Printer not found: " + deviceID}
	}
	return CheckDeviceHealth(device)
}

// CheckDeviceHealth evaluates an already-loaded device record.
func CheckDeviceHealth(device *storage.Device) Health {
	if device.Disabled {
		return Health{CanPrint: false, Reason: "Printer is disabled"}
	}
	switch device.Status {
	case storage.DeviceOffline:
		return Health{CanPrint: false, Reason: "Printer is offline"}
	case storage.DeviceMaintenance:
		return Health{CanPrint: false, Reason: "Printer is under maintenance"}
	}

	for _, flag := range device.LastKnownErrors {
		if reason, ok := criticalFlags[flag]; ok {
			return Health{CanPrint: false, Reason: reason}
		}
	}

	if device.PaperLevel <= 0 {
		return Health{CanPrint: false, Reason: "Printer is out of paper"}
	}
	for color, level := range device.TonerLevels {
		if level <= 0 {
			return Health{CanPrint: false, Reason: "Printer is out of toner (" + color + ")"}
		}
	}

	return Health{CanPrint: true}
}
