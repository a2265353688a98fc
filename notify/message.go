package notify

import (
	"encoding/json"
	"time"
)

// Message is the shape pushed to realtime subscribers. The same shape is
// serialized over the websocket endpoint and delivered on in-process
// subscriber channels.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Marshal marshals the message to JSON bytes, stamping Timestamp if unset.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}

// Event type constants used across the dispatcher and its clients.
const (
	EventJobQueued     = "job_queued"
	EventJobStarted    = "job_started"
	EventJobCompleted  = "job_completed"
	EventJobFailed     = "job_failed"
	EventJobPaused     = "job_paused"
	EventJobResumed    = "job_resumed"
	EventQueueUpdated  = "queue_updated"
	EventPrinterAlert  = "printer_alert"
	EventSupplyWarning = "supply_warning"
	EventDeviceStatus  = "device_status"
)
