package storage

import (
	"time"
)

// JobStatus is the lifecycle state of a print job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in-progress"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job in this status can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// PauseInfo is the current pause state of a job. Set and cleared only by
// the supply monitor.
type PauseInfo struct {
	IsPaused bool       `json:"is_paused"`
	PausedAt *time.Time `json:"paused_at,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Details  string     `json:"details,omitempty"`
}

// PauseRecord is one append-only entry in a job's pause history.
type PauseRecord struct {
	ID        int64      `json:"id"`
	JobID     string     `json:"job_id"`
	Reason    string     `json:"reason"`
	Details   string     `json:"details,omitempty"`
	PausedAt  time.Time  `json:"paused_at"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`
}

// PrintSettings are the per-job output options handed to the device driver.
type PrintSettings struct {
	Copies int  `json:"copies"`
	Duplex bool `json:"duplex"`
	Color  bool `json:"color"`
}

// PrintJob is a unit of work bound to a single device at submission time.
type PrintJob struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id,omitempty"`
	DeviceID    string        `json:"device_id"`
	FileRef     string        `json:"file_ref"`
	Settings    PrintSettings `json:"settings"`
	Status      JobStatus     `json:"status"`
	SubmittedAt time.Time     `json:"submitted_at"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	Pause PauseInfo `json:"pause"`
}

// EntryStatus is the state of a queue entry. Entries only exist while the
// job is queued or in progress; terminal jobs have no entry.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryInProgress EntryStatus = "in-progress"
)

// QueueEntry is the ordering record, decoupled from the job document so the
// global FIFO order can be renumbered without touching jobs.
type QueueEntry struct {
	ID        int64       `json:"id"`
	JobID     string      `json:"job_id"`
	DeviceID  string      `json:"device_id"`
	Position  int         `json:"position"`
	Status    EntryStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// DeviceStatus is the operational state of a physical output device.
type DeviceStatus string

const (
	DeviceOnline      DeviceStatus = "online"
	DeviceBusy        DeviceStatus = "busy"
	DeviceOffline     DeviceStatus = "offline"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceError       DeviceStatus = "error"
)

// DeviceSettings are the per-device dispatch knobs.
type DeviceSettings struct {
	MaxQueueSize  int  `json:"max_queue_size"`
	AutoQueue     bool `json:"auto_queue"`
	SeparatorPage bool `json:"separator_page"`
}

// Device is a physical output unit.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"` // network address for the SNMP channel
	Location string `json:"location,omitempty"`

	Status   DeviceStatus `json:"status"`
	Disabled bool         `json:"disabled"`

	// Supplies. Paper and toner levels are 0-100; toner is keyed by
	// colorant ("black", "cyan", ...).
	PaperLevel  int            `json:"paper_level"`
	TonerLevels map[string]int `json:"toner_levels,omitempty"`
	PageCount   int            `json:"page_count"`

	// LastKnownErrors is the most recent set of named error flags from the
	// SNMP channel, kept so notifications only fire on new flags.
	LastKnownErrors []string `json:"last_known_errors,omitempty"`

	Settings DeviceSettings `json:"settings"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ErrorRecord is a persisted diagnostic entry. Append-only, never mutated.
type ErrorRecord struct {
	ID           int64     `json:"id"`
	DeviceID     string    `json:"device_id,omitempty"`
	DeviceName   string    `json:"device_name"`
	Kind         string    `json:"kind"`
	Description  string    `json:"description"`
	AffectedJobs int       `json:"affected_jobs"`
	Location     string    `json:"location,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification scopes.
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// Notification priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is a persisted user- or admin-facing message.
type Notification struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	UserID    string    `json:"user_id,omitempty"`
	Priority  string    `json:"priority"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// QueueItem is one row of the read-only queue projection.
type QueueItem struct {
	Position    int         `json:"position"`
	JobID       string      `json:"job_id"`
	DeviceID    string      `json:"device_id"`
	DeviceName  string      `json:"device_name,omitempty"`
	Status      EntryStatus `json:"status"`
	UserID      string      `json:"user_id,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// QueueStats is the aggregate queue projection.
type QueueStats struct {
	Pending        int `json:"pending"`
	InProgress     int `json:"in_progress"`
	Paused         int `json:"paused"`
	CompletedToday int `json:"completed_today"`
	FailedToday    int `json:"failed_today"`
	Devices        int `json:"devices"`
}
