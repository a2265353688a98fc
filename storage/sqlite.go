package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite-based store.
// If dbPath is empty, uses an in-memory database (:memory:).
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes internally with busy_timeout; a small pool
	// lets WAL-mode reads run alongside the single writer.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &SQLiteStore{db: db, dbPath: dbPath}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		device_id TEXT NOT NULL,
		file_ref TEXT NOT NULL,
		copies INTEGER DEFAULT 1,
		duplex BOOLEAN DEFAULT 0,
		color BOOLEAN DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		submitted_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		error_message TEXT,
		is_paused BOOLEAN DEFAULT 0,
		paused_at DATETIME,
		pause_reason TEXT,
		pause_details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_device ON jobs(device_id);

	CREATE TABLE IF NOT EXISTS queue_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_entries_device_status ON queue_entries(device_id, status);
	CREATE INDEX IF NOT EXISTS idx_entries_position ON queue_entries(position);

	CREATE TABLE IF NOT EXISTS pause_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		details TEXT,
		paused_at DATETIME NOT NULL,
		resumed_at DATETIME,
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_pause_history_job ON pause_history(job_id);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		location TEXT,
		status TEXT NOT NULL DEFAULT 'online',
		disabled BOOLEAN DEFAULT 0,
		paper_level INTEGER DEFAULT 100,
		toner_levels TEXT,
		page_count INTEGER DEFAULT 0,
		last_known_errors TEXT,
		max_queue_size INTEGER DEFAULT 50,
		auto_queue BOOLEAN DEFAULT 1,
		separator_page BOOLEAN DEFAULT 0,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

	CREATE TABLE IF NOT EXISTS error_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT,
		device_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT,
		affected_jobs INTEGER DEFAULT 0,
		location TEXT,
		address TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_error_records_created ON error_records(created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		user_id TEXT,
		priority TEXT NOT NULL DEFAULT 'normal',
		kind TEXT,
		title TEXT NOT NULL,
		message TEXT,
		job_id TEXT,
		device_id TEXT,
		created_at DATETIME NOT NULL,
		read BOOLEAN DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_scope ON notifications(scope, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isBusy reports whether err is a transient SQLite locking failure.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// mapWriteErr converts transient locking failures to ErrConflict so
// callers can apply their retry policy.
func mapWriteErr(err error) error {
	if isBusy(err) {
		if storageLogger != nil {
			storageLogger.WarnRateLimited("sqlite-busy", 30*time.Second,
				"SQLite write conflict", "error", err)
		}
		return ErrConflict
	}
	return err
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapWriteErr(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return mapWriteErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

// --- Jobs ---

// CreateJob adds a new job in pending state
func (s *SQLiteStore) CreateJob(ctx context.Context, job *PrintJob) error {
	if job.Status == "" {
		job.Status = JobPending
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	if job.Settings.Copies <= 0 {
		job.Settings.Copies = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, device_id, file_ref, copies, duplex, color, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.DeviceID, job.FileRef,
		job.Settings.Copies, job.Settings.Duplex, job.Settings.Color,
		string(job.Status), job.SubmittedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return mapWriteErr(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	var job PrintJob
	var status string
	var userID, errMsg, pauseReason, pauseDetails sql.NullString
	var startedAt, completedAt, pausedAt sql.NullTime
	var isPaused bool

	err := row.Scan(&job.ID, &userID, &job.DeviceID, &job.FileRef,
		&job.Settings.Copies, &job.Settings.Duplex, &job.Settings.Color,
		&status, &job.SubmittedAt, &startedAt, &completedAt, &errMsg,
		&isPaused, &pausedAt, &pauseReason, &pauseDetails)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	job.UserID = userID.String
	job.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	job.Pause.IsPaused = isPaused
	if pausedAt.Valid {
		t := pausedAt.Time
		job.Pause.PausedAt = &t
	}
	job.Pause.Reason = pauseReason.String
	job.Pause.Details = pauseDetails.String
	return &job, nil
}

const jobColumns = `id, user_id, device_id, file_ref, copies, duplex, color, status, submitted_at,
	started_at, completed_at, error_message, is_paused, paused_at, pause_reason, pause_details`

// GetJob retrieves a job by id
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*PrintJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// JobsInProgress returns all jobs currently in-progress or paused
func (s *SQLiteStore) JobsInProgress(ctx context.Context) ([]*PrintJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) ORDER BY submitted_at`,
		string(JobInProgress), string(JobPaused))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PauseHistory returns a job's pause records, oldest first
func (s *SQLiteStore) PauseHistory(ctx context.Context, jobID string) ([]*PauseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, reason, details, paused_at, resumed_at
		FROM pause_history WHERE job_id = ? ORDER BY paused_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PauseRecord
	for rows.Next() {
		var rec PauseRecord
		var details sql.NullString
		var resumedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Reason, &details, &rec.PausedAt, &resumedAt); err != nil {
			return nil, err
		}
		rec.Details = details.String
		if resumedAt.Valid {
			t := resumedAt.Time
			rec.ResumedAt = &t
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// --- Queue ---

// EnqueueJob atomically creates the queue entry and transitions the job to queued
func (s *SQLiteStore) EnqueueJob(ctx context.Context, jobID string) (*QueueEntry, error) {
	var entry QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status, deviceID string
		err := tx.QueryRowContext(ctx,
			`SELECT status, device_id FROM jobs WHERE id = ?`, jobID).Scan(&status, &deviceID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if JobStatus(status) != JobPending {
			return ErrNotPending
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM queue_entries WHERE job_id = ?`, jobID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyQueued
		}

		// Position assignment and insert happen in the same transaction so
		// a concurrent enqueue cannot observe a half-computed position.
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM queue_entries`).Scan(&next); err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (job_id, device_id, position, status, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			jobID, deviceID, next, string(EntryPending), now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ? WHERE id = ?`, string(JobQueued), jobID); err != nil {
			return err
		}

		entry = QueueEntry{
			ID:        id,
			JobID:     jobID,
			DeviceID:  deviceID,
			Position:  next,
			Status:    EntryPending,
			CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func scanEntry(row rowScanner) (*QueueEntry, error) {
	var entry QueueEntry
	var status string
	err := row.Scan(&entry.ID, &entry.JobID, &entry.DeviceID, &entry.Position, &status, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.Status = EntryStatus(status)
	return &entry, nil
}

// NextEligibleEntry returns the lowest-position pending entry for the device
func (s *SQLiteStore) NextEligibleEntry(ctx context.Context, deviceID string) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, device_id, position, status, created_at
		FROM queue_entries
		WHERE device_id = ? AND status = ?
		ORDER BY position LIMIT 1`,
		deviceID, string(EntryPending))
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DevicesWithPending returns ids of devices with at least one pending entry
func (s *SQLiteStore) DevicesWithPending(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT device_id FROM queue_entries WHERE status = ? ORDER BY device_id`,
		string(EntryPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkEntryInProgress atomically flips entry and job to in-progress
func (s *SQLiteStore) MarkEntryInProgress(ctx context.Context, entryID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var jobID, status string
		err := tx.QueryRowContext(ctx,
			`SELECT job_id, status FROM queue_entries WHERE id = ?`, entryID).Scan(&jobID, &status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if EntryStatus(status) != EntryPending {
			return ErrNotPending
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET status = ? WHERE id = ?`,
			string(EntryInProgress), entryID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
			string(JobInProgress), time.Now().UTC(), jobID)
		return err
	})
}

// FinishJob atomically removes the queue entry, records the terminal state
// and renumbers the remaining entries.
func (s *SQLiteStore) FinishJob(ctx context.Context, jobID string, status JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %q", status)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM jobs WHERE id = ?`, jobID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_entries WHERE job_id = ?`, jobID); err != nil {
			return err
		}

		var errMsg interface{}
		if message != "" {
			errMsg = message
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, completed_at = ?, error_message = ?, is_paused = 0
			WHERE id = ?`,
			string(status), time.Now().UTC(), errMsg, jobID); err != nil {
			return err
		}

		return renumberEntries(ctx, tx)
	})
}

// renumberEntries compacts positions to a gap-free 1..M, preserving
// relative order. Runs inside the caller's transaction so readers never
// see a duplicated or missing position.
func renumberEntries(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, position FROM queue_entries ORDER BY position`)
	if err != nil {
		return err
	}

	type slot struct {
		id       int64
		position int
	}
	var slots []slot
	for rows.Next() {
		var sl slot
		if err := rows.Scan(&sl.id, &sl.position); err != nil {
			rows.Close()
			return err
		}
		slots = append(slots, sl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i, sl := range slots {
		want := i + 1
		if sl.position == want {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET position = ? WHERE id = ?`, want, sl.id); err != nil {
			return err
		}
	}
	return nil
}

// PendingCount returns the number of pending entries for a device
func (s *SQLiteStore) PendingCount(ctx context.Context, deviceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE device_id = ? AND status = ?`,
		deviceID, string(EntryPending)).Scan(&count)
	return count, err
}

// QueueSnapshot returns up to limit queue rows ordered by position
func (s *SQLiteStore) QueueSnapshot(ctx context.Context, limit int) ([]*QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.position, e.job_id, e.device_id, COALESCE(d.name, ''), e.status,
			COALESCE(j.user_id, ''), j.submitted_at
		FROM queue_entries e
		JOIN jobs j ON j.id = e.job_id
		LEFT JOIN devices d ON d.id = e.device_id
		ORDER BY e.position LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		var item QueueItem
		var status string
		if err := rows.Scan(&item.Position, &item.JobID, &item.DeviceID, &item.DeviceName,
			&status, &item.UserID, &item.SubmittedAt); err != nil {
			return nil, err
		}
		item.Status = EntryStatus(status)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// QueueStats returns aggregate queue counters
func (s *SQLiteStore) QueueStats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM queue_entries WHERE status = 'pending'),
			(SELECT COUNT(*) FROM queue_entries WHERE status = 'in-progress'),
			(SELECT COUNT(*) FROM jobs WHERE status = 'paused'),
			(SELECT COUNT(*) FROM jobs WHERE status = 'completed' AND completed_at >= ?),
			(SELECT COUNT(*) FROM jobs WHERE status = 'failed' AND completed_at >= ?),
			(SELECT COUNT(*) FROM devices)`,
		startOfDay(), startOfDay()).
		Scan(&stats.Pending, &stats.InProgress, &stats.Paused,
			&stats.CompletedToday, &stats.FailedToday, &stats.Devices)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func startOfDay() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// --- Pause state ---

// PauseJob atomically pauses a job and appends a pause history record
func (s *SQLiteStore) PauseJob(ctx context.Context, jobID, reason, details string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if JobStatus(status).Terminal() {
			return fmt.Errorf("job %s already terminal (%s)", jobID, status)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, is_paused = 1, paused_at = ?, pause_reason = ?, pause_details = ?
			WHERE id = ?`,
			string(JobPaused), now, reason, details, jobID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO pause_history (job_id, reason, details, paused_at)
			VALUES (?, ?, ?, ?)`, jobID, reason, details, now)
		return err
	})
}

// ResumeJob atomically resumes a paused job and closes its open pause record
func (s *SQLiteStore) ResumeJob(ctx context.Context, jobID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, is_paused = 0, paused_at = NULL,
				pause_reason = NULL, pause_details = NULL
			WHERE id = ?`,
			string(JobInProgress), jobID); err != nil {
			return err
		}

		// Close the most recent open pause record
		_, err = tx.ExecContext(ctx, `
			UPDATE pause_history SET resumed_at = ?
			WHERE id = (SELECT id FROM pause_history
				WHERE job_id = ? AND resumed_at IS NULL
				ORDER BY paused_at DESC, id DESC LIMIT 1)`,
			time.Now().UTC(), jobID)
		return err
	})
}

// --- Devices ---

// UpsertDevice creates or updates a device
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		return fmt.Errorf("device id required")
	}
	if device.Status == "" {
		device.Status = DeviceOnline
	}
	now := time.Now().UTC()
	if device.FirstSeen.IsZero() {
		device.FirstSeen = now
	}
	device.LastSeen = now

	toner, err := json.Marshal(device.TonerLevels)
	if err != nil {
		return err
	}
	errs, err := json.Marshal(device.LastKnownErrors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, address, location, status, disabled,
			paper_level, toner_levels, page_count, last_known_errors,
			max_queue_size, auto_queue, separator_page, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			location = excluded.location,
			status = excluded.status,
			disabled = excluded.disabled,
			paper_level = excluded.paper_level,
			toner_levels = excluded.toner_levels,
			page_count = excluded.page_count,
			last_known_errors = excluded.last_known_errors,
			max_queue_size = excluded.max_queue_size,
			auto_queue = excluded.auto_queue,
			separator_page = excluded.separator_page,
			last_seen = excluded.last_seen`,
		device.ID, device.Name, device.Address, device.Location, string(device.Status),
		device.Disabled, device.PaperLevel, string(toner), device.PageCount, string(errs),
		device.Settings.MaxQueueSize, device.Settings.AutoQueue, device.Settings.SeparatorPage,
		device.FirstSeen, device.LastSeen)
	return mapWriteErr(err)
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var status string
	var address, location, toner, errs sql.NullString

	err := row.Scan(&d.ID, &d.Name, &address, &location, &status, &d.Disabled,
		&d.PaperLevel, &toner, &d.PageCount, &errs,
		&d.Settings.MaxQueueSize, &d.Settings.AutoQueue, &d.Settings.SeparatorPage,
		&d.FirstSeen, &d.LastSeen)
	if err != nil {
		return nil, err
	}

	d.Status = DeviceStatus(status)
	d.Address = address.String
	d.Location = location.String
	if toner.Valid && toner.String != "" {
		if err := json.Unmarshal([]byte(toner.String), &d.TonerLevels); err != nil {
			return nil, fmt.Errorf("corrupt toner levels for %s: %w", d.ID, err)
		}
	}
	if errs.Valid && errs.String != "" {
		if err := json.Unmarshal([]byte(errs.String), &d.LastKnownErrors); err != nil {
			return nil, fmt.Errorf("corrupt error flags for %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

const deviceColumns = `id, name, address, location, status, disabled,
	paper_level, toner_levels, page_count, last_known_errors,
	max_queue_size, auto_queue, separator_page, first_seen, last_seen`

// GetDevice retrieves a device by id
func (s *SQLiteStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// ListDevices returns all devices
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// SetDeviceStatus updates only the device status
func (s *SQLiteStore) SetDeviceStatus(ctx context.Context, id string, status DeviceStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeviceSupplies records the latest probe readings
func (s *SQLiteStore) UpdateDeviceSupplies(ctx context.Context, id string, paper int, toner map[string]int, pageCount int) error {
	tonerJSON, err := json.Marshal(toner)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET paper_level = ?, toner_levels = ?, page_count = ?, last_seen = ?
		WHERE id = ?`,
		paper, string(tonerJSON), pageCount, time.Now().UTC(), id)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeviceErrors replaces the device's last known error flags
func (s *SQLiteStore) UpdateDeviceErrors(ctx context.Context, id string, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_known_errors = ?, last_seen = ? WHERE id = ?`,
		string(errsJSON), time.Now().UTC(), id)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Audit + notifications ---

// AddErrorRecord appends a diagnostic record
func (s *SQLiteStore) AddErrorRecord(ctx context.Context, rec *ErrorRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO error_records (device_id, device_name, kind, description,
			affected_jobs, location, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.DeviceName, rec.Kind, rec.Description,
		rec.AffectedJobs, rec.Location, rec.Address, rec.CreatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// ErrorRecords returns the most recent diagnostic records
func (s *SQLiteStore) ErrorRecords(ctx context.Context, limit int) ([]*ErrorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(device_id, ''), device_name, kind, COALESCE(description, ''),
			affected_jobs, COALESCE(location, ''), COALESCE(address, ''), created_at
		FROM error_records ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ErrorRecord
	for rows.Next() {
		var rec ErrorRecord
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.DeviceName, &rec.Kind, &rec.Description,
			&rec.AffectedJobs, &rec.Location, &rec.Address, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AddNotification persists a notification
func (s *SQLiteStore) AddNotification(ctx context.Context, n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, scope, user_id, priority, kind, title, message,
			job_id, device_id, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		n.ID, n.Scope, n.UserID, n.Priority, n.Kind, n.Title, n.Message,
		n.JobID, n.DeviceID, n.CreatedAt)
	return mapWriteErr(err)
}

// Notifications returns recent notifications for a scope, newest first
func (s *SQLiteStore) Notifications(ctx context.Context, scope string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, COALESCE(user_id, ''), priority, COALESCE(kind, ''), title,
			COALESCE(message, ''), COALESCE(job_id, ''), COALESCE(device_id, ''), created_at, read
		FROM notifications WHERE scope = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Scope, &n.UserID, &n.Priority, &n.Kind, &n.Title,
			&n.Message, &n.JobID, &n.DeviceID, &n.CreatedAt, &n.Read); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}
