package dispatch

import (
	"sync"
	"time"
)

// staleLockAge is the bound after which a lock is considered abandoned and
// may be reclaimed. Twice the maximum idle wait, so a live dispatch still
// draining the spooler can never be reclaimed under it.
var staleLockAge = 10 * time.Minute

// lockInfo records which job owns a device and since when.
type lockInfo struct {
	jobID     string
	startedAt time.Time
}

// DeviceLocks is the in-memory ownership table guaranteeing at most one
// in-flight dispatch per device. Locks are never persisted; a restart
// starts with a clean table.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]lockInfo
}

// NewDeviceLocks creates an empty lock table.
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]lockInfo)}
}

// Acquire claims the device for jobID. Returns false if another dispatch
// holds the device, unless that claim is older than the stale bound, in
// which case it is reclaimed.
func (l *DeviceLocks) Acquire(deviceID, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.locks[deviceID]; ok {
		if time.Since(existing.startedAt) < staleLockAge {
			return false
		}
	}
	l.locks[deviceID] = lockInfo{jobID: jobID, startedAt: time.Now()}
	return true
}

// Release frees the device. Releasing an unheld device is a no-op.
func (l *DeviceLocks) Release(deviceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, deviceID)
}

// Held reports whether the device is currently claimed.
func (l *DeviceLocks) Held(deviceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[deviceID]
	return ok
}

// Owner returns the job holding the device, if any.
func (l *DeviceLocks) Owner(deviceID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.locks[deviceID]
	return info.jobID, ok
}

// Len returns the number of held locks.
func (l *DeviceLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
