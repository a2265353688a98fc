package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fleetprint/faults"
	"fleetprint/notify"
	"fleetprint/storage"
)

// routes builds the HTTP API surface.
func (a *App) routes(handler *faults.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs/submit", a.handleSubmitJob(handler))
	mux.HandleFunc("GET /api/jobs/{id}", a.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/pauses", a.handleJobPauses)
	mux.HandleFunc("GET /api/queue", a.handleQueueSnapshot)
	mux.HandleFunc("GET /api/queue/stats", a.handleQueueStats)
	mux.HandleFunc("GET /api/devices", a.handleListDevices)
	mux.HandleFunc("GET /api/devices/{id}/health", a.handleDeviceHealth(handler))
	mux.HandleFunc("GET /api/notifications", a.handleNotifications)
	mux.HandleFunc("GET /api/errors", a.handleErrorRecords)

	mux.HandleFunc("POST /api/dispatch/start", a.handleLifecycle(a.proc.Start))
	mux.HandleFunc("POST /api/dispatch/stop", a.handleLifecycle(func() error { a.proc.Stop(); return nil }))
	mux.HandleFunc("POST /api/monitor/supply/start", a.handleLifecycle(a.supply.Start))
	mux.HandleFunc("POST /api/monitor/supply/stop", a.handleLifecycle(func() error { a.supply.Stop(); return nil }))
	mux.HandleFunc("POST /api/monitor/snmp/start", a.handleLifecycle(a.snmp.Start))
	mux.HandleFunc("POST /api/monitor/snmp/stop", a.handleLifecycle(func() error { a.snmp.Stop(); return nil }))
	mux.HandleFunc("POST /api/discovery/start", a.handleLifecycle(a.startDiscovery))
	mux.HandleFunc("POST /api/discovery/stop", a.handleLifecycle(func() error { a.stopDiscovery(); return nil }))

	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.Handle("GET /ws", notify.WSHandler(a.hub, a.log))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type submitRequest struct {
	UserID   string                `json:"user_id"`
	DeviceID string                `json:"device_id"`
	FileRef  string                `json:"file_ref"`
	Settings storage.PrintSettings `json:"settings"`
}

// handleSubmitJob creates a job and enqueues it in one call. The device
// must pass a health check before the job is accepted.
func (a *App) handleSubmitJob(handler *faults.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DeviceID == "" || req.FileRef == "" {
			writeError(w, http.StatusBadRequest, "device_id and file_ref are required")
			return
		}

		if health := handler.CheckHealth(r.Context(), req.DeviceID); !health.CanPrint {
			writeError(w, http.StatusConflict, health.Reason)
			return
		}

		job := &storage.PrintJob{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			DeviceID:    req.DeviceID,
			FileRef:     req.FileRef,
			Settings:    req.Settings,
			SubmittedAt: time.Now().UTC(),
		}
		if err := a.store.CreateJob(r.Context(), job); err != nil {
			a.log.Error("Failed to create job", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}
		if err := a.queues.Enqueue(r.Context(), job.ID); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		created, err := a.store.GetJob(r.Context(), job.ID)
		if err != nil {
			created = job
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (a *App) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *App) handleJobPauses(w http.ResponseWriter, r *http.Request) {
	history, err := a.store.PauseHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load pause history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *App) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := a.queues.Snapshot(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load queue")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.queues.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *App) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.store.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (a *App) handleDeviceHealth(handler *faults.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := handler.CheckHealth(r.Context(), r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"can_print": health.CanPrint,
			"reason":    health.Reason,
		})
	}
}

func (a *App) handleNotifications(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = storage.ScopeUser
	}
	notes, err := a.store.Notifications(r.Context(), scope, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (a *App) handleErrorRecords(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.ErrorRecords(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load error records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *App) handleLifecycle(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dispatch_running":  a.proc.IsRunning(),
		"supply_running":    a.supply.IsRunning(),
		"snmp_running":      a.snmp.IsRunning(),
		"discovery_running": a.discoveryRunning(),
		"held_locks":        a.proc.Locks().Len(),
	})
}
