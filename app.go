package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"fleetprint/config"
	"fleetprint/discovery"
	"fleetprint/dispatch"
	"fleetprint/driver"
	"fleetprint/faults"
	"fleetprint/logger"
	"fleetprint/monitor"
	"fleetprint/notify"
	"fleetprint/probe"
	"fleetprint/queue"
	"fleetprint/storage"

	"github.com/gosnmp/gosnmp"
)

// App wires the dispatcher's components together and owns their lifecycle.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *storage.SQLiteStore
	hub    *notify.Hub
	queues *queue.Manager
	proc   *dispatch.Processor
	prober *probe.Prober
	supply *monitor.SupplyMonitor
	snmp   *monitor.SNMPWatcher
	server *http.Server

	discMu          sync.Mutex
	discoveryCancel context.CancelFunc
}

// NewApp builds the full component graph from configuration.
func NewApp(cfg *config.Config, log *logger.Logger, dataDir string) (*App, error) {
	store, err := storage.NewSQLiteStore(filepath.Join(dataDir, "fleetprint.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	storage.SetLogger(log)

	hub := notify.NewHub()
	notifier := notify.NewNotifier(store, hub, log)
	manager := queue.NewManager(store, notifier, log)
	handler := faults.NewHandler(store, notifier, log)

	files := driver.NewLocalFileStore(cfg.FileDir)
	drv := driver.NewDriver(log)

	proc := dispatch.NewProcessor(manager, store, handler, files, drv,
		dispatch.ProcessorConfig{
			TickInterval: cfg.TickInterval(),
			IdleMaxWait:  cfg.IdleMaxWait(),
			IdlePoll:     cfg.IdlePoll(),
		}, log)

	prober := probe.NewProber(&probe.SNMPConfig{
		Community: cfg.SNMP.Community,
		Version:   gosnmp.Version2c,
	}, cfg.SNMPTimeout())

	supply := monitor.NewSupplyMonitor(store, notifier, cfg.SupplyInterval(), log)
	snmpWatcher := monitor.NewSNMPWatcher(store, prober, notifier, cfg.SNMPInterval(), log)

	app := &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		hub:    hub,
		queues: manager,
		proc:   proc,
		prober: prober,
		supply: supply,
		snmp:   snmpWatcher,
	}
	app.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Start launches every background loop and the HTTP API.
func (a *App) Start(ctx context.Context) error {
	if err := a.proc.Start(); err != nil {
		return err
	}
	if err := a.supply.Start(); err != nil {
		return err
	}
	if err := a.snmp.Start(); err != nil {
		return err
	}

	if a.cfg.Discovery.Enabled {
		a.startDiscovery()
	}

	go func() {
		a.log.Info("HTTP API listening", "addr", a.cfg.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the loops down in reverse dependency order.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("HTTP shutdown incomplete", "error", err)
	}

	a.stopDiscovery()
	a.snmp.Stop()
	a.supply.Stop()
	a.proc.Stop()
	a.hub.Stop()

	if err := a.store.Close(); err != nil {
		a.log.Warn("Storage close failed", "error", err)
	}
}

// startDiscovery launches the mDNS browser. Safe to call repeatedly; a
// running browser is left alone.
func (a *App) startDiscovery() error {
	a.discMu.Lock()
	defer a.discMu.Unlock()
	if a.discoveryCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.discoveryCancel = cancel
	registrar := discovery.NewRegistrar(a.store, a.prober, a.log)
	discovery.StartBrowser(ctx, func(found discovery.Found) {
		registrar.Register(ctx, found)
	}, a.log)
	return nil
}

// stopDiscovery cancels the mDNS browser if it is running.
func (a *App) stopDiscovery() {
	a.discMu.Lock()
	defer a.discMu.Unlock()
	if a.discoveryCancel != nil {
		a.discoveryCancel()
		a.discoveryCancel = nil
	}
}

func (a *App) discoveryRunning() bool {
	a.discMu.Lock()
	defer a.discMu.Unlock()
	return a.discoveryCancel != nil
}
