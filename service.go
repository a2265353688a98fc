package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface so the dispatcher can run under
// systemd, launchd or the Windows service manager.
type program struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	runDispatcher(p.ctx, true)
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
	}
	return nil
}

func serviceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "FleetPrint")
	case "darwin":
		workingDir = "/Library/Application Support/FleetPrint"
	default:
		workingDir = "/var/lib/fleetprint"
	}

	return &service.Config{
		Name:             "FleetPrintDispatcher",
		DisplayName:      "FleetPrint Dispatcher",
		Description:      "Print-job dispatch and device-health orchestration for a shared printer fleet.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			"StartType":              "automatic",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",

			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",

			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}
