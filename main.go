package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"

	"fleetprint/config"
	"fleetprint/logger"
)

func main() {
	serviceFlag := flag.Bool("service", false, "run under the system service manager")
	flag.Parse()

	if *serviceFlag || len(flag.Args()) > 0 {
		runServiceCommand(flag.Args())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	runDispatcher(ctx, false)
}

// runServiceCommand handles install/uninstall/start/stop/run verbs through
// the service manager.
func runServiceCommand(args []string) {
	prg := &program{}
	svc, err := service.New(prg, serviceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "service setup failed: %v\n", err)
		os.Exit(1)
	}

	if len(args) > 0 && args[0] != "run" {
		if err := service.Control(svc, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "service %s failed: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("service %s: ok\n", args[0])
		return
	}

	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "service run failed: %v\n", err)
		os.Exit(1)
	}
}

// runDispatcher is the shared entry point for interactive and service
// mode. It blocks until ctx is cancelled.
func runDispatcher(ctx context.Context, isService bool) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := config.DataDirectory(cfg.DataDir, isService)
	if err != nil {
		fmt.Fprintf(os.Stderr, "data directory error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LevelFromString(cfg.LogLevel), dataDir, 1000)
	defer log.Close()
	log.SetConsoleOutput(!isService)
	log.SetRotationPolicy(logger.RotationPolicy{Enabled: true, MaxSizeMB: 10, MaxFiles: 5})

	if cfgPath != "" {
		log.Info("Configuration loaded", "path", cfgPath)
	} else {
		log.Info("No configuration file found, using defaults")
	}

	app, err := NewApp(cfg, log, dataDir)
	if err != nil {
		log.Error("Startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start dispatcher", "error", err)
		os.Exit(1)
	}
	log.Info("Fleet dispatcher running", "data_dir", dataDir)

	<-ctx.Done()
	log.Info("Shutting down")
	app.Stop()
}
