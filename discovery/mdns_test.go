package discovery

import (
	"context"
	"errors"
	"testing"

	"fleetprint/probe"
	"fleetprint/storage"
)

type nullLogger struct{}

func (nullLogger) Error(msg string, context ...interface{}) {}
func (nullLogger) Warn(msg string, context ...interface{})  {}
func (nullLogger) Info(msg string, context ...interface{})  {}
func (nullLogger) Debug(msg string, context ...interface{}) {}

func TestDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"Front Office HP", "192.168.1.50", "front-office-hp"},
		{"HP LaserJet 4000 (2nd floor)", "192.168.1.51", "hp-laserjet-4000--2nd-floor"},
		{"", "192.168.1.52", "192.168.1.52"},
		{"  Canon-MX490  ", "192.168.1.53", "canon-mx490"},
	}

	for _, tc := range tests {
		if got := DeviceID(tc.name, tc.address); got != tc.want {
			t.Errorf("DeviceID(%q, %q) = %q, want %q", tc.name, tc.address, got, tc.want)
		}
	}
}

func TestRegistrarRegistersAndRefreshes(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	registrar := NewRegistrar(store, nil, nullLogger{})
	registrar.Register(ctx, Found{Name: "Front Office HP", Address: "192.168.1.50", Service: "_ipp._tcp"})

	device, err := store.GetDevice(ctx, "front-office-hp")
	if err != nil {
		t.Fatalf("device not registered: %v", err)
	}
	if device.Address != "192.168.1.50" || device.Status != storage.DeviceOnline {
		t.Errorf("unexpected device: %+v", device)
	}

	// Operator customizes the device; re-discovery must not reset it.
	device.Settings.SeparatorPage = true
	device.Disabled = true
	if err := store.UpsertDevice(ctx, device); err != nil {
		t.Fatal(err)
	}

	registrar.Register(ctx, Found{Name: "Front Office HP", Address: "192.168.1.99", Service: "_ipp._tcp"})

	device, err = store.GetDevice(ctx, "front-office-hp")
	if err != nil {
		t.Fatal(err)
	}
	if device.Address != "192.168.1.99" {
		t.Errorf("address should refresh on re-discovery, got %s", device.Address)
	}
	if !device.Settings.SeparatorPage || !device.Disabled {
		t.Error("re-discovery must preserve operator settings")
	}
}

type stubProber struct {
	report *probe.Report
	err    error
}

func (s stubProber) Status(address string) (*probe.Report, error) {
	return s.report, s.err
}

func TestRegistrarProbesNewDevices(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	prober := stubProber{report: &probe.Report{
		Status:      storage.DeviceMaintenance,
		ErrorFlags:  []string{probe.FlagJammed},
		PaperLevel:  40,
		TonerLevels: map[string]int{"black": 70},
		PageCount:   12000,
	}}
	registrar := NewRegistrar(store, prober, nullLogger{})
	registrar.Register(ctx, Found{Name: "Lobby Printer", Address: "192.168.1.60", Service: "_ipp._tcp"})

	device, err := store.GetDevice(ctx, "lobby-printer")
	if err != nil {
		t.Fatal(err)
	}
	if device.Status != storage.DeviceMaintenance {
		t.Errorf("status = %s, want maintenance", device.Status)
	}
	if device.PaperLevel != 40 || device.TonerLevels["black"] != 70 || device.PageCount != 12000 {
		t.Errorf("supplies not taken from probe: %+v", device)
	}
	if len(device.LastKnownErrors) != 1 || device.LastKnownErrors[0] != probe.FlagJammed {
		t.Errorf("error flags = %v, want [jammed]", device.LastKnownErrors)
	}
}

func TestRegistrarMarksUnreachableDeviceOffline(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	registrar := NewRegistrar(store, stubProber{err: errors.New("timeout")}, nullLogger{})
	registrar.Register(ctx, Found{Name: "Dusty Basement", Address: "192.168.1.61", Service: "_printer._tcp"})

	device, err := store.GetDevice(ctx, "dusty-basement")
	if err != nil {
		t.Fatal(err)
	}
	if device.Status != storage.DeviceOffline {
		t.Errorf("status = %s, want offline", device.Status)
	}
}

func TestRegistrarIgnoresEmptyAddress(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	registrar := NewRegistrar(store, nil, nullLogger{})
	registrar.Register(context.Background(), Found{Name: "ghost"})

	devices, err := store.ListDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices, got %d", len(devices))
	}
}
