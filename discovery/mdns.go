// Package discovery finds networked printers via mDNS/DNS-SD and registers
// them as devices so the dispatch core can see the whole fleet without
// manual provisioning.
package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"fleetprint/probe"
	"fleetprint/storage"
)

// StatusProber checks a newly discovered printer's health so it can be
// registered with a real status instead of an assumed one.
type StatusProber interface {
	Status(address string) (*probe.Report, error)
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// serviceTypes are the DNS-SD service types printers advertise.
var serviceTypes = []string{"_ipp._tcp", "_ipps._tcp", "_printer._tcp"}

// Found is one discovered printer endpoint.
type Found struct {
	Name    string
	Address string
	Service string
}

// StartBrowser browses for printer services until ctx is cancelled,
// invoking onFound for every resolved IPv4 endpoint. The caller
// de-duplicates addresses.
func StartBrowser(ctx context.Context, onFound func(Found), logger Logger) {
	for _, st := range serviceTypes {
		st := st
		go func() {
			resolver, err := zeroconf.NewResolver(nil)
			if err != nil {
				logger.Warn("mDNS resolver error", "service", st, "error", err)
				return
			}
			entries := make(chan *zeroconf.ServiceEntry)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case e, ok := <-entries:
						if !ok {
							return
						}
						for _, ip := range e.AddrIPv4 {
							onFound(Found{
								Name:    e.Instance,
								Address: ip.String(),
								Service: st,
							})
						}
					}
				}
			}()
			logger.Info("mDNS browse started", "service", st)
			if err := resolver.Browse(ctx, st, "local.", entries); err != nil {
				logger.Warn("mDNS browse error", "service", st, "error", err)
			}
			// Browse closed the channel; let the consumer drain.
			time.Sleep(100 * time.Millisecond)
		}()
	}
}

// Registrar upserts discovered printers into storage.
type Registrar struct {
	store  storage.Store
	prober StatusProber
	logger Logger
}

// NewRegistrar creates a registrar. prober may be nil, in which case new
// devices are registered as online until the first monitor poll.
func NewRegistrar(store storage.Store, prober StatusProber, logger Logger) *Registrar {
	return &Registrar{store: store, prober: prober, logger: logger}
}

// Register records a discovered printer as a device, keyed by a sanitized
// instance name. Re-discovery of a known device refreshes its address and
// last-seen timestamp without touching operator settings.
func (r *Registrar) Register(ctx context.Context, found Found) {
	if found.Address == "" {
		return
	}
	id := DeviceID(found.Name, found.Address)

	if existing, err := r.store.GetDevice(ctx, id); err == nil {
		existing.Address = found.Address
		existing.LastSeen = time.Now().UTC()
		if err := r.store.UpsertDevice(ctx, existing); err != nil {
			r.logger.Warn("Failed to refresh discovered device", "device", id, "error", err)
		}
		return
	}

	device := &storage.Device{
		ID:      id,
		Name:    found.Name,
		Address: found.Address,
		Status:  storage.DeviceOnline,
		// Unknown until the first SNMP poll.
		PaperLevel: 100,
	}
	if r.prober != nil {
		if report, err := r.prober.Status(found.Address); err != nil {
			device.Status = storage.DeviceOffline
		} else {
			device.Status = report.Status
			device.LastKnownErrors = report.ErrorFlags
			if report.PaperLevel >= 0 {
				device.PaperLevel = report.PaperLevel
			}
			if len(report.TonerLevels) > 0 {
				device.TonerLevels = report.TonerLevels
			}
			device.PageCount = report.PageCount
		}
	}
	if err := r.store.UpsertDevice(ctx, device); err != nil {
		r.logger.Warn("Failed to register discovered device", "device", id, "error", err)
		return
	}
	r.logger.Info("Discovered printer registered",
		"device", id, "address", found.Address, "service", found.Service)
}

// DeviceID derives a stable device id from an mDNS instance name, falling
// back to the address when the name is empty.
func DeviceID(name, address string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	if id == "" {
		return address
	}
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, id)
	return strings.Trim(id, "-")
}
