package probe

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"fleetprint/oids"
	"fleetprint/storage"
)

// Error flag names decoded from hrPrinterDetectedErrorState. The strings
// double as the flags persisted on a device record.
const (
	FlagLowPaper         = "lowPaper"
	FlagNoPaper          = "noPaper"
	FlagLowToner         = "lowToner"
	FlagNoToner          = "noToner"
	FlagDoorOpen         = "doorOpen"
	FlagJammed           = "jammed"
	FlagOffline          = "offline"
	FlagServiceRequested = "serviceRequested"
)

// errorBits maps bit positions of the first hrPrinterDetectedErrorState
// octet, least significant bit first, to flag names.
var errorBits = [8]string{
	FlagLowPaper,
	FlagNoPaper,
	FlagLowToner,
	FlagNoToner,
	FlagDoorOpen,
	FlagJammed,
	FlagOffline,
	FlagServiceRequested,
}

// DecodeErrorBits expands the first octet of hrPrinterDetectedErrorState
// into the list of set flag names, ordered by bit position.
func DecodeErrorBits(octet byte) []string {
	flags := []string{}
	for i := 0; i < 8; i++ {
		if octet&(1<<i) != 0 {
			flags = append(flags, errorBits[i])
		}
	}
	return flags
}

// Report is the result of one SNMP health probe of a device.
type Report struct {
	Status      storage.DeviceStatus
	ErrorFlags  []string
	Alert       string
	PageCount   int
	PaperLevel  int
	TonerLevels map[string]int
	ProbedAt    time.Time
}

// HasFlag reports whether the given error flag was set.
func (r *Report) HasFlag(flag string) bool {
	for _, f := range r.ErrorFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Prober runs SNMP health probes against printer devices.
type Prober struct {
	cfg     *SNMPConfig
	timeout time.Duration
}

// NewProber creates a prober. cfg may be nil for defaults.
func NewProber(cfg *SNMPConfig, timeout time.Duration) *Prober {
	if cfg == nil {
		cfg = DefaultSNMPConfig()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{cfg: cfg, timeout: timeout}
}

// Status probes the device at address and derives a health report. A
// device that cannot be reached at all returns an error; callers treat
// that as offline.
func (p *Prober) Status(address string) (*Report, error) {
	client, err := NewSNMPClient(p.cfg, address, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", address, err)
	}
	defer client.Close()

	packet, err := client.Get([]string{
		oids.HrPrinterDetectedErrorState,
		oids.HrPrinterStatus,
		oids.PrtAlertDescription,
		oids.PrtMarkerLifeCount,
	})
	if err != nil {
		return nil, fmt.Errorf("snmp get %s: %w", address, err)
	}

	report := &Report{
		ErrorFlags:  []string{},
		TonerLevels: map[string]int{},
		PaperLevel:  -1,
		ProbedAt:    time.Now(),
	}

	var hrStatus int
	for _, pdu := range packet.Variables {
		name := strings.TrimPrefix(pdu.Name, ".")
		switch name {
		case oids.HrPrinterDetectedErrorState:
			if b, ok := pdu.Value.([]byte); ok && len(b) > 0 {
				report.ErrorFlags = DecodeErrorBits(b[0])
			}
		case oids.HrPrinterStatus:
			if v, ok := toInt(pdu.Value); ok {
				hrStatus = v
			}
		case oids.PrtAlertDescription:
			if s, ok := toString(pdu.Value); ok {
				report.Alert = strings.TrimSpace(s)
			}
		case oids.PrtMarkerLifeCount:
			if v, ok := toInt(pdu.Value); ok {
				report.PageCount = v
			}
		}
	}

	report.Status = deriveStatus(report.ErrorFlags, hrStatus)

	// Supplies and paper are best effort. A device that answered the
	// error-state query but whose supply tables fail still gets a report.
	p.collectSupplies(client, report)
	p.collectPaper(client, report)

	return report, nil
}

// deriveStatus folds the error flags and hrPrinterStatus into a device
// status. Offline wins over maintenance conditions, which win over busy.
func deriveStatus(flags []string, hrStatus int) storage.DeviceStatus {
	set := map[string]bool{}
	for _, f := range flags {
		set[f] = true
	}
	switch {
	case set[FlagOffline]:
		return storage.DeviceOffline
	case set[FlagJammed], set[FlagNoPaper], set[FlagNoToner]:
		return storage.DeviceMaintenance
	case len(flags) > 0:
		return storage.DeviceBusy
	}
	// hrPrinterStatus: 3 = idle, 4 = printing, 5 = warmup.
	if hrStatus == 4 || hrStatus == 5 {
		return storage.DeviceBusy
	}
	return storage.DeviceOnline
}

// collectSupplies walks the prtMarkerSupplies table and fills toner
// percentages keyed by supply description.
func (p *Prober) collectSupplies(client SNMPClient, report *Report) {
	descs := map[string]string{}
	levels := map[string]int{}
	maxes := map[string]int{}

	walk := func(root string, fn func(idx string, pdu gosnmp.SnmpPDU)) {
		_ = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
			name := strings.TrimPrefix(pdu.Name, ".")
			idx := strings.TrimPrefix(name, root+".")
			fn(idx, pdu)
			return nil
		})
	}

	walk(oids.PrtMarkerSuppliesDesc, func(idx string, pdu gosnmp.SnmpPDU) {
		if s, ok := toString(pdu.Value); ok {
			descs[idx] = strings.TrimSpace(s)
		}
	})
	walk(oids.PrtMarkerSuppliesLevel, func(idx string, pdu gosnmp.SnmpPDU) {
		if v, ok := toInt(pdu.Value); ok {
			levels[idx] = v
		}
	})
	walk(oids.PrtMarkerSuppliesMaxCap, func(idx string, pdu gosnmp.SnmpPDU) {
		if v, ok := toInt(pdu.Value); ok {
			maxes[idx] = v
		}
	})

	for idx, desc := range descs {
		level, ok := levels[idx]
		if !ok || desc == "" {
			continue
		}
		// Printer-MIB sentinels: -3 means "some remaining", -2 unknown.
		if level < 0 {
			continue
		}
		if max := maxes[idx]; max > 0 {
			report.TonerLevels[desc] = level * 100 / max
		} else {
			report.TonerLevels[desc] = level
		}
	}
}

// collectPaper walks the input tray table and reports the best-stocked
// tray as the paper level percentage.
func (p *Prober) collectPaper(client SNMPClient, report *Report) {
	levels := map[string]int{}
	maxes := map[string]int{}

	_ = client.Walk(oids.PrtInputCurrentLevel, func(pdu gosnmp.SnmpPDU) error {
		idx := strings.TrimPrefix(strings.TrimPrefix(pdu.Name, "."), oids.PrtInputCurrentLevel+".")
		if v, ok := toInt(pdu.Value); ok {
			levels[idx] = v
		}
		return nil
	})
	_ = client.Walk(oids.PrtInputMaxCapacity, func(pdu gosnmp.SnmpPDU) error {
		idx := strings.TrimPrefix(strings.TrimPrefix(pdu.Name, "."), oids.PrtInputMaxCapacity+".")
		if v, ok := toInt(pdu.Value); ok {
			maxes[idx] = v
		}
		return nil
	})

	best := -1
	idxs := make([]string, 0, len(levels))
	for idx := range levels {
		idxs = append(idxs, idx)
	}
	sort.Strings(idxs)
	for _, idx := range idxs {
		level := levels[idx]
		if level < 0 {
			continue
		}
		pct := level
		if max := maxes[idx]; max > 0 {
			pct = level * 100 / max
		}
		if pct > best {
			best = pct
		}
	}
	if best >= 0 {
		report.PaperLevel = best
	}
}
