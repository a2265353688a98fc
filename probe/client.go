package probe

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMPConfig holds the community and protocol version used for device
// queries. Printers almost universally speak v2c with a public community.
type SNMPConfig struct {
	Community string
	Version   gosnmp.SnmpVersion
}

// DefaultSNMPConfig returns the config used when nothing is set.
func DefaultSNMPConfig() *SNMPConfig {
	return &SNMPConfig{Community: "public", Version: gosnmp.Version2c}
}

// SNMPClient abstracts gosnmp for easier testing/mocking.
type SNMPClient interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(root string, walkFn gosnmp.WalkFunc) error
	Close() error
}

// NewSNMPClient is a factory used by production code; tests can replace
// this variable to inject mock clients.
var NewSNMPClient = func(cfg *SNMPConfig, target string, timeout time.Duration) (SNMPClient, error) {
	if target == "" {
		return nil, fmt.Errorf("snmp: empty target")
	}
	if cfg == nil {
		cfg = DefaultSNMPConfig()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	snmp := &gosnmp.GoSNMP{
		Target:    target,
		Port:      161,
		Community: cfg.Community,
		Version:   cfg.Version,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := snmp.Connect(); err != nil {
		return nil, err
	}
	return &gosnmpWrapper{snmp: snmp}, nil
}

// gosnmpWrapper implements SNMPClient by delegating to gosnmp.GoSNMP.
type gosnmpWrapper struct {
	snmp *gosnmp.GoSNMP
}

func (w *gosnmpWrapper) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return w.snmp.Get(oids)
}

func (w *gosnmpWrapper) Walk(root string, walkFn gosnmp.WalkFunc) error {
	return w.snmp.Walk(root, walkFn)
}

func (w *gosnmpWrapper) Close() error {
	if w.snmp != nil && w.snmp.Conn != nil {
		_ = w.snmp.Conn.Close()
	}
	return nil
}

// toInt converts an SNMP PDU value to int, handling the integer types
// gosnmp actually returns.
func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case uint:
		return int(val), true
	case uint64:
		return int(val), true
	case uint32:
		return int(val), true
	default:
		return 0, false
	}
}

// toString converts an SNMP PDU value to string.
func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return "", false
	}
}
