package oids

// This package centralizes the SNMP OIDs the health probes query. The
// constants mirror the structure documented in the Host Resources and
// Printer MIBs so callers can avoid scattering raw dotted strings.

const (
	// --- Host Resources MIB (RFC 2790) ---

	// SysDescr reports a human-readable system description string.
	SysDescr = "1.3.6.1.2.1.1.1.0"

	// Printer status/error indicators from the hrPrinter table.
	HrPrinterStatus             = "1.3.6.1.2.1.25.3.5.1.1.1"
	HrPrinterDetectedErrorState = "1.3.6.1.2.1.25.3.5.1.2.1"
)

const (
	// --- Printer MIB (RFC 3805) ---

	// PrtGeneralSerialNumber (prtGeneralSerialNumber.1) is the canonical serial.
	PrtGeneralSerialNumber = "1.3.6.1.2.1.43.5.1.1.17.1"
	// PrtMarkerLifeCount targets prtMarkerLifeCount.1 and is commonly treated as the page counter.
	PrtMarkerLifeCount = "1.3.6.1.2.1.43.10.2.1.4.1.1"

	// PrtAlertDescription holds the free-text description of the most
	// recent device alert (prtAlertDescription, first table row).
	PrtAlertDescription = "1.3.6.1.2.1.43.18.1.1.8.1.1"

	// Supply table columns (Printer-MIB::prtMarkerSupplies).
	PrtMarkerSuppliesDesc   = "1.3.6.1.2.1.43.11.1.1.6"
	PrtMarkerSuppliesLevel  = "1.3.6.1.2.1.43.11.1.1.9"
	PrtMarkerSuppliesMaxCap = "1.3.6.1.2.1.43.11.1.1.8"

	// Input tray columns (Printer-MIB::prtInputEntry), used for paper level.
	PrtInputCurrentLevel = "1.3.6.1.2.1.43.8.2.1.10"
	PrtInputMaxCapacity  = "1.3.6.1.2.1.43.8.2.1.9"
)
