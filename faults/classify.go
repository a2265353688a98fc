// Package faults classifies dispatch failures into a closed taxonomy and
// fans out the resulting notifications, audit records and device state
// changes.
package faults

import (
	"strings"
)

// Kind is the classified failure category.
type Kind string

const (
	CommunicationFailure Kind = "CommunicationFailure"
	FileAccessError      Kind = "FileAccessError"
	PrinterNotFound      Kind = "PrinterNotFound"
	HardwareError        Kind = "HardwareError"
	SettingsError        Kind = "SettingsError"
	UnknownError         Kind = "UnknownError"
)

// rule pairs a predicate with the kind it maps to. Rules are evaluated in
// order and the first match wins; messages often contain multiple keywords,
// so ordering is part of the contract.
type rule struct {
	match func(string) bool
	kind  Kind
}

func containsAny(keywords ...string) func(string) bool {
	return func(msg string) bool {
		for _, kw := range keywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
		return false
	}
}

func containsAll(keywords ...string) func(string) bool {
	return func(msg string) bool {
		for _, kw := range keywords {
			if !strings.Contains(msg, kw) {
				return false
			}
		}
		return true
	}
}

var rules = []rule{
	{containsAll("printer", "not found"), PrinterNotFound},
	{containsAny("communication", "unreachable", "offline"), CommunicationFailure},
	{containsAny("file", "path", "no such file", "enoent"), FileAccessError},
	{containsAny("paper", "toner", "jam"), HardwareError},
	{containsAny("duplex", "color", "setting"), SettingsError},
}

// Classify maps a free-text failure message to its Kind. Pure and
// deterministic: identical input always yields an identical result.
func Classify(message string) Kind {
	msg := strings.ToLower(message)
	for _, r := range rules {
		if r.match(msg) {
			return r.kind
		}
	}
	return UnknownError
}

// userMessages are the fixed, plain-language messages surfaced to the job
// owner for each classification.
var userMessages = map[Kind]string{
	CommunicationFailure: "Unable to communicate with printer. The device may be offline or unreachable.",
	FileAccessError:      "The print file could not be read. Please re-upload the document and try again.",
	PrinterNotFound:      "The selected printer could not be found. Please choose a different printer.",
	HardwareError:        "The printer reported a hardware problem (paper, toner or jam). Staff have been notified.",
	SettingsError:        "The requested print settings are not supported by this printer.",
	UnknownError:         "Printing failed due to an unexpected error. Please try again or contact support.",
}

// UserMessage returns the fixed user-facing message for a Kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[UnknownError]
}

// Critical reports whether a Kind warrants an urgent admin alert in
// addition to the user notification.
func Critical(kind Kind) bool {
	switch kind {
	case HardwareError, CommunicationFailure, PrinterNotFound:
		return true
	}
	return false
}
