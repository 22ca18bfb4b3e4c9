package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValidationError is malformed caller input, detected before any process is spawned
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// deviceIDPattern accepts:
// - USB serials such as "1234567890ABCDEF", "emulator-5554"
// - network devices such as "192.168.1.100:5555"
// - mDNS names such as "adb-xxxxx._adb-tls-connect._tcp."
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// packagePattern is the Java package name alphabet
var packagePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// ValidateDeviceID rejects ids that could not have come from a device listing
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return &ValidationError{Field: "device ID", Value: deviceID, Reason: "cannot be empty"}
	}
	if len(deviceID) > 256 {
		return &ValidationError{Field: "device ID", Value: deviceID[:32] + "...", Reason: "too long (max 256 characters)"}
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return &ValidationError{Field: "device ID", Value: deviceID, Reason: "contains illegal characters"}
	}
	return nil
}

// ValidatePackageName checks an application id before uninstall
func ValidatePackageName(name string) error {
	if name == "" {
		return &ValidationError{Field: "package name", Value: name, Reason: "cannot be empty"}
	}
	if !packagePattern.MatchString(name) {
		return &ValidationError{Field: "package name", Value: name, Reason: "contains illegal characters"}
	}
	return nil
}

// ValidateAddress requires exactly one "host:port" pair
func ValidateAddress(address string) error {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return &ValidationError{Field: "device address", Value: address, Reason: "expected format host:port"}
	}
	host, port := parts[0], parts[1]
	if strings.TrimSpace(host) == "" || strings.ContainsAny(host, " \t") {
		return &ValidationError{Field: "device address", Value: address, Reason: "host is missing"}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return &ValidationError{Field: "device address", Value: address, Reason: "port must be a number between 1 and 65535"}
	}
	return nil
}
