// Package parser turns raw adb output into typed records. Every function is
// pure; lines that match no known shape are skipped, never reported.
package parser

import (
	"sort"
	"strings"

	"Tether/pkg/types"
)

const (
	devicesBanner  = "List of devices attached"
	daemonPrefix   = "* "
	packagePrefix  = "package:"
	modelPrefix    = "model:"
	productPrefix  = "product:"
	versionPrefix  = "Android Debug Bridge version "
	revisionPrefix = "Version "
	installedAs    = "Installed as "
)

// ParseDevices parses the output of "adb devices -l". Order follows the
// listing; duplicates are kept.
func ParseDevices(output string) []types.Device {
	devices := make([]types.Device, 0)
	for _, line := range strings.Split(output, "\n") {
		if d, ok := ParseDeviceLine(line); ok {
			devices = append(devices, d)
		}
	}
	return devices
}

// ParseDeviceLine parses a single listing line.
//
// The plain format "ID\tSTATUS" is tried first and never carries model or
// product. Otherwise the line is split on whitespace and "model:" /
// "product:" tokens after the status are picked up.
func ParseDeviceLine(line string) (types.Device, bool) {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.Contains(trimmed, devicesBanner) || strings.HasPrefix(trimmed, daemonPrefix) {
		return types.Device{}, false
	}

	if fields := strings.Split(line, "\t"); len(fields) >= 2 {
		id := strings.TrimSpace(fields[0])
		status := strings.TrimSpace(fields[1])
		if id != "" && status != "" {
			return types.Device{ID: id, Status: status}, true
		}
	}

	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return types.Device{}, false
	}

	d := types.Device{ID: tokens[0], Status: tokens[1]}
	for _, tok := range tokens[2:] {
		switch {
		case strings.HasPrefix(tok, modelPrefix):
			d.Model = strings.TrimPrefix(tok, modelPrefix)
		case strings.HasPrefix(tok, productPrefix):
			d.Product = strings.TrimPrefix(tok, productPrefix)
		}
	}
	return d, true
}

// ParsePackages parses "pm list packages" output into a sorted list of
// package names. Duplicates are preserved.
func ParsePackages(output string) []string {
	packages := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, packagePrefix))
		if name == "" {
			continue
		}
		packages = append(packages, name)
	}
	sort.Strings(packages)
	return packages
}

// ParseProperty parses "getprop <name>" output. An empty value is absent.
func ParseProperty(output string) (string, bool) {
	v := strings.TrimSpace(output)
	return v, v != ""
}

// Version is the parsed "adb version" banner
type Version struct {
	Release     string `json:"release"`               // e.g. 1.0.41
	Revision    string `json:"revision,omitempty"`    // e.g. 35.0.2-12147458
	InstalledAt string `json:"installedAt,omitempty"` // server-reported executable path
	Raw         string `json:"raw"`
}

// ParseVersion parses "adb version" output. ok is false when the banner line
// is missing, which means the executable is not adb.
func ParseVersion(output string) (Version, bool) {
	v := Version{Raw: strings.TrimSpace(output)}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, versionPrefix):
			v.Release = strings.TrimSpace(strings.TrimPrefix(line, versionPrefix))
		case strings.HasPrefix(line, revisionPrefix):
			v.Revision = strings.TrimSpace(strings.TrimPrefix(line, revisionPrefix))
		case strings.HasPrefix(line, installedAs):
			v.InstalledAt = strings.TrimSpace(strings.TrimPrefix(line, installedAs))
		}
	}
	return v, v.Release != ""
}
