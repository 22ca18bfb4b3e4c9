package types

import (
	"strings"
	"time"
)

// StatusDevice is the state adb reports for a connected, authorized device
const StatusDevice = "device"

// Device represents an Android device as reported by "adb devices -l"
type Device struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Model   string `json:"model"`
	Product string `json:"product"`
}

// IsNetwork reports whether the device is attached over TCP (host:port id)
func (d Device) IsNetwork() bool {
	return strings.Contains(d.ID, ":")
}

// IsReady reports whether the device accepts shell queries
func (d Device) IsReady() bool {
	return d.Status == StatusDevice
}

// NotificationLevel classifies a user-facing alert
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// Notification is a user-facing alert (title + body)
type Notification struct {
	ID      string            `json:"id"`
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
}

// EventType names a state change published to observers
type EventType string

const (
	EventDevicesChanged EventType = "devices-changed"
	EventLoadingChanged EventType = "loading-changed"
	EventAppsChanged    EventType = "apps-changed"
	EventNotification   EventType = "notification"
)

// Event is delivered to session subscribers. Only the field matching Type is set.
type Event struct {
	Type         EventType     `json:"type"`
	Devices      []Device      `json:"devices,omitempty"`
	Loading      bool          `json:"loading,omitempty"`
	Apps         []string      `json:"apps,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}
