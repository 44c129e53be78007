// pkg/logging/helpers.go - event helpers for install, uninstall, download, mirror and cache activity

package logging

import (
	"fmt"
	"time"
)

// EventOption decorates an event with extra key/value pairs.
type EventOption func(kv []interface{}) []interface{}

// WithPackage tags an event with a package identifier and version.
func WithPackage(identifier, version string) EventOption {
	return func(kv []interface{}) []interface{} {
		kv = append(kv, "package", identifier)
		if version != "" {
			kv = append(kv, "version", version)
		}
		return kv
	}
}

// WithDuration tags an event with an elapsed time.
func WithDuration(d time.Duration) EventOption {
	return func(kv []interface{}) []interface{} {
		return append(kv, "duration", d.Round(time.Millisecond).String())
	}
}

// WithError tags an event with an error.
func WithError(err error) EventOption {
	return func(kv []interface{}) []interface{} {
		if err == nil {
			return kv
		}
		return append(kv, "error", err.Error())
	}
}

// WithContext adds an arbitrary key/value pair.
func WithContext(key string, value interface{}) EventOption {
	return func(kv []interface{}) []interface{} {
		return append(kv, key, value)
	}
}

// LogEvent logs a categorized event; failed events go out at ERROR level.
func LogEvent(category, action, status, message string, opts ...EventOption) {
	kv := []interface{}{"event", category, "action", action, "status", status}
	for _, opt := range opts {
		kv = opt(kv)
	}
	switch status {
	case "failed":
		Error(message, kv...)
	case "progress", "skipped":
		Debug(message, kv...)
	default:
		Info(message, kv...)
	}
}

// LogInstallStart logs the start of a package installation
func LogInstallStart(identifier, version string) {
	LogEvent("install", "start", "started",
		fmt.Sprintf("Starting installation of %s %s", identifier, version),
		WithPackage(identifier, version))
}

// LogInstallComplete logs successful completion of installation
func LogInstallComplete(identifier, version string, duration time.Duration) {
	LogEvent("install", "complete", "completed",
		fmt.Sprintf("Successfully installed %s %s", identifier, version),
		WithPackage(identifier, version),
		WithDuration(duration))
}

// LogInstallFailed logs failed installation
func LogInstallFailed(identifier, version string, err error) {
	LogEvent("install", "complete", "failed",
		fmt.Sprintf("Failed to install %s %s", identifier, version),
		WithPackage(identifier, version),
		WithError(err))
}

// LogUninstallStart logs the start of a package uninstallation
func LogUninstallStart(identifier, version string) {
	LogEvent("uninstall", "start", "started",
		fmt.Sprintf("Starting uninstallation of %s %s", identifier, version),
		WithPackage(identifier, version))
}

// LogUninstallComplete logs successful completion of uninstallation
func LogUninstallComplete(identifier, version string, duration time.Duration) {
	LogEvent("uninstall", "complete", "completed",
		fmt.Sprintf("Successfully uninstalled %s %s", identifier, version),
		WithPackage(identifier, version),
		WithDuration(duration))
}

// LogUninstallFailed logs failed uninstallation
func LogUninstallFailed(identifier, version string, err error) {
	LogEvent("uninstall", "complete", "failed",
		fmt.Sprintf("Failed to uninstall %s %s", identifier, version),
		WithPackage(identifier, version),
		WithError(err))
}

// LogDownloadStart logs the start of a download
func LogDownloadStart(url, dest string) {
	LogEvent("download", "start", "started", "Starting download",
		WithContext("url", url),
		WithContext("destination", dest))
}

// LogDownloadComplete logs successful completion of download
func LogDownloadComplete(url, filePath string, size int64, duration time.Duration) {
	LogEvent("download", "complete", "completed",
		fmt.Sprintf("Downloaded %s (%d bytes)", filePath, size),
		WithContext("url", url),
		WithDuration(duration))
}

// LogDownloadFailed logs failed download
func LogDownloadFailed(url string, err error) {
	LogEvent("download", "complete", "failed", "Download failed",
		WithContext("url", url),
		WithError(err))
}

// LogMirrorEvent logs repository mirror activity
func LogMirrorEvent(action, status, message string, opts ...EventOption) {
	LogEvent("mirror", action, status, message, opts...)
}

// LogCacheEvent logs index cache activity
func LogCacheEvent(action, status, message string, opts ...EventOption) {
	LogEvent("cache", action, status, message, opts...)
}
