// Package env reads the handful of process variables set by the hosting
// platform rather than by DANTE_* configuration.
package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// ListenAddr prefers the platform-assigned PORT over the configured one.
func ListenAddr(configuredPort string) string {
	port := strings.TrimPrefix(Get("PORT", configuredPort), ":")
	return ":" + port
}

// Instance names this process in logs: the dyno name when running on a
// platform that sets one, otherwise the hostname.
func Instance() string {
	if dyno := Get("DYNO", ""); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
