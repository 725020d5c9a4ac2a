// Package logger records diagnostic reports to JSONL files organized by
// site and tab.
package logger

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UnknownSite is the default site name for unknown or invalid URLs.
const UnknownSite = "unknown"

// NewSessionID returns a fresh identifier for one inspection session.
func NewSessionID() string {
	return uuid.New().String()
}

// TabLabel derives a short, stable directory name from a CDP target ID.
func TabLabel(targetID string) string {
	if targetID == "" {
		return "tab-unknown"
	}
	if len(targetID) > 8 {
		targetID = targetID[:8]
	}
	return "tab-" + strings.ToLower(targetID)
}

// SanitizeSiteName converts a URL hostname into a safe directory name.
func SanitizeSiteName(hostname string) string {
	if hostname == "" {
		return UnknownSite
	}

	// Handle localhost with port
	if strings.Contains(hostname, ":") {
		parts := strings.SplitN(hostname, ":", 2)
		host := parts[0]
		port := parts[1]

		// Include port in directory name for localhost
		if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" {
			hostname = host + "_" + port
		} else {
			hostname = host
		}
	}

	// Replace invalid filesystem characters
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	result := replacer.Replace(hostname)

	// Truncate to 255 characters (filesystem limit)
	if len(result) > 255 {
		result = result[:255]
	}

	return result
}

// ExtractSite extracts and sanitizes the site name from a URL.
func ExtractSite(urlStr string) string {
	if urlStr == "" {
		return UnknownSite
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return UnknownSite
	}

	hostname := u.Hostname()
	if hostname == "" {
		// Inline documents carry their whole payload in the opaque part
		if u.Scheme == "data" {
			return "data"
		}
		// Handle special URLs like about:blank, chrome://
		if u.Scheme != "" {
			return SanitizeSiteName(u.Scheme + "_" + u.Opaque)
		}
		return UnknownSite
	}

	port := u.Port()

	// Include port for localhost
	if port != "" && (hostname == "localhost" || hostname == "127.0.0.1" || hostname == "0.0.0.0") {
		return SanitizeSiteName(hostname + ":" + port)
	}

	return SanitizeSiteName(hostname)
}

// GetReportPath returns the full path to the report file for a given site and tab.
func GetReportPath(baseDir, site, tabID string) string {
	return filepath.Join(baseDir, site, tabID, "reports.jsonl")
}
