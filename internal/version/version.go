// Package version holds the application version reported in diagnostics and
// compared against the update manifest.
package version

const Version = "1.2.1"
