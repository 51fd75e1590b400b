// Package source provides repositories that fetch rucio.cfg data from a
// backend and keep the last good snapshot in memory: local files, HTTP
// endpoints, git repositories, S3 and GCS buckets.
package source

import (
	"github.com/Thysk/rucio/config"
)

// Repository is a source of rucio.cfg configuration data. Refresh fetches and
// parses the backend's current content; the getters serve the snapshot taken
// by the last successful refresh, so a flaky backend degrades to stale data
// instead of errors.
type Repository interface {
	// Refresh fetches the configuration from the backend and replaces the
	// in-memory snapshot. The previous snapshot survives a failed refresh.
	Refresh() error

	// GetName returns the name of the configuration source.
	GetName() string

	// GetData returns the effective value of section.key from the snapshot,
	// with environment overrides and $VAR expansion applied.
	GetData(section, key string) (value string, isPresent bool)

	// GetRawData returns the raw rucio.cfg bytes of the snapshot.
	GetRawData() []byte

	// Config returns the parsed snapshot, or nil before the first
	// successful refresh.
	Config() *config.Config
}
