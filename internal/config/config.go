// Package config loads a site's configuration from a YAML file laid
// over Defaults(). There is no command-line override of individual
// fields; cmd/site's only flag names the file. Grounded on the
// teacher's flag-based cmd/server/main.go configuration; the YAML
// layer is added because a two-site, multi-port, multi-timeout
// configuration outgrows bare flags, and gopkg.in/yaml.v3 is already a
// transitive dependency of the teacher's stack.
package config

import (
	"fmt"
	"os"
	"time"

	"library-network/internal/topology"

	"gopkg.in/yaml.v3"
)

// Site is the full configuration for one cmd/site process.
type Site struct {
	Topology topology.Topology `yaml:"topology"`
	DataDir  string            `yaml:"dataDir"`

	// Timeouts, per spec.md §5.
	ClientTimeout   time.Duration `yaml:"clientTimeout"`   // LG<->LA, LA<->SE, EA<->SE (the CP has its own --timeout)
	HeartbeatPeriod time.Duration `yaml:"heartbeatPeriod"` // SE heartbeat emission interval
	LivenessTimeout time.Duration `yaml:"livenessTimeout"` // dead-peer timer
	RetrySleep      time.Duration `yaml:"retrySleep"`      // EA lazy-retry sleep
}

// Defaults matches the timing constants spec.md §5 pins down.
func Defaults() Site {
	return Site{
		DataDir:         "./data",
		ClientTimeout:   3 * time.Second,
		HeartbeatPeriod: time.Second,
		LivenessTimeout: 5 * time.Second,
		RetrySleep:      2 * time.Second,
	}
}

// Load reads a YAML file at path into Defaults(), so a config file only
// needs to specify the fields it wants to override.
func Load(path string) (Site, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Site{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}
