/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the engine configuration: concurrency limits,
// retention windows, scanner tool locations and the HTTP bind address.
// Values come from defaults, an optional config file and VARCO_*
// environment variables, in that order.
package config

import (
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/scan"
)

const (
	// DefaultBindAddr is the default address for the API server to bind to.
	DefaultBindAddr = "0.0.0.0:8090"

	// DefaultResultsDir is where scan-scoped artifact directories are created.
	DefaultResultsDir = "./results"

	// DefaultMaxConcurrentScans is the registry admission limit.
	DefaultMaxConcurrentScans = 10

	// DefaultPerScanPageConcurrency keeps pages within one scan sequential
	// so the target host is not hammered.
	DefaultPerScanPageConcurrency = 1

	// DefaultDiscoveryConcurrency is the crawler's fetch worker count and
	// also its per-host connection cap.
	DefaultDiscoveryConcurrency = 5

	// DefaultDiscoveryFetchTimeoutSeconds bounds a single page fetch.
	DefaultDiscoveryFetchTimeoutSeconds = 10

	// DefaultDiscoveryPhaseTimeoutSeconds bounds the whole discovery phase;
	// partial results are used when it trips.
	DefaultDiscoveryPhaseTimeoutSeconds = 60

	// DefaultSubscriberQueueBound is how many undelivered events a slow
	// subscriber may accumulate before it is dropped with an overrun.
	DefaultSubscriberQueueBound = 100

	// DefaultEventHistorySize is how many events per scan the bus retains
	// for late subscribers.
	DefaultEventHistorySize = 500

	// DefaultEventRetentionMinutes is how long after a scan's stream closes
	// its history stays available.
	DefaultEventRetentionMinutes = 30

	// DefaultScanRetentionMinutes is how long terminal scans stay in the
	// registry before the sweeper removes them.
	DefaultScanRetentionMinutes = 60

	// DefaultSweepIntervalMinutes is how often the registry and bus
	// sweepers run.
	DefaultSweepIntervalMinutes = 5

	// DefaultCancelGraceSeconds is how long the orchestrator waits for
	// in-flight adapters after a cancel before abandoning them.
	DefaultCancelGraceSeconds = 5

	// DefaultMaxRetries is the per-adapter retry budget for retryable
	// failures.
	DefaultMaxRetries = 2

	// DefaultWaveEndpoint is the WAVE API request URL.
	DefaultWaveEndpoint = "https://wave.webaim.org/api/request"
)

// Default subprocess tool settings.
const (
	DefaultPa11yPath            = "pa11y"
	DefaultPa11yMinVersion      = "6.0.0"
	DefaultAxePath              = "axe"
	DefaultAxeMinVersion        = "4.0.0"
	DefaultLighthousePath       = "lighthouse"
	DefaultLighthouseMinVersion = "9.0.0"
)

// ToolConfig locates one subprocess scanner and its version floor.
type ToolConfig struct {
	Path       string   `json:"path" mapstructure:"path"`
	ExtraArgs  []string `json:"extra_args,omitempty" mapstructure:"extra_args"`
	MinVersion string   `json:"min_version" mapstructure:"min_version"`
}

// Config is the engine configuration.
//
// NOTE: viper uses "mapstructure" as the tag for config deserialization,
// *NOT* "json", so fields are annotated with both. The json tags shape
// `varco gen config` output.
type Config struct {
	BindAddr   string `json:"bind_addr" mapstructure:"bind_addr"`
	ResultsDir string `json:"results_dir" mapstructure:"results_dir"`

	MaxConcurrentScans        int `json:"max_concurrent_scans" mapstructure:"max_concurrent_scans"`
	PerScanPageConcurrency    int `json:"per_scan_page_concurrency" mapstructure:"per_scan_page_concurrency"`
	PerPageScannerConcurrency int `json:"per_page_scanner_concurrency" mapstructure:"per_page_scanner_concurrency"`
	DiscoveryConcurrency      int `json:"discovery_concurrency" mapstructure:"discovery_concurrency"`

	DiscoveryFetchTimeoutSeconds int `json:"discovery_fetch_timeout_seconds" mapstructure:"discovery_fetch_timeout_seconds"`
	DiscoveryPhaseTimeoutSeconds int `json:"discovery_phase_timeout_seconds" mapstructure:"discovery_phase_timeout_seconds"`

	SubscriberQueueBound  int `json:"subscriber_queue_bound" mapstructure:"subscriber_queue_bound"`
	EventHistorySize      int `json:"event_history_size" mapstructure:"event_history_size"`
	EventRetentionMinutes int `json:"event_retention_minutes" mapstructure:"event_retention_minutes"`
	ScanRetentionMinutes  int `json:"scan_retention_minutes" mapstructure:"scan_retention_minutes"`
	SweepIntervalMinutes  int `json:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`
	CancelGraceSeconds    int `json:"cancel_grace_seconds" mapstructure:"cancel_grace_seconds"`

	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	WaveEndpoint string `json:"wave_endpoint" mapstructure:"wave_endpoint"`
	// WaveAPIKey is deliberately excluded from JSON so it never lands in
	// the config.json artifact; it arrives via env or config file only.
	WaveAPIKey string `json:"-" mapstructure:"wave_api_key"`

	Pa11y      ToolConfig `json:"pa11y" mapstructure:"pa11y"`
	Axe        ToolConfig `json:"axe" mapstructure:"axe"`
	Lighthouse ToolConfig `json:"lighthouse" mapstructure:"lighthouse"`

	// AllowLocalTargets lifts the local-address request check globally;
	// individual requests can still opt in with allow_local.
	AllowLocalTargets bool `json:"allow_local_targets" mapstructure:"allow_local_targets"`
}

// New returns a Config with every default applied.
func New() *Config {
	return &Config{
		BindAddr:   DefaultBindAddr,
		ResultsDir: DefaultResultsDir,

		MaxConcurrentScans:     DefaultMaxConcurrentScans,
		PerScanPageConcurrency: DefaultPerScanPageConcurrency,
		DiscoveryConcurrency:   DefaultDiscoveryConcurrency,

		DiscoveryFetchTimeoutSeconds: DefaultDiscoveryFetchTimeoutSeconds,
		DiscoveryPhaseTimeoutSeconds: DefaultDiscoveryPhaseTimeoutSeconds,

		SubscriberQueueBound:  DefaultSubscriberQueueBound,
		EventHistorySize:      DefaultEventHistorySize,
		EventRetentionMinutes: DefaultEventRetentionMinutes,
		ScanRetentionMinutes:  DefaultScanRetentionMinutes,
		SweepIntervalMinutes:  DefaultSweepIntervalMinutes,
		CancelGraceSeconds:    DefaultCancelGraceSeconds,

		MaxRetries: DefaultMaxRetries,

		WaveEndpoint: DefaultWaveEndpoint,

		Pa11y:      ToolConfig{Path: DefaultPa11yPath, MinVersion: DefaultPa11yMinVersion},
		Axe:        ToolConfig{Path: DefaultAxePath, MinVersion: DefaultAxeMinVersion},
		Lighthouse: ToolConfig{Path: DefaultLighthousePath, MinVersion: DefaultLighthouseMinVersion},
	}
}

// Validate checks limits and clamps the page concurrency knob; call it once
// before handing the config to the engine.
func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return errors.New("bind_addr must not be empty")
	}
	if c.ResultsDir == "" {
		return errors.New("results_dir must not be empty")
	}
	if c.MaxConcurrentScans < 1 {
		return errors.Errorf("max_concurrent_scans must be >= 1, got %d", c.MaxConcurrentScans)
	}
	// Pages within a scan stay sequential until target-host rate limiting
	// exists; larger values are accepted but clamped.
	if c.PerScanPageConcurrency > 1 {
		c.PerScanPageConcurrency = 1
	}
	if c.PerScanPageConcurrency < 1 {
		return errors.Errorf("per_scan_page_concurrency must be >= 1, got %d", c.PerScanPageConcurrency)
	}
	if c.PerPageScannerConcurrency < 0 {
		return errors.Errorf("per_page_scanner_concurrency must be >= 0, got %d", c.PerPageScannerConcurrency)
	}
	if c.DiscoveryConcurrency < 1 {
		return errors.Errorf("discovery_concurrency must be >= 1, got %d", c.DiscoveryConcurrency)
	}
	if c.DiscoveryFetchTimeoutSeconds < 1 || c.DiscoveryPhaseTimeoutSeconds < 1 {
		return errors.New("discovery timeouts must be >= 1 second")
	}
	if c.SubscriberQueueBound < 1 {
		return errors.Errorf("subscriber_queue_bound must be >= 1, got %d", c.SubscriberQueueBound)
	}
	if c.EventHistorySize < 1 {
		return errors.Errorf("event_history_size must be >= 1, got %d", c.EventHistorySize)
	}
	if c.EventRetentionMinutes < 0 || c.ScanRetentionMinutes < 0 {
		return errors.New("retention windows must not be negative")
	}
	if c.SweepIntervalMinutes < 1 {
		return errors.Errorf("sweep_interval_minutes must be >= 1, got %d", c.SweepIntervalMinutes)
	}
	if c.CancelGraceSeconds < 0 {
		return errors.Errorf("cancel_grace_seconds must be >= 0, got %d", c.CancelGraceSeconds)
	}
	if c.MaxRetries < 0 {
		return errors.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if _, err := url.Parse(c.WaveEndpoint); err != nil {
		return errors.Wrap(err, "invalid wave_endpoint")
	}
	return nil
}

// ScannerConcurrency resolves the per-page fan-out width for a request:
// the configured value, or the number of enabled scanners when unset.
func (c *Config) ScannerConcurrency(enabled int) int {
	if c.PerPageScannerConcurrency > 0 {
		return c.PerPageScannerConcurrency
	}
	if enabled < 1 {
		return 1
	}
	return enabled
}

// ToolFor returns the subprocess tool settings for the kind; the zero value
// for kinds that are not subprocess tools.
func (c *Config) ToolFor(kind scan.ScannerKind) ToolConfig {
	switch kind {
	case scan.Pa11y:
		return c.Pa11y
	case scan.Axe:
		return c.Axe
	case scan.Lighthouse:
		return c.Lighthouse
	}
	return ToolConfig{}
}

func (c *Config) DiscoveryFetchTimeout() time.Duration {
	return time.Duration(c.DiscoveryFetchTimeoutSeconds) * time.Second
}

func (c *Config) DiscoveryPhaseTimeout() time.Duration {
	return time.Duration(c.DiscoveryPhaseTimeoutSeconds) * time.Second
}

func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionMinutes) * time.Minute
}

func (c *Config) ScanRetention() time.Duration {
	return time.Duration(c.ScanRetentionMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceSeconds) * time.Second
}
