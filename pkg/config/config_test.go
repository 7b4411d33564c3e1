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

package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/scan"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.MaxConcurrentScans != 10 {
		t.Errorf("MaxConcurrentScans = %d, want 10", cfg.MaxConcurrentScans)
	}
	if cfg.EventRetention() != 30*time.Minute {
		t.Errorf("EventRetention() = %v, want 30m", cfg.EventRetention())
	}
	if cfg.ScanRetention() != time.Hour {
		t.Errorf("ScanRetention() = %v, want 1h", cfg.ScanRetention())
	}
	if cfg.CancelGrace() != 5*time.Second {
		t.Errorf("CancelGrace() = %v, want 5s", cfg.CancelGrace())
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "empty bind addr",
			mutate:  func(c *config.Config) { c.BindAddr = "" },
			wantErr: "bind_addr",
		}, {
			name:    "zero admission limit",
			mutate:  func(c *config.Config) { c.MaxConcurrentScans = 0 },
			wantErr: "max_concurrent_scans",
		}, {
			name:    "zero discovery workers",
			mutate:  func(c *config.Config) { c.DiscoveryConcurrency = 0 },
			wantErr: "discovery_concurrency",
		}, {
			name:    "zero queue bound",
			mutate:  func(c *config.Config) { c.SubscriberQueueBound = 0 },
			wantErr: "subscriber_queue_bound",
		}, {
			name:    "negative retries",
			mutate:  func(c *config.Config) { c.MaxRetries = -1 },
			wantErr: "max_retries",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateClampsPageConcurrency(t *testing.T) {
	cfg := config.New()
	cfg.PerScanPageConcurrency = 4
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PerScanPageConcurrency != 1 {
		t.Errorf("PerScanPageConcurrency = %d, want clamped to 1", cfg.PerScanPageConcurrency)
	}
}

func TestScannerConcurrency(t *testing.T) {
	cfg := config.New()
	if got := cfg.ScannerConcurrency(4); got != 4 {
		t.Errorf("unset knob with 4 enabled = %d, want 4", got)
	}
	if got := cfg.ScannerConcurrency(0); got != 1 {
		t.Errorf("unset knob with none enabled = %d, want 1", got)
	}
	cfg.PerPageScannerConcurrency = 2
	if got := cfg.ScannerConcurrency(4); got != 2 {
		t.Errorf("explicit knob = %d, want 2", got)
	}
}

func TestToolFor(t *testing.T) {
	cfg := config.New()
	if got := cfg.ToolFor(scan.Pa11y).Path; got != config.DefaultPa11yPath {
		t.Errorf("pa11y path = %q, want %q", got, config.DefaultPa11yPath)
	}
	if got := cfg.ToolFor(scan.Lighthouse).MinVersion; got != config.DefaultLighthouseMinVersion {
		t.Errorf("lighthouse min version = %q, want %q", got, config.DefaultLighthouseMinVersion)
	}
	if got := cfg.ToolFor(scan.Wave); got.Path != "" || got.MinVersion != "" {
		t.Errorf("wave is not a subprocess tool, got %+v", got)
	}
}
