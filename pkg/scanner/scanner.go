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

// Package scanner drives the external accessibility scanners. Each
// supported scanner is one adapter behind a small common interface: it
// takes a page, enforces its own deadline, honors cancellation and returns
// either an opaque JSON payload or a typed failure. Nothing in here
// interprets the payload; that is the normalizer's job.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/features"
	"github.com/varcolabs/varco/pkg/scan"
)

// Interface is the adapter contract. Scan blocks until the run finishes,
// fails or the context is cancelled; it never panics and never returns
// both payload and failure.
type Interface interface {
	Kind() scan.ScannerKind
	Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput
}

// Config is the per-run adapter configuration assembled by the engine.
type Config struct {
	// TimeoutMs is the adapter's hard deadline for one run.
	TimeoutMs int

	// MaxRetries bounds retries of retryable failures.
	MaxRetries int

	// APIKey authenticates against remote scanners (WAVE).
	APIKey string

	// Endpoint overrides the remote scanner's URL; empty selects the
	// production endpoint.
	Endpoint string

	// BinaryPath locates a subprocess scanner; ExtraArgs are appended to
	// the generated command line.
	BinaryPath string
	ExtraArgs  []string

	// OutputDir, when set, receives a best-effort copy of the raw payload
	// under raw/ for debugging.
	OutputDir string

	// Progress, when non-nil, receives coarse phase percentages.
	Progress func(percent int)
}

// Timeout returns the run deadline as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// reportProgress invokes the optional progress callback.
func (c Config) reportProgress(percent int) {
	if c.Progress != nil {
		c.Progress(percent)
	}
}

// New returns the adapter for the kind. Simulate mode swaps in the
// deterministic fixture adapter regardless of kind.
func New(kind scan.ScannerKind, mode scan.Mode) (Interface, error) {
	if mode == scan.ModeSimulate {
		return NewSimulated(kind), nil
	}
	switch kind {
	case scan.Wave:
		return NewWave(), nil
	case scan.Pa11y:
		return NewPa11y(), nil
	case scan.Axe:
		return NewAxe(), nil
	case scan.Lighthouse:
		return NewLighthouse(), nil
	}
	return nil, errors.Errorf("unknown scanner kind %q", kind)
}

// ConfigFor assembles the per-run adapter config from the engine config
// and the request.
func ConfigFor(kind scan.ScannerKind, cfg *config.Config, req scan.Request, outputDir string) Config {
	tool := cfg.ToolFor(kind)
	return Config{
		TimeoutMs:  req.TimeoutMs,
		MaxRetries: cfg.MaxRetries,
		APIKey:     cfg.WaveAPIKey,
		Endpoint:   cfg.WaveEndpoint,
		BinaryPath: tool.Path,
		ExtraArgs:  tool.ExtraArgs,
		OutputDir:  outputDir,
	}
}

// writeRawArtifact mirrors a successful run's payload into the scan
// directory for debugging. Best-effort: failures are logged and swallowed,
// and the whole thing is gated by the RawArtifacts feature.
func writeRawArtifact(cfg Config, kind scan.ScannerKind, page scan.PageRef, payload []byte) {
	if cfg.OutputDir == "" || !features.Enabled(features.RawArtifacts) {
		return
	}
	dir := filepath.Join(cfg.OutputDir, "raw")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.WithError(err).Info("could not create raw artifact dir")
		return
	}
	name := scan.PageSlug(page.URL) + "-" + string(kind) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), payload, 0644); err != nil {
		logrus.WithError(err).WithField("file", name).Info("could not write raw artifact")
	}
}
