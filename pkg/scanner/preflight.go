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

package scanner

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	version "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/scan"
)

// preflightTimeout bounds each --version probe.
const preflightTimeout = 10 * time.Second

// CheckResult is the preflight verdict for one scanner.
type CheckResult struct {
	Kind      scan.ScannerKind `json:"scanner"`
	Available bool             `json:"available"`
	Version   string           `json:"version,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// semverRe pulls the first dotted version out of whatever the tool prints;
// lighthouse and axe both wrap it in extra prose.
var semverRe = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// Preflight probes every kind in kinds and reports whether it is usable:
// binary present and at least the configured minimum version for the
// subprocess tools, API key present for WAVE. It never fails the whole
// batch; each scanner gets its own verdict.
func Preflight(ctx context.Context, cfg *config.Config, kinds []scan.ScannerKind) []CheckResult {
	results := make([]CheckResult, 0, len(kinds))
	for _, kind := range kinds {
		r := checkOne(ctx, cfg, kind)
		if r.Available {
			logrus.WithFields(logrus.Fields{"scanner": kind, "version": r.Version}).Info("preflight ok")
		} else {
			logrus.WithFields(logrus.Fields{"scanner": kind, "error": r.Error}).Warn("preflight failed")
		}
		results = append(results, r)
	}
	return results
}

func checkOne(ctx context.Context, cfg *config.Config, kind scan.ScannerKind) CheckResult {
	r := CheckResult{Kind: kind}

	if kind == scan.Wave {
		if cfg.WaveAPIKey == "" {
			r.Error = "WAVE API key not configured"
			return r
		}
		r.Available = true
		return r
	}

	tool := cfg.ToolFor(kind)
	if tool.Path == "" {
		r.Error = "no binary configured"
		return r
	}

	bin, err := exec.LookPath(tool.Path)
	if err != nil {
		r.Error = errors.Wrapf(err, "%v not found in PATH", tool.Path).Error()
		return r
	}

	v, err := probeVersion(ctx, bin)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Version = v.String()

	if tool.MinVersion != "" {
		min, err := version.NewVersion(tool.MinVersion)
		if err != nil {
			r.Error = errors.Wrapf(err, "invalid minimum version %q", tool.MinVersion).Error()
			return r
		}
		if v.LessThan(min) {
			r.Error = errors.Errorf("version %v is older than required %v", v, min).Error()
			return r
		}
	}

	r.Available = true
	return r
}

// probeVersion runs `<bin> --version` and parses the answer.
func probeVersion(ctx context.Context, bin string) (*version.Version, error) {
	runCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, bin, "--version").Output()
	if err != nil {
		return nil, errors.Wrapf(err, "running %v --version", bin)
	}

	raw := semverRe.FindString(strings.TrimSpace(string(out)))
	if raw == "" {
		return nil, errors.Errorf("could not parse version from %q", strings.TrimSpace(string(out)))
	}
	return version.NewVersion(raw)
}
