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

package scan

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Mode selects how adapters run: against the real scanners or against
// deterministic canned fixtures.
type Mode string

const (
	ModeReal     Mode = "real"
	ModeSimulate Mode = "simulate"
)

// Request bounds for per-scanner timeouts, in milliseconds.
const (
	MinTimeoutMs = 1000
	MaxTimeoutMs = 600000
)

// Defaults applied by ApplyDefaults when the request leaves a field unset.
const (
	DefaultTimeoutMs = 30000
	DefaultMaxPages  = 5
	DefaultMaxDepth  = 2
)

// ScannerSelection carries the per-scanner enable flags of a request.
type ScannerSelection struct {
	Wave       bool `json:"wave"`
	Pa11y      bool `json:"pa11y"`
	Axe        bool `json:"axe"`
	Lighthouse bool `json:"lighthouse"`
}

// Enabled returns the enabled kinds in the fixed engine order.
func (s ScannerSelection) Enabled() []ScannerKind {
	var kinds []ScannerKind
	if s.Wave {
		kinds = append(kinds, Wave)
	}
	if s.Pa11y {
		kinds = append(kinds, Pa11y)
	}
	if s.Axe {
		kinds = append(kinds, Axe)
	}
	if s.Lighthouse {
		kinds = append(kinds, Lighthouse)
	}
	return kinds
}

// Count returns how many scanners are enabled.
func (s ScannerSelection) Count() int {
	return len(s.Enabled())
}

// Request is the immutable input of one scan. The boundary layer builds it,
// ApplyDefaults and Validate run once at admission, and nothing mutates it
// afterwards.
type Request struct {
	URL         string           `json:"url"`
	CompanyName string           `json:"company_name"`
	Email       string           `json:"email,omitempty"`
	Scanners    ScannerSelection `json:"scanners"`
	TimeoutMs   int              `json:"timeout_ms"`
	Mode        Mode             `json:"mode"`
	MaxPages    int              `json:"max_pages"`
	MaxDepth    int              `json:"max_depth"`

	// AllowLocal permits loopback/private targets; meant for development
	// against locally hosted sites.
	AllowLocal bool `json:"allow_local,omitempty"`
}

// ApplyDefaults fills unset fields. An empty scanner selection means "all";
// a scan with every scanner disabled is never what the caller wants.
func (r *Request) ApplyDefaults() {
	if r.Scanners.Count() == 0 {
		r.Scanners = ScannerSelection{Wave: true, Pa11y: true, Axe: true, Lighthouse: true}
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = DefaultTimeoutMs
	}
	if r.Mode == "" {
		r.Mode = ModeReal
	}
	if r.MaxPages == 0 {
		r.MaxPages = DefaultMaxPages
	}
	if r.MaxDepth == 0 {
		r.MaxDepth = DefaultMaxDepth
	}
}

// Validate checks the request and normalizes its URL in place. It is the
// single gate deciding whether a scan may be admitted.
func (r *Request) Validate() error {
	normalized, err := NormalizeURL(r.URL)
	if err != nil {
		return errors.Wrap(err, "invalid target url")
	}
	r.URL = normalized

	u, err := url.Parse(normalized)
	if err != nil {
		return errors.Wrap(err, "invalid target url")
	}
	// Simulate mode never touches the network, so local-looking hosts such
	// as simulate.local are fine there.
	if r.Mode != ModeSimulate && !r.AllowLocal && IsLocalAddress(u.Host) {
		return errors.Errorf("target host %q is a local address; set allow_local to scan it", u.Host)
	}

	if strings.TrimSpace(r.CompanyName) == "" {
		return errors.New("company_name must not be empty")
	}
	if r.TimeoutMs < MinTimeoutMs || r.TimeoutMs > MaxTimeoutMs {
		return errors.Errorf("timeout_ms %d outside [%d, %d]", r.TimeoutMs, MinTimeoutMs, MaxTimeoutMs)
	}
	if r.Mode != ModeReal && r.Mode != ModeSimulate {
		return errors.Errorf("unknown mode %q", r.Mode)
	}
	if r.MaxPages < 1 {
		return errors.Errorf("max_pages must be >= 1, got %d", r.MaxPages)
	}
	if r.MaxDepth < 1 {
		return errors.Errorf("max_depth must be >= 1, got %d", r.MaxDepth)
	}
	if r.Scanners.Count() == 0 {
		return errors.New("at least one scanner must be enabled")
	}
	return nil
}
