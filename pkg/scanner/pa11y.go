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
	"strconv"

	"github.com/varcolabs/varco/pkg/scan"
)

// Pa11y drives the pa11y CLI as a subprocess.
type Pa11y struct {
	spec subprocessSpec
}

// NewPa11y returns the pa11y adapter.
func NewPa11y() *Pa11y {
	return &Pa11y{
		spec: subprocessSpec{
			kind: scan.Pa11y,
			args: func(page scan.PageRef, cfg Config) []string {
				return []string{
					"--reporter", "json",
					"--timeout", strconv.Itoa(cfg.TimeoutMs),
					page.URL,
				}
			},
			// pa11y exits 2 when it finds issues; that is a successful run.
			okExits: map[int]bool{2: true},
			// Exit 1 covers page-load and browser launch problems, which
			// tend to be transient.
			transientExits: map[int]bool{1: true},
		},
	}
}

// Kind implements Interface.
func (p *Pa11y) Kind() scan.ScannerKind { return scan.Pa11y }

// Scan implements Interface.
func (p *Pa11y) Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput {
	return subprocessScan(ctx, p.spec, page, cfg)
}
