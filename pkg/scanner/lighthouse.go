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

	"github.com/varcolabs/varco/pkg/scan"
)

// Lighthouse drives the Lighthouse CLI as a subprocess, restricted to its
// accessibility category.
type Lighthouse struct {
	spec subprocessSpec
}

// NewLighthouse returns the Lighthouse adapter.
func NewLighthouse() *Lighthouse {
	return &Lighthouse{
		spec: subprocessSpec{
			kind: scan.Lighthouse,
			args: func(page scan.PageRef, cfg Config) []string {
				return []string{
					page.URL,
					"--output=json",
					"--output-path=stdout",
					"--only-categories=accessibility",
					"--quiet",
					"--chrome-flags=--headless",
				}
			},
			// Chrome launch and navigation failures surface as exit 1.
			transientExits: map[int]bool{1: true},
		},
	}
}

// Kind implements Interface.
func (l *Lighthouse) Kind() scan.ScannerKind { return scan.Lighthouse }

// Scan implements Interface.
func (l *Lighthouse) Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput {
	return subprocessScan(ctx, l.spec, page, cfg)
}
