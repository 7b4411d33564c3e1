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

// Axe drives the axe-core CLI as a subprocess.
type Axe struct {
	spec subprocessSpec
}

// NewAxe returns the axe adapter.
func NewAxe() *Axe {
	return &Axe{
		spec: subprocessSpec{
			kind: scan.Axe,
			args: func(page scan.PageRef, cfg Config) []string {
				return []string{
					page.URL,
					"--stdout",
					"--timeout", strconv.Itoa(cfg.TimeoutMs / 1000),
				}
			},
			transientExits: map[int]bool{1: true},
		},
	}
}

// Kind implements Interface.
func (a *Axe) Kind() scan.ScannerKind { return scan.Axe }

// Scan implements Interface.
func (a *Axe) Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput {
	return subprocessScan(ctx, a.spec, page, cfg)
}
