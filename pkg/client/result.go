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

package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/scanner"
)

// Result returns the finalized Result of a completed scan.
func (c *VarcoClient) Result(cfg *ResultConfig) (*scan.Result, error) {
	if cfg == nil {
		return nil, errors.New("nil ResultConfig provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return c.reg.Result(cfg.ID)
}

// Preflight probes the selected scanners for availability. An empty
// selection probes all of them.
func (c *VarcoClient) Preflight(cfg *PreflightConfig) []scanner.CheckResult {
	if cfg == nil {
		cfg = &PreflightConfig{}
	}
	kinds := cfg.Scanners.Enabled()
	if len(kinds) == 0 {
		kinds = scan.AllKinds()
	}
	return scanner.Preflight(context.Background(), c.cfg, kinds)
}
