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
	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/registry"
	"github.com/varcolabs/varco/pkg/scan"
)

// GetScan returns a snapshot of one scan's status.
func (c *VarcoClient) GetScan(cfg *GetScanConfig) (*scan.Status, error) {
	if cfg == nil {
		return nil, errors.New("nil GetScanConfig provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return c.reg.Get(cfg.ID)
}

// ListScans returns status snapshots, newest first, optionally filtered by
// state.
func (c *VarcoClient) ListScans(cfg *ListScansConfig) ([]*scan.Status, error) {
	if cfg == nil {
		cfg = &ListScansConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return c.reg.List(registry.Filter{States: cfg.States}), nil
}
