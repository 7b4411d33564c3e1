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
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/scan"
)

// CancelScan requests cooperative cancellation. When it returns without
// error no further scanner run will be dispatched for the scan; the
// cancelled state lands asynchronously once in-flight runs wind down.
func (c *VarcoClient) CancelScan(cfg *CancelScanConfig) (*scan.Status, error) {
	if cfg == nil {
		return nil, errors.New("nil CancelScanConfig provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	status, err := c.engine.Cancel(cfg.ID)
	if err != nil {
		return nil, err
	}
	logrus.WithField("scan", cfg.ID).Info("cancellation requested")
	return status, nil
}
