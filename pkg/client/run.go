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

// StartScan validates the request, applies the engine-wide local-target
// policy and launches the scan. Denied admission surfaces the registry's
// error untouched so callers can tell it apart from validation failures.
func (c *VarcoClient) StartScan(cfg *StartScanConfig) (*scan.Status, error) {
	if cfg == nil {
		return nil, errors.New("nil StartScanConfig provided")
	}
	if c.cfg.AllowLocalTargets {
		cfg.Request.AllowLocal = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	id, err := c.engine.Launch(cfg.Request)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"scan": id,
		"url":  cfg.Request.URL,
		"mode": cfg.Request.Mode,
	}).Info("scan launched")
	return c.reg.Get(id)
}
