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

	"github.com/varcolabs/varco/pkg/events"
	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// Subscribe follows a scan's event stream. Retained history with seq
// greater than SinceSeq is replayed first, then live events until the scan
// finishes or ctx is cancelled.
func (c *VarcoClient) Subscribe(ctx context.Context, cfg *SubscribeConfig) (*events.Subscription, error) {
	if cfg == nil {
		return nil, errors.New("nil SubscribeConfig provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	// Unknown ids create an empty stream on the bus; require the scan to
	// exist so callers get a clean not-found instead of a silent stall.
	if _, err := c.reg.Get(cfg.ID); err != nil {
		return nil, err
	}
	return c.bus.Subscribe(ctx, cfg.ID, cfg.SinceSeq)
}

// WaitForScan polls the scan's status until it reaches a terminal state or
// ctx expires, returning the final snapshot.
func (c *VarcoClient) WaitForScan(ctx context.Context, cfg *WaitConfig) (*scan.Status, error) {
	if cfg == nil {
		return nil, errors.New("nil WaitConfig provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	for {
		status, err := c.reg.Get(cfg.ID)
		if err != nil {
			return nil, err
		}
		if status.State.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, errors.Wrap(ctx.Err(), "waiting for scan")
		case <-varcotime.After(cfg.Interval):
		}
	}
}
