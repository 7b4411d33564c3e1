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

// Package client is the high-level entry point for driving scans. It owns
// the registry, the event bus and the engine; the CLI and the HTTP server
// both sit on top of its Interface and nothing else.
package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/engine"
	"github.com/varcolabs/varco/pkg/events"
	"github.com/varcolabs/varco/pkg/registry"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/scanner"
)

// StartScanConfig are the input options for starting a scan.
type StartScanConfig struct {
	Request scan.Request
}

// Validate applies request defaults and checks the config to determine if
// it is valid.
func (c *StartScanConfig) Validate() error {
	c.Request.ApplyDefaults()
	return c.Request.Validate()
}

// GetScanConfig are the input options for fetching one scan's status.
type GetScanConfig struct {
	ID string
}

// Validate checks the config to determine if it is valid.
func (c *GetScanConfig) Validate() error {
	if c.ID == "" {
		return errors.New("scan id cannot be empty")
	}
	return nil
}

// ListScansConfig are the input options for listing scans.
type ListScansConfig struct {
	// States filters the listing; empty means all.
	States []scan.State
}

// Validate checks the config to determine if it is valid.
func (c *ListScansConfig) Validate() error {
	for _, s := range c.States {
		switch s {
		case scan.StatePending, scan.StateRunning, scan.StateCompleted, scan.StateFailed, scan.StateCancelled:
		default:
			return errors.Errorf("unknown state %q", s)
		}
	}
	return nil
}

// CancelScanConfig are the input options for cancelling a scan.
type CancelScanConfig struct {
	ID string
}

// Validate checks the config to determine if it is valid.
func (c *CancelScanConfig) Validate() error {
	if c.ID == "" {
		return errors.New("scan id cannot be empty")
	}
	return nil
}

// SubscribeConfig are the input options for following a scan's events.
type SubscribeConfig struct {
	ID string
	// SinceSeq replays retained history with seq greater than this before
	// the live stream; 0 replays everything retained.
	SinceSeq int64
}

// Validate checks the config to determine if it is valid.
func (c *SubscribeConfig) Validate() error {
	if c.ID == "" {
		return errors.New("scan id cannot be empty")
	}
	if c.SinceSeq < 0 {
		return errors.Errorf("since_seq cannot be negative, got %d", c.SinceSeq)
	}
	return nil
}

// WaitConfig are the input options for blocking until a scan is done.
type WaitConfig struct {
	ID string
	// Interval is the status poll cadence; defaults to 100ms.
	Interval time.Duration
}

// Validate checks the config to determine if it is valid.
func (c *WaitConfig) Validate() error {
	if c.ID == "" {
		return errors.New("scan id cannot be empty")
	}
	if c.Interval == 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.Interval < 0 {
		return errors.Errorf("interval cannot be negative, got %v", c.Interval)
	}
	return nil
}

// ResultConfig are the input options for fetching a finished scan's result.
type ResultConfig struct {
	ID string
}

// Validate checks the config to determine if it is valid.
func (c *ResultConfig) Validate() error {
	if c.ID == "" {
		return errors.New("scan id cannot be empty")
	}
	return nil
}

// PreflightConfig are the options passed to Preflight.
type PreflightConfig struct {
	// Scanners selects which scanners to probe; empty means all.
	Scanners scan.ScannerSelection
}

// Validate checks the config to determine if it is valid.
func (c *PreflightConfig) Validate() error {
	return nil
}

// Interface is the main contract that we give to consumers of this library.
// The CLI and the HTTP server are both built on it, so anything they can do
// an embedding program can do too.
type Interface interface {
	// StartScan admits and launches a scan, returning its initial status.
	StartScan(cfg *StartScanConfig) (*scan.Status, error)
	// GetScan returns a snapshot of one scan's status.
	GetScan(cfg *GetScanConfig) (*scan.Status, error)
	// ListScans returns status snapshots, newest first.
	ListScans(cfg *ListScansConfig) ([]*scan.Status, error)
	// CancelScan requests cooperative cancellation.
	CancelScan(cfg *CancelScanConfig) (*scan.Status, error)
	// Subscribe follows a scan's event stream, replaying retained history.
	Subscribe(ctx context.Context, cfg *SubscribeConfig) (*events.Subscription, error)
	// WaitForScan blocks until the scan reaches a terminal state.
	WaitForScan(ctx context.Context, cfg *WaitConfig) (*scan.Status, error)
	// Result returns the finalized Result of a completed scan.
	Result(cfg *ResultConfig) (*scan.Result, error)
	// Preflight probes the configured scanners for availability.
	Preflight(cfg *PreflightConfig) []scanner.CheckResult
}

// VarcoClient is the in-process implementation of Interface.
type VarcoClient struct {
	cfg    *config.Config
	reg    *registry.Registry
	bus    *events.Bus
	engine *engine.Engine

	stopSweeper chan struct{}
}

// Make sure VarcoClient implements the interface.
var _ Interface = &VarcoClient{}

// NewVarcoClient validates the config and wires up registry, bus and
// engine. It also starts the retention sweeper; call Close when done.
func NewVarcoClient(cfg *config.Config) (*VarcoClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	reg := registry.New(cfg.MaxConcurrentScans)
	bus := events.NewBus(cfg.EventHistorySize, cfg.SubscriberQueueBound)
	c := &VarcoClient{
		cfg:         cfg,
		reg:         reg,
		bus:         bus,
		engine:      engine.New(cfg, reg, bus),
		stopSweeper: make(chan struct{}),
	}
	go c.sweep()
	return c, nil
}

// Close stops the retention sweeper. Running scans are not interrupted.
func (c *VarcoClient) Close() {
	close(c.stopSweeper)
}

// sweep periodically drops terminal scans and closed event streams past
// their retention windows.
func (c *VarcoClient) sweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweeper:
			return
		case <-ticker.C:
			scans := c.reg.Sweep(c.cfg.ScanRetention())
			streams := c.bus.Sweep(c.cfg.EventRetention())
			if scans > 0 || streams > 0 {
				logrus.WithFields(logrus.Fields{
					"scans":   scans,
					"streams": streams,
				}).Debug("retention sweep")
			}
		}
	}
}
