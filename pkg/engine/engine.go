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

// Package engine runs admitted scans end to end: discovery, per-page
// scanner fan-out, normalization, aggregation and artifact writing. The
// registry is the source of truth for lifecycle state and the bus carries
// progress events; the engine only drives the pipeline.
package engine

import (
	"context"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/varcolabs/varco/pkg/aggregate"
	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/discovery"
	"github.com/varcolabs/varco/pkg/events"
	"github.com/varcolabs/varco/pkg/normalize"
	"github.com/varcolabs/varco/pkg/registry"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/scanner"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// factoryFunc builds the adapter for one scanner kind. Swapped in tests to
// inject scripted adapters.
type factoryFunc func(kind scan.ScannerKind, mode scan.Mode) (scanner.Interface, error)

// Engine owns the scan pipeline. One Engine serves the whole process; each
// admitted scan runs on its own goroutine.
type Engine struct {
	cfg        *config.Config
	reg        *registry.Registry
	bus        *events.Bus
	newScanner factoryFunc

	mu      sync.Mutex
	cancels map[string]*scanCancel
}

// scanCancel is the engine's cancellation handle for one running scan. The
// dispatch mutex serializes scanner dispatch against Cancel: once Cancel
// has flipped the flag under the mutex and returned, no further
// scanner_started event can be published for the scan.
type scanCancel struct {
	dispatchMu sync.Mutex
	cancelled  bool

	cancelCtx context.CancelFunc
	// flipped closes when cancellation is requested; the page loop uses it
	// to bound how long it waits for in-flight adapters.
	flipped chan struct{}
}

func (sc *scanCancel) requestCancel() {
	sc.dispatchMu.Lock()
	defer sc.dispatchMu.Unlock()
	if sc.cancelled {
		return
	}
	sc.cancelled = true
	close(sc.flipped)
	sc.cancelCtx()
}

func (sc *scanCancel) isCancelled() bool {
	sc.dispatchMu.Lock()
	defer sc.dispatchMu.Unlock()
	return sc.cancelled
}

// New builds an Engine on top of the given registry and bus.
func New(cfg *config.Config, reg *registry.Registry, bus *events.Bus) *Engine {
	return &Engine{
		cfg:        cfg,
		reg:        reg,
		bus:        bus,
		newScanner: scanner.New,
		cancels:    map[string]*scanCancel{},
	}
}

// Launch admits the request and starts the scan pipeline on its own
// goroutine. The request must already have defaults applied and be
// validated; admission can still be denied on the concurrency limit.
func (e *Engine) Launch(req scan.Request) (string, error) {
	status, err := e.reg.Admit(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &scanCancel{cancelCtx: cancel, flipped: make(chan struct{})}

	e.mu.Lock()
	e.cancels[status.ID] = sc
	e.mu.Unlock()

	go e.runScan(ctx, status.ID, req, sc)
	return status.ID, nil
}

// Cancel requests cooperative cancellation of a scan. When it returns
// without error the cancel flag is set, the scan context is cancelled and
// no new scanner run will be dispatched; the scan itself reaches the
// cancelled state asynchronously.
func (e *Engine) Cancel(scanID string) (*scan.Status, error) {
	status, err := e.reg.CancelRequested(scanID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	sc := e.cancels[scanID]
	e.mu.Unlock()
	if sc != nil {
		sc.requestCancel()
	}
	return status, nil
}

func (e *Engine) removeCancel(scanID string) {
	e.mu.Lock()
	delete(e.cancels, scanID)
	e.mu.Unlock()
}

// runScan is the pipeline for one scan. Every exit path finalizes the
// registry state, publishes the terminal event and closes the scan's event
// stream.
func (e *Engine) runScan(ctx context.Context, id string, req scan.Request, sc *scanCancel) {
	scanDir := filepath.Join(e.cfg.ResultsDir, id)
	log := newRunLogger(scanDir, id)

	waitEventLog := func() {}
	defer func() { waitEventLog() }()
	defer e.removeCancel(id)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("scan pipeline panicked: %s", debug.Stack())
			e.finalizeFailed(id, scan.ReasonInternalError)
		}
	}()

	startedAt := varcotime.Now()
	if err := e.reg.Start(id); err != nil {
		log.WithError(err).Error("could not mark scan running")
		return
	}

	writeConfigArtifact(scanDir, req, log)
	waitEventLog = e.startEventLog(id, scanDir, log)

	e.bus.Publish(id, scan.EventScanStarted, scan.ScanStartedPayload{
		URL:      req.URL,
		Scanners: req.Scanners.Enabled(),
		Mode:     req.Mode,
	})

	pages, err := e.discoverPages(ctx, req)
	if err != nil {
		if sc.isCancelled() {
			e.finalizeCancelled(id, nil, log)
			return
		}
		log.WithError(err).Error("discovery failed")
		e.finalizeFailed(id, scan.ReasonSeedUnreachable)
		return
	}
	e.setProgress(id, 10)
	log.WithField("pages", len(pages)).Info("discovery finished")

	adapters := e.buildAdapters(req, log)

	kinds := req.Scanners.Enabled()
	totalCells := len(pages) * len(kinds)
	cellsDone := 0
	var progressMu sync.Mutex
	cellDone := func() {
		progressMu.Lock()
		cellsDone++
		pct := 10 + (80*cellsDone)/totalCells
		progressMu.Unlock()
		e.setProgress(id, pct)
	}

	var pageResults []scan.PageResult
	for i, page := range pages {
		if sc.isCancelled() {
			break
		}
		e.bus.Publish(id, scan.EventPageStarted, scan.PageStartedPayload{
			URL:   page.URL,
			Index: i + 1,
			Total: len(pages),
		})
		pageResults = append(pageResults, e.scanPage(ctx, id, page, req, adapters, sc, scanDir, cellDone, log))
	}

	if sc.isCancelled() {
		e.finalizeCancelled(id, pageResults, log)
		return
	}

	if successfulRuns(pageResults) == 0 {
		log.Error("every scanner run failed")
		e.finalizeFailed(id, scan.ReasonAllScannersFailed)
		return
	}

	e.setProgress(id, 90)
	e.bus.Publish(id, scan.EventAggregationStarted, scan.AggregationStartedPayload{Pages: len(pageResults)})

	result := aggregate.Aggregate(pageResults, req, startedAt, varcotime.Now(), id)
	writeSummaryArtifact(scanDir, &result, log)
	e.setProgress(id, 99)

	if err := e.reg.Complete(id, &result); err != nil {
		log.WithError(err).Error("could not finalize scan")
		e.finalizeFailed(id, scan.ReasonInternalError)
		return
	}
	e.bus.Publish(id, scan.EventScanCompleted, scan.ScanCompletedPayload{Metrics: result.Metrics})
	e.bus.Close(id)
	log.WithFields(logrus.Fields{
		"score": result.Metrics.OverallScore,
		"level": result.Metrics.ComplianceLevel,
	}).Info("scan completed")
}

// scanPage fans the enabled scanners out over one page and collects the
// normalized violations.
func (e *Engine) scanPage(ctx context.Context, id string, page scan.PageRef, req scan.Request,
	adapters map[scan.ScannerKind]scanner.Interface, sc *scanCancel, scanDir string,
	cellDone func(), log logrus.FieldLogger) scan.PageResult {

	result := scan.PageResult{
		Page:      page,
		Scanners:  map[scan.ScannerKind]scan.ScannerStatus{},
		ElapsedMS: map[scan.ScannerKind]int64{},
	}
	var resultMu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(e.cfg.ScannerConcurrency(len(adapters)))

	for _, kind := range req.Scanners.Enabled() {
		kind := kind
		adapter := adapters[kind]

		g.Go(func() error {
			if adapter == nil {
				resultMu.Lock()
				result.Scanners[kind] = scan.StatusSkipped
				resultMu.Unlock()
				cellDone()
				return nil
			}

			// Dispatch barrier: after Cancel returns, no scanner_started
			// can be published for this scan.
			sc.dispatchMu.Lock()
			if sc.cancelled {
				sc.dispatchMu.Unlock()
				resultMu.Lock()
				result.Scanners[kind] = scan.StatusSkipped
				resultMu.Unlock()
				return nil
			}
			e.bus.Publish(id, scan.EventScannerStarted, scan.ScannerStartedPayload{
				Page:    page.URL,
				Scanner: kind,
			})
			sc.dispatchMu.Unlock()

			acfg := scanner.ConfigFor(kind, e.cfg, req, scanDir)
			acfg.Progress = func(percent int) {
				e.bus.Publish(id, scan.EventScannerProgress, scan.ScannerProgressPayload{
					Page:    page.URL,
					Scanner: kind,
					Percent: percent,
				})
			}

			raw := adapter.Scan(ctx, page, acfg)

			resultMu.Lock()
			result.ElapsedMS[kind] = raw.ElapsedMS
			resultMu.Unlock()

			if !raw.OK() {
				status := scan.StatusFailed
				if raw.Failure.Kind == scan.FailureTimeout {
					status = scan.StatusTimeout
				}
				resultMu.Lock()
				result.Scanners[kind] = status
				resultMu.Unlock()

				log.WithFields(logrus.Fields{
					"scanner": kind,
					"page":    page.URL,
					"kind":    raw.Failure.Kind,
				}).Warnf("scanner run failed: %v", raw.Failure.Message)
				e.bus.Publish(id, scan.EventScannerFailed, scan.ScannerFailedPayload{
					Page:     page.URL,
					Scanner:  kind,
					Reason:   raw.Failure.ClientReason(),
					Critical: raw.Failure.Kind == scan.FailureConfiguration,
				})
				cellDone()
				return nil
			}

			violations := normalize.Normalize(kind, raw, page)
			resultMu.Lock()
			result.Scanners[kind] = scan.StatusOK
			result.Violations = append(result.Violations, violations...)
			resultMu.Unlock()

			e.bus.Publish(id, scan.EventScannerCompleted, scan.ScannerCompletedPayload{
				Page:       page.URL,
				Scanner:    kind,
				Violations: len(violations),
				ElapsedMS:  raw.ElapsedMS,
			})
			cellDone()
			return nil
		})
	}

	e.waitWithGrace(g, sc, log)

	// Deterministic violation order regardless of scanner finish order.
	resultMu.Lock()
	defer resultMu.Unlock()
	sortViolations(result.Violations)
	return result
}

// waitWithGrace waits for the page's scanner pool; once cancellation is
// requested it allows in-flight adapters a bounded grace to wind down, then
// abandons them.
func (e *Engine) waitWithGrace(g *errgroup.Group, sc *scanCancel, log logrus.FieldLogger) {
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-sc.flipped:
	}

	select {
	case <-done:
	case <-varcotime.After(e.cfg.CancelGrace()):
		log.Warn("abandoning in-flight scanner runs after cancel grace")
	}
}

// discoverPages runs crawl discovery, or fabricates deterministic pages in
// simulate mode so demos never touch the network.
func (e *Engine) discoverPages(ctx context.Context, req scan.Request) ([]scan.PageRef, error) {
	if req.Mode == scan.ModeSimulate {
		return simulatePages(req), nil
	}
	return discovery.New(e.cfg).Discover(ctx, req.URL, discovery.Bounds{
		MaxPages: req.MaxPages,
		MaxDepth: req.MaxDepth,
	})
}

// buildAdapters resolves one adapter per enabled kind. A factory error
// leaves a nil slot, which scanPage records as skipped.
func (e *Engine) buildAdapters(req scan.Request, log logrus.FieldLogger) map[scan.ScannerKind]scanner.Interface {
	adapters := map[scan.ScannerKind]scanner.Interface{}
	for _, kind := range req.Scanners.Enabled() {
		adapter, err := e.newScanner(kind, req.Mode)
		if err != nil {
			log.WithError(err).WithField("scanner", kind).Error("could not build scanner adapter")
			continue
		}
		adapters[kind] = adapter
	}
	return adapters
}

func (e *Engine) finalizeFailed(id string, reason string) {
	if err := e.reg.Fail(id, reason); err != nil {
		logrus.WithError(err).WithField("scan", id).Error("could not mark scan failed")
		return
	}
	e.bus.Publish(id, scan.EventScanFailed, scan.ScanFailedPayload{Reason: reason})
	e.bus.Close(id)
}

func (e *Engine) finalizeCancelled(id string, partial []scan.PageResult, log logrus.FieldLogger) {
	if err := e.reg.Cancelled(id); err != nil {
		log.WithError(err).Error("could not mark scan cancelled")
		return
	}
	e.bus.Publish(id, scan.EventScanCancelled, scan.ScanCancelledPayload{Partial: partial})
	e.bus.Close(id)
	log.Info("scan cancelled")
}

func (e *Engine) setProgress(id string, pct int) {
	if err := e.reg.SetProgress(id, pct); err != nil {
		logrus.WithError(err).WithField("scan", id).Debug("progress update dropped")
	}
}

func successfulRuns(pages []scan.PageResult) int {
	n := 0
	for _, p := range pages {
		for _, status := range p.Scanners {
			if status == scan.StatusOK {
				n++
			}
		}
	}
	return n
}

// sortViolations imposes a stable order (severity rank, code, selector) so
// page results do not depend on which scanner finished first.
func sortViolations(violations []scan.Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Selector < b.Selector
	})
}
