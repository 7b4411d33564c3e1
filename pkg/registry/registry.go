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

// Package registry owns the process-wide scan table: admission control,
// lifecycle state transitions and retention of recently finished scans.
// The registry is the exclusive writer of scan Status values; every read
// returns a clone so no caller ever holds registry state across I/O.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// Sentinel errors for callers to compare against with errors.Cause.
var (
	// ErrTooManyScans is returned by Admit when the active-scan limit is
	// reached. No scan id is allocated in that case.
	ErrTooManyScans = errors.New("too many active scans")

	// ErrNotFound is returned when no scan with the given id exists.
	ErrNotFound = errors.New("scan not found")

	// ErrAlreadyTerminal is returned when an operation requires a live
	// scan but the scan has already reached a terminal state.
	ErrAlreadyTerminal = errors.New("scan already in a terminal state")
)

// Registry is the concurrency-safe table of all known scans.
type Registry struct {
	mu            sync.RWMutex
	scans         map[string]*scan.Status
	results       map[string]*scan.Result
	maxConcurrent int
}

// Filter narrows List output. A nil/empty state list matches everything.
type Filter struct {
	States []scan.State
}

func (f Filter) matches(status *scan.Status) bool {
	if len(f.States) == 0 {
		return true
	}
	for _, state := range f.States {
		if status.State == state {
			return true
		}
	}
	return false
}

// New returns a Registry admitting at most maxConcurrent active scans.
func New(maxConcurrent int) *Registry {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Registry{
		scans:         map[string]*scan.Status{},
		results:       map[string]*scan.Result{},
		maxConcurrent: maxConcurrent,
	}
}

// Admit atomically checks the active-scan limit and inserts a new pending
// entry for the request. On denial no id is allocated and nothing is
// recorded.
func (r *Registry) Admit(req scan.Request) (*scan.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeCountLocked() >= r.maxConcurrent {
		return nil, errors.Wrapf(ErrTooManyScans, "limit %d reached", r.maxConcurrent)
	}

	status := &scan.Status{
		ID:        uuid.New().String(),
		State:     scan.StatePending,
		Request:   req,
		CreatedAt: varcotime.Now(),
	}
	r.scans[status.ID] = status
	return status.Clone(), nil
}

// Get returns a clone of the scan's status.
func (r *Registry) Get(id string) (*scan.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.scans[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "scan %v", id)
	}
	return status.Clone(), nil
}

// List returns cloned snapshots of every scan matching the filter, newest
// first.
func (r *Registry) List(filter Filter) []*scan.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*scan.Status
	for _, status := range r.scans {
		if filter.matches(status) {
			out = append(out, status.Clone())
		}
	}
	sortStatuses(out)
	return out
}

// ActiveCount returns how many scans are pending or running.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCountLocked()
}

// Start transitions the scan from pending to running.
func (r *Registry) Start(id string) error {
	return r.transition(id, scan.StateRunning, func(status *scan.Status) {
		status.StartedAt = varcotime.Time(varcotime.Now())
		status.Message = "scan started"
	})
}

// SetProgress raises the scan's progress. Progress is monotonic: a value
// at or below the current one is a no-op, not an error, because parallel
// workers may report out of order.
func (r *Registry) SetProgress(id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.scans[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "scan %v", id)
	}
	if status.State.Terminal() {
		return errors.Wrapf(ErrAlreadyTerminal, "scan %v", id)
	}
	if progress > 100 {
		progress = 100
	}
	if progress > status.Progress {
		status.Progress = progress
	}
	return nil
}

// SetMessage updates the scan's latest human-readable status line.
func (r *Registry) SetMessage(id string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.scans[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "scan %v", id)
	}
	if status.State.Terminal() {
		return errors.Wrapf(ErrAlreadyTerminal, "scan %v", id)
	}
	status.Message = message
	return nil
}

// Complete transitions the scan to completed, pins progress at 100 and
// stores the finalized result.
func (r *Registry) Complete(id string, result *scan.Result) error {
	return r.transition(id, scan.StateCompleted, func(status *scan.Status) {
		status.Progress = 100
		status.Message = "scan completed"
		status.FinishedAt = varcotime.Time(varcotime.Now())
		r.results[id] = result
	})
}

// Fail transitions the scan to failed with a coarse client-visible reason.
func (r *Registry) Fail(id string, reason string) error {
	return r.transition(id, scan.StateFailed, func(status *scan.Status) {
		status.FailureReason = reason
		status.Message = "scan failed: " + reason
		status.FinishedAt = varcotime.Time(varcotime.Now())
	})
}

// CancelRequested flags the scan for cancellation and returns its current
// status. The scan stays in its current state until the orchestrator
// confirms with Cancelled.
func (r *Registry) CancelRequested(id string) (*scan.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.scans[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "scan %v", id)
	}
	if status.State.Terminal() {
		return nil, errors.Wrapf(ErrAlreadyTerminal, "scan %v is %v", id, status.State)
	}
	status.CancelRequested = true
	status.Message = "cancellation requested"
	return status.Clone(), nil
}

// Cancelled transitions the scan to its cancelled terminal state.
func (r *Registry) Cancelled(id string) error {
	return r.transition(id, scan.StateCancelled, func(status *scan.Status) {
		status.Message = "cancelled"
		status.FinishedAt = varcotime.Time(varcotime.Now())
	})
}

// Result returns the finalized result of a completed scan.
func (r *Registry) Result(id string) (*scan.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.scans[id]; !ok {
		if _, haveResult := r.results[id]; !haveResult {
			return nil, errors.Wrapf(ErrNotFound, "scan %v", id)
		}
	}
	result, ok := r.results[id]
	if !ok {
		return nil, errors.Errorf("scan %v has no result (state %v)", id, r.scans[id].State)
	}
	return result, nil
}

// Sweep removes terminal scans that finished more than retention ago,
// along with their stored results. Returns how many entries were removed.
func (r *Registry) Sweep(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := varcotime.Now()
	removed := 0
	for id, status := range r.scans {
		if !status.State.Terminal() || status.FinishedAt == nil {
			continue
		}
		if now.Sub(*status.FinishedAt) > retention {
			delete(r.scans, id)
			delete(r.results, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) transition(id string, to scan.State, apply func(*scan.Status)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.scans[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "scan %v", id)
	}
	if !scan.CanTransition(status.State, to) {
		if status.State.Terminal() {
			return errors.Wrapf(ErrAlreadyTerminal, "cannot move scan %v from %v to %v", id, status.State, to)
		}
		return errors.Errorf("illegal transition for scan %v: %v -> %v", id, status.State, to)
	}
	status.State = to
	apply(status)
	return nil
}

func (r *Registry) activeCountLocked() int {
	active := 0
	for _, status := range r.scans {
		if !status.State.Terminal() {
			active++
		}
	}
	return active
}

// sortStatuses orders newest first, by id for identical timestamps so the
// order is stable.
func sortStatuses(statuses []*scan.Status) {
	sort.Slice(statuses, func(i, j int) bool {
		if !statuses[i].CreatedAt.Equal(statuses[j].CreatedAt) {
			return statuses[i].CreatedAt.After(statuses[j].CreatedAt)
		}
		return statuses[i].ID < statuses[j].ID
	})
}
