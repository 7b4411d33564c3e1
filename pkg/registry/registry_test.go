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

package registry

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/time/timetest"
)

func testRequest() scan.Request {
	return scan.Request{
		URL:         "https://example.com/",
		CompanyName: "ACME",
		Mode:        scan.ModeSimulate,
	}
}

func TestAdmitAllocatesDistinctIDs(t *testing.T) {
	r := New(10)
	a, err := r.Admit(testRequest())
	if err != nil {
		t.Fatalf("unexpected admit error: %v", err)
	}
	b, err := r.Admit(testRequest())
	if err != nil {
		t.Fatalf("unexpected admit error: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct scan ids, both are %v", a.ID)
	}
	if a.State != scan.StatePending {
		t.Errorf("expected admitted scan to be pending, got %v", a.State)
	}
}

func TestAdmitDeniedAtLimit(t *testing.T) {
	r := New(1)
	if _, err := r.Admit(testRequest()); err != nil {
		t.Fatalf("unexpected admit error: %v", err)
	}

	_, err := r.Admit(testRequest())
	if errors.Cause(err) != ErrTooManyScans {
		t.Fatalf("expected ErrTooManyScans, got %v", err)
	}
	// Denial has no side effects: only the first scan exists.
	if got := len(r.List(Filter{})); got != 1 {
		t.Errorf("expected 1 scan recorded after denial, got %v", got)
	}

	// A terminal scan frees its slot.
	first := r.List(Filter{})[0]
	if err := r.Start(first.ID); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := r.Fail(first.ID, "seed_unreachable"); err != nil {
		t.Fatalf("unexpected fail error: %v", err)
	}
	if _, err := r.Admit(testRequest()); err != nil {
		t.Errorf("expected admission after a scan finished, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	r := New(10)
	status, _ := r.Admit(testRequest())
	id := status.ID

	// Completing a pending scan is illegal.
	if err := r.Complete(id, &scan.Result{ScanID: id}); err == nil {
		t.Error("expected error completing a pending scan")
	}

	if err := r.Start(id); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := r.Complete(id, &scan.Result{ScanID: id}); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}

	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.State != scan.StateCompleted || got.Progress != 100 {
		t.Errorf("expected completed at 100%%, got %v at %v", got.State, got.Progress)
	}

	// Terminal states are final.
	if err := r.Start(id); errors.Cause(err) != ErrAlreadyTerminal {
		t.Errorf("expected ErrAlreadyTerminal restarting a completed scan, got %v", err)
	}
	if err := r.Fail(id, "internal_error"); errors.Cause(err) != ErrAlreadyTerminal {
		t.Errorf("expected ErrAlreadyTerminal failing a completed scan, got %v", err)
	}

	if _, err := r.Result(id); err != nil {
		t.Errorf("expected stored result, got %v", err)
	}
}

func TestPendingScanCanFailDirectly(t *testing.T) {
	r := New(10)
	status, _ := r.Admit(testRequest())
	if err := r.Fail(status.ID, "seed_unreachable"); err != nil {
		t.Errorf("expected pending -> failed to be legal, got %v", err)
	}
}

func TestProgressMonotonic(t *testing.T) {
	r := New(10)
	status, _ := r.Admit(testRequest())
	id := status.ID
	r.Start(id)

	steps := []struct {
		set  int
		want int
	}{
		{10, 10},
		{50, 50},
		{30, 50}, // lower value is a no-op
		{50, 50}, // equal value is a no-op
		{90, 90},
		{150, 100}, // clamped
	}
	for _, step := range steps {
		if err := r.SetProgress(id, step.set); err != nil {
			t.Fatalf("unexpected progress error at %v: %v", step.set, err)
		}
		got, _ := r.Get(id)
		if got.Progress != step.want {
			t.Errorf("after SetProgress(%v): expected %v, got %v", step.set, step.want, got.Progress)
		}
	}
}

func TestCancelRequested(t *testing.T) {
	r := New(10)
	status, _ := r.Admit(testRequest())
	id := status.ID
	r.Start(id)

	got, err := r.CancelRequested(id)
	if err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if !got.CancelRequested {
		t.Error("expected CancelRequested flag set")
	}
	if got.State != scan.StateRunning {
		t.Errorf("cancel request must not change state, got %v", got.State)
	}

	if err := r.Cancelled(id); err != nil {
		t.Fatalf("unexpected cancelled error: %v", err)
	}
	if _, err := r.CancelRequested(id); errors.Cause(err) != ErrAlreadyTerminal {
		t.Errorf("expected ErrAlreadyTerminal cancelling a cancelled scan, got %v", err)
	}
}

func TestGetUnknownScan(t *testing.T) {
	r := New(10)
	if _, err := r.Get("nope"); errors.Cause(err) != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.CancelRequested("nope"); errors.Cause(err) != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilter(t *testing.T) {
	r := New(10)
	a, _ := r.Admit(testRequest())
	b, _ := r.Admit(testRequest())
	r.Start(b.ID)

	pending := r.List(Filter{States: []scan.State{scan.StatePending}})
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("expected only the pending scan, got %v", pending)
	}
	if got := len(r.List(Filter{})); got != 2 {
		t.Errorf("expected 2 scans unfiltered, got %v", got)
	}
}

func TestSweep(t *testing.T) {
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	timetest.UseFixedNow(base)
	defer timetest.ResetNow()

	r := New(10)
	old, _ := r.Admit(testRequest())
	r.Start(old.ID)
	r.Fail(old.ID, "seed_unreachable")

	live, _ := r.Admit(testRequest())
	r.Start(live.ID)

	timetest.UseFixedNow(base.Add(2 * time.Hour))
	fresh, _ := r.Admit(testRequest())
	r.Start(fresh.ID)
	r.Cancelled(fresh.ID)

	if removed := r.Sweep(time.Hour); removed != 1 {
		t.Errorf("expected 1 entry swept, got %v", removed)
	}
	if _, err := r.Get(old.ID); errors.Cause(err) != ErrNotFound {
		t.Errorf("expected old scan removed, got %v", err)
	}
	if _, err := r.Get(live.ID); err != nil {
		t.Errorf("expected running scan retained, got %v", err)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("expected recently finished scan retained, got %v", err)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	r := New(10)
	status, _ := r.Admit(testRequest())
	status.State = scan.StateFailed
	status.Progress = 99

	got, _ := r.Get(status.ID)
	if got.State != scan.StatePending || got.Progress != 0 {
		t.Error("mutating a returned clone must not affect registry state")
	}
}
