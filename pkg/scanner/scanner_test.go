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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/time/timetest"
)

func testPage(url string) scan.PageRef {
	return scan.PageRef{URL: url, Type: scan.PageContent, Priority: scan.PriorityMedium}
}

func TestBackoffDelay(t *testing.T) {
	testCases := []struct {
		attempt int
		expect  time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range testCases {
		if got := backoffDelay(tc.attempt); got != tc.expect {
			t.Errorf("backoffDelay(%d): expected %v, got %v", tc.attempt, tc.expect, got)
		}
	}
}

func TestWithRetries(t *testing.T) {
	timetest.UseNoAfter()
	defer timetest.ResetAfter()

	transport := scan.Failed(scan.NewFailure(scan.FailureTransport, "conn refused"), 10)
	protocol := scan.Failed(scan.NewFailure(scan.FailureProtocol, "garbage"), 10)
	ok := scan.Success([]byte(`{}`), 10)

	testCases := []struct {
		desc       string
		outputs    []scan.RawOutput
		maxRetries int
		expectRuns int
		expectOK   bool
	}{
		{
			desc:       "transient failure then success",
			outputs:    []scan.RawOutput{transport, transport, ok},
			maxRetries: 2,
			expectRuns: 3,
			expectOK:   true,
		}, {
			desc:       "non-retryable failure stops immediately",
			outputs:    []scan.RawOutput{protocol, ok},
			maxRetries: 2,
			expectRuns: 1,
			expectOK:   false,
		}, {
			desc:       "budget exhausted",
			outputs:    []scan.RawOutput{transport, transport, transport},
			maxRetries: 2,
			expectRuns: 3,
			expectOK:   false,
		}, {
			desc:       "no retry budget",
			outputs:    []scan.RawOutput{transport, ok},
			maxRetries: 0,
			expectRuns: 1,
			expectOK:   false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			runs := 0
			out := withRetries(context.Background(), scan.Pa11y, tc.maxRetries, func() scan.RawOutput {
				o := tc.outputs[runs]
				runs++
				return o
			})
			if runs != tc.expectRuns {
				t.Errorf("expected %d runs, got %d", tc.expectRuns, runs)
			}
			if out.OK() != tc.expectOK {
				t.Errorf("expected OK=%v, got %v (failure: %+v)", tc.expectOK, out.OK(), out.Failure)
			}
		})
	}
}

func TestWithRetriesCancelledContext(t *testing.T) {
	timetest.UseNoAfter()
	defer timetest.ResetAfter()

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	out := withRetries(ctx, scan.Axe, 5, func() scan.RawOutput {
		runs++
		cancel()
		return scan.Failed(scan.NewFailure(scan.FailureTransport, "conn reset"), 5)
	})
	if runs != 1 {
		t.Errorf("expected cancellation to stop retries after 1 run, got %d", runs)
	}
	if out.OK() {
		t.Error("expected the last failure to be returned")
	}
}

func TestSimulatedScan(t *testing.T) {
	for _, kind := range scan.AllKinds() {
		t.Run(string(kind), func(t *testing.T) {
			adapter := NewSimulated(kind)
			if adapter.Kind() != kind {
				t.Errorf("expected kind %v, got %v", kind, adapter.Kind())
			}

			var progress []int
			cfg := Config{TimeoutMs: 30000, Progress: func(p int) { progress = append(progress, p) }}
			out := adapter.Scan(context.Background(), testPage("https://example.com/chi-siamo"), cfg)
			if !out.OK() {
				t.Fatalf("expected success, got failure %+v", out.Failure)
			}
			if !json.Valid(out.Payload) {
				t.Error("expected a valid JSON payload")
			}
			if out.ElapsedMS != simulatedElapsed[kind] {
				t.Errorf("expected elapsed %d, got %d", simulatedElapsed[kind], out.ElapsedMS)
			}
			if len(progress) != 1 || progress[0] != 50 {
				t.Errorf("expected a single 50%% progress report, got %v", progress)
			}

			// Same page, same payload.
			again := adapter.Scan(context.Background(), testPage("https://example.com/chi-siamo"), cfg)
			if !bytes.Equal(out.Payload, again.Payload) {
				t.Error("expected deterministic payloads across runs")
			}
		})
	}
}

func TestSimulatedScanFailures(t *testing.T) {
	testCases := []struct {
		url        string
		expectKind scan.FailureKind
		retryable  bool
	}{
		{"https://example.com/failing-page", scan.FailureTransport, true},
		{"https://example.com/timeout-page", scan.FailureTimeout, false},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			out := NewSimulated(scan.Wave).Scan(context.Background(), testPage(tc.url), Config{TimeoutMs: 30000})
			if out.OK() {
				t.Fatal("expected a failure")
			}
			if out.Failure.Kind != tc.expectKind {
				t.Errorf("expected failure kind %v, got %v", tc.expectKind, out.Failure.Kind)
			}
			if out.Failure.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, out.Failure.Retryable)
			}
		})
	}
}

func TestWaveScan(t *testing.T) {
	testCases := []struct {
		desc       string
		status     int
		body       string
		expectKind scan.FailureKind
		expectOK   bool
	}{
		{
			desc:     "successful report",
			status:   http.StatusOK,
			body:     `{"status":{"success":true},"categories":{}}`,
			expectOK: true,
		}, {
			desc:       "rejected key",
			status:     http.StatusUnauthorized,
			body:       `{"status":{"success":false}}`,
			expectKind: scan.FailureConfiguration,
		}, {
			desc:       "unexpected status",
			status:     http.StatusNotFound,
			body:       `not found`,
			expectKind: scan.FailureProtocol,
		}, {
			desc:       "unparseable body",
			status:     http.StatusOK,
			body:       `<html>definitely not json</html>`,
			expectKind: scan.FailureProtocol,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var gotQuery map[string][]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query()
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			cfg := Config{
				TimeoutMs:  5000,
				MaxRetries: 0,
				APIKey:     "test-key",
				Endpoint:   srv.URL,
			}
			out := NewWave().Scan(context.Background(), testPage("https://example.com/"), cfg)

			if tc.expectOK {
				if !out.OK() {
					t.Fatalf("expected success, got failure %+v", out.Failure)
				}
				if string(out.Payload) != tc.body {
					t.Errorf("expected payload %q, got %q", tc.body, out.Payload)
				}
				if got := gotQuery["key"]; len(got) != 1 || got[0] != "test-key" {
					t.Errorf("expected key query parameter, got %v", gotQuery)
				}
				if got := gotQuery["reporttype"]; len(got) != 1 || got[0] != "4" {
					t.Errorf("expected reporttype=4, got %v", gotQuery)
				}
				return
			}
			if out.OK() {
				t.Fatal("expected a failure")
			}
			if out.Failure.Kind != tc.expectKind {
				t.Errorf("expected failure kind %v, got %v", tc.expectKind, out.Failure.Kind)
			}
		})
	}
}

func TestWaveScanMissingKey(t *testing.T) {
	out := NewWave().Scan(context.Background(), testPage("https://example.com/"), Config{TimeoutMs: 5000})
	if out.OK() {
		t.Fatal("expected a failure without an API key")
	}
	if out.Failure.Kind != scan.FailureConfiguration {
		t.Errorf("expected configuration failure, got %v", out.Failure.Kind)
	}
}

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRunSubprocess(t *testing.T) {
	dir := t.TempDir()
	spec := subprocessSpec{
		kind:           scan.Pa11y,
		args:           func(page scan.PageRef, cfg Config) []string { return []string{page.URL} },
		okExits:        map[int]bool{2: true},
		transientExits: map[int]bool{1: true},
	}

	testCases := []struct {
		desc       string
		script     string
		expectOK   bool
		expectKind scan.FailureKind
	}{
		{
			desc:     "clean exit with json",
			script:   `echo '[]'`,
			expectOK: true,
		}, {
			desc:     "issues exit code still succeeds",
			script:   "echo '[{\"code\":\"x\"}]'\nexit 2",
			expectOK: true,
		}, {
			desc:       "transient exit code",
			script:     "echo 'could not load page' >&2\nexit 1",
			expectKind: scan.FailureTransport,
		}, {
			desc:       "unknown exit code",
			script:     "exit 70",
			expectKind: scan.FailureProtocol,
		}, {
			desc:       "clean exit with garbage output",
			script:     `echo 'not json at all'`,
			expectKind: scan.FailureProtocol,
		},
	}
	for i, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			bin := writeScript(t, dir, fmt.Sprintf("tool-%d.sh", i), tc.script)
			cfg := Config{TimeoutMs: 5000, BinaryPath: bin}
			out := runSubprocess(context.Background(), spec, testPage("https://example.com/"), cfg)
			if tc.expectOK {
				if !out.OK() {
					t.Fatalf("expected success, got failure %+v", out.Failure)
				}
				if !json.Valid(out.Payload) {
					t.Errorf("expected JSON payload, got %q", out.Payload)
				}
				return
			}
			if out.OK() {
				t.Fatal("expected a failure")
			}
			if out.Failure.Kind != tc.expectKind {
				t.Errorf("expected failure kind %v, got %v", tc.expectKind, out.Failure.Kind)
			}
		})
	}
}

func TestRunSubprocessMissingBinary(t *testing.T) {
	spec := subprocessSpec{kind: scan.Axe, args: func(scan.PageRef, Config) []string { return nil }}
	cfg := Config{TimeoutMs: 5000, BinaryPath: "/definitely/not/here"}
	out := runSubprocess(context.Background(), spec, testPage("https://example.com/"), cfg)
	if out.OK() {
		t.Fatal("expected a failure")
	}
	if out.Failure.Kind != scan.FailureConfiguration {
		t.Errorf("expected configuration failure, got %v", out.Failure.Kind)
	}
	if out.Failure.Retryable {
		t.Error("a missing binary must not be retried")
	}
}

func TestNewFactory(t *testing.T) {
	for _, kind := range scan.AllKinds() {
		real, err := New(kind, scan.ModeReal)
		if err != nil {
			t.Fatalf("New(%v, real): %v", kind, err)
		}
		if real.Kind() != kind {
			t.Errorf("expected kind %v, got %v", kind, real.Kind())
		}
		if _, isSim := real.(*Simulated); isSim {
			t.Errorf("real mode must not hand out the fixture adapter for %v", kind)
		}

		sim, err := New(kind, scan.ModeSimulate)
		if err != nil {
			t.Fatalf("New(%v, simulate): %v", kind, err)
		}
		if _, isSim := sim.(*Simulated); !isSim {
			t.Errorf("simulate mode must hand out the fixture adapter for %v", kind)
		}
	}
	if _, err := New(scan.ScannerKind("sorcery"), scan.ModeReal); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	current := writeScript(t, dir, "pa11y-current", `echo '6.2.3'`)
	ancient := writeScript(t, dir, "pa11y-ancient", `echo '5.0.0'`)
	wordy := writeScript(t, dir, "lighthouse-wordy", `echo 'lighthouse 10.4.0 (chromium 115)'`)

	cfg := config.New()
	cfg.WaveAPIKey = "test-key"
	cfg.Pa11y = config.ToolConfig{Path: current, MinVersion: "6.0.0"}
	cfg.Axe = config.ToolConfig{Path: ancient, MinVersion: "6.0.0"}
	cfg.Lighthouse = config.ToolConfig{Path: wordy, MinVersion: "9.0.0"}

	results := Preflight(context.Background(), cfg, scan.AllKinds())
	byKind := map[scan.ScannerKind]CheckResult{}
	for _, r := range results {
		byKind[r.Kind] = r
	}

	if !byKind[scan.Wave].Available {
		t.Errorf("expected WAVE to pass with a key, got %+v", byKind[scan.Wave])
	}
	if r := byKind[scan.Pa11y]; !r.Available || r.Version != "6.2.3" {
		t.Errorf("expected pa11y 6.2.3 to pass, got %+v", r)
	}
	if r := byKind[scan.Axe]; r.Available {
		t.Errorf("expected the outdated tool to fail preflight, got %+v", r)
	}
	if r := byKind[scan.Lighthouse]; !r.Available || r.Version != "10.4.0" {
		t.Errorf("expected the version to be parsed out of prose, got %+v", r)
	}

	cfg.WaveAPIKey = ""
	results = Preflight(context.Background(), cfg, []scan.ScannerKind{scan.Wave})
	if results[0].Available {
		t.Errorf("expected WAVE to fail without a key, got %+v", results[0])
	}

	cfg.Pa11y = config.ToolConfig{Path: "/definitely/not/here"}
	results = Preflight(context.Background(), cfg, []scan.ScannerKind{scan.Pa11y})
	if results[0].Available || results[0].Error == "" {
		t.Errorf("expected a missing binary to fail with an error, got %+v", results[0])
	}
}
