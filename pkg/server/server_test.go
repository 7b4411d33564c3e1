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

package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/events"
	"github.com/varcolabs/varco/pkg/registry"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/scanner"
)

// fakeClient implements client.Interface with scripted responses.
type fakeClient struct {
	startScan  func(*client.StartScanConfig) (*scan.Status, error)
	getScan    func(*client.GetScanConfig) (*scan.Status, error)
	listScans  func(*client.ListScansConfig) ([]*scan.Status, error)
	cancelScan func(*client.CancelScanConfig) (*scan.Status, error)
	subscribe  func(context.Context, *client.SubscribeConfig) (*events.Subscription, error)
	result     func(*client.ResultConfig) (*scan.Result, error)
}

var _ client.Interface = &fakeClient{}

func (f *fakeClient) StartScan(cfg *client.StartScanConfig) (*scan.Status, error) {
	return f.startScan(cfg)
}
func (f *fakeClient) GetScan(cfg *client.GetScanConfig) (*scan.Status, error) {
	return f.getScan(cfg)
}
func (f *fakeClient) ListScans(cfg *client.ListScansConfig) ([]*scan.Status, error) {
	return f.listScans(cfg)
}
func (f *fakeClient) CancelScan(cfg *client.CancelScanConfig) (*scan.Status, error) {
	return f.cancelScan(cfg)
}
func (f *fakeClient) Subscribe(ctx context.Context, cfg *client.SubscribeConfig) (*events.Subscription, error) {
	return f.subscribe(ctx, cfg)
}
func (f *fakeClient) WaitForScan(ctx context.Context, cfg *client.WaitConfig) (*scan.Status, error) {
	return f.getScan(&client.GetScanConfig{ID: cfg.ID})
}
func (f *fakeClient) Result(cfg *client.ResultConfig) (*scan.Result, error) {
	return f.result(cfg)
}
func (f *fakeClient) Preflight(cfg *client.PreflightConfig) []scanner.CheckResult {
	return nil
}

func testStatus(id string, state scan.State) *scan.Status {
	return &scan.Status{ID: id, State: state, Request: scan.Request{URL: "https://example.com"}}
}

func newTestServer(fake *fakeClient, resultsDir string) *httptest.Server {
	s := New(fake, "127.0.0.1:0", resultsDir)
	return httptest.NewServer(s.Routes())
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestStartScanEndpoint(t *testing.T) {
	testCases := []struct {
		desc         string
		body         string
		startErr     error
		expectStatus int
	}{
		{
			desc:         "accepted",
			body:         `{"url":"https://example.com","company_name":"Example Srl"}`,
			expectStatus: http.StatusAccepted,
		}, {
			desc:         "invalid json",
			body:         `{"url":`,
			expectStatus: http.StatusBadRequest,
		}, {
			desc:         "validation failure",
			body:         `{"url":"https://example.com"}`,
			startErr:     errors.New("company_name must not be empty"),
			expectStatus: http.StatusBadRequest,
		}, {
			desc:         "admission denied",
			body:         `{"url":"https://example.com","company_name":"Example Srl"}`,
			startErr:     errors.Wrap(registry.ErrTooManyScans, "admission"),
			expectStatus: http.StatusTooManyRequests,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			fake := &fakeClient{
				startScan: func(cfg *client.StartScanConfig) (*scan.Status, error) {
					if tc.startErr != nil {
						return nil, tc.startErr
					}
					return testStatus("abc", scan.StatePending), nil
				},
			}
			srv := newTestServer(fake, t.TempDir())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/v1/scans", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			if resp.StatusCode != tc.expectStatus {
				t.Fatalf("expected status %d, got %d", tc.expectStatus, resp.StatusCode)
			}
			if tc.expectStatus == http.StatusAccepted {
				var status scan.Status
				decodeBody(t, resp, &status)
				if status.ID != "abc" {
					t.Errorf("expected scan id abc, got %q", status.ID)
				}
			} else {
				var body map[string]string
				decodeBody(t, resp, &body)
				if body["error"] == "" {
					t.Error("expected an error message")
				}
			}
		})
	}
}

func TestListScansEndpoint(t *testing.T) {
	var gotStates []scan.State
	fake := &fakeClient{
		listScans: func(cfg *client.ListScansConfig) ([]*scan.Status, error) {
			gotStates = cfg.States
			return []*scan.Status{testStatus("a", scan.StateCompleted)}, nil
		},
	}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans?state=completed")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var statuses []*scan.Status
	decodeBody(t, resp, &statuses)
	if len(statuses) != 1 || statuses[0].ID != "a" {
		t.Errorf("unexpected listing %+v", statuses)
	}
	if len(gotStates) != 1 || gotStates[0] != scan.StateCompleted {
		t.Errorf("expected the state filter to pass through, got %v", gotStates)
	}
}

func TestGetScanEndpoint(t *testing.T) {
	fake := &fakeClient{
		getScan: func(cfg *client.GetScanConfig) (*scan.Status, error) {
			if cfg.ID == "known" {
				return testStatus("known", scan.StateRunning), nil
			}
			return nil, errors.Wrap(registry.ErrNotFound, "get")
		},
	}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans/known")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/scans/unknown")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCancelScanEndpoint(t *testing.T) {
	fake := &fakeClient{
		cancelScan: func(cfg *client.CancelScanConfig) (*scan.Status, error) {
			switch cfg.ID {
			case "running":
				st := testStatus("running", scan.StateRunning)
				st.CancelRequested = true
				return st, nil
			case "done":
				return nil, errors.Wrap(registry.ErrAlreadyTerminal, "cancel")
			}
			return nil, errors.Wrap(registry.ErrNotFound, "cancel")
		},
	}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	testCases := []struct {
		id           string
		expectStatus int
	}{
		{"running", http.StatusOK},
		{"done", http.StatusConflict},
		{"missing", http.StatusNotFound},
	}
	for _, tc := range testCases {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/scans/"+tc.id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE %v: %v", tc.id, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.expectStatus {
			t.Errorf("DELETE %v: expected %d, got %d", tc.id, tc.expectStatus, resp.StatusCode)
		}
	}
}

func TestResultEndpoint(t *testing.T) {
	fake := &fakeClient{
		result: func(cfg *client.ResultConfig) (*scan.Result, error) {
			switch cfg.ID {
			case "done":
				return &scan.Result{ScanID: "done"}, nil
			case "running":
				return nil, errors.New("scan running has no result (state running)")
			}
			return nil, errors.Wrap(registry.ErrNotFound, "result")
		},
	}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	testCases := []struct {
		id           string
		expectStatus int
	}{
		{"done", http.StatusOK},
		{"running", http.StatusConflict},
		{"missing", http.StatusNotFound},
	}
	for _, tc := range testCases {
		resp, err := http.Get(srv.URL + "/api/v1/scans/" + tc.id + "/result")
		if err != nil {
			t.Fatalf("GET %v: %v", tc.id, err)
		}
		if resp.StatusCode != tc.expectStatus {
			t.Errorf("GET %v: expected %d, got %d", tc.id, tc.expectStatus, resp.StatusCode)
		}
		if tc.expectStatus == http.StatusOK {
			var result scan.Result
			decodeBody(t, resp, &result)
			if result.ScanID != "done" {
				t.Errorf("unexpected result %+v", result)
			}
		} else {
			resp.Body.Close()
		}
	}
}

func TestEventStream(t *testing.T) {
	ch := make(chan scan.Event, 4)
	ch <- scan.Event{ScanID: "abc", Seq: 1, Type: scan.EventScanStarted}
	ch <- scan.Event{ScanID: "abc", Seq: 2, Type: scan.EventScanCompleted}
	close(ch)

	var gotSince int64
	fake := &fakeClient{
		subscribe: func(ctx context.Context, cfg *client.SubscribeConfig) (*events.Subscription, error) {
			gotSince = cfg.SinceSeq
			return &events.Subscription{Events: ch}, nil
		},
	}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans/abc/events?since_seq=0")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
	if gotSince != 0 {
		t.Errorf("expected since_seq 0, got %d", gotSince)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "id: 1\n") || !strings.Contains(text, `"scan_started"`) {
		t.Errorf("expected the first event in the stream, got %q", text)
	}
	if !strings.Contains(text, "id: 2\n") || !strings.Contains(text, `"scan_completed"`) {
		t.Errorf("expected the terminal event in the stream, got %q", text)
	}
}

func TestEventStreamBadSinceSeq(t *testing.T) {
	fake := &fakeClient{}
	srv := newTestServer(fake, t.TempDir())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans/abc/events?since_seq=banana")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestArtifactsEndpoint(t *testing.T) {
	resultsDir := t.TempDir()
	scanDir := filepath.Join(resultsDir, "abc")
	if err := os.MkdirAll(scanDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scanDir, "summary.json"), []byte(`{"scan_id":"abc"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fake := &fakeClient{
		getScan: func(cfg *client.GetScanConfig) (*scan.Status, error) {
			if cfg.ID == "abc" {
				return testStatus("abc", scan.StateCompleted), nil
			}
			return nil, errors.Wrap(registry.ErrNotFound, "get")
		},
	}
	srv := newTestServer(fake, resultsDir)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/scans/abc/artifacts")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/gzip" {
		t.Errorf("expected application/gzip, got %q", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("expected a gzip stream: %v", err)
	}
	gz.Close()

	resp, err = http.Get(srv.URL + "/api/v1/scans/missing/artifacts")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown scan, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeClient{}, t.TempDir())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body map[string]bool
	decodeBody(t, resp, &body)
	if !body["ok"] {
		t.Errorf("expected ok:true, got %v", body)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := New(&fakeClient{}, "127.0.0.1:0", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	s.WaitUntilReady()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected a clean shutdown, got %v", err)
	}
}
