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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethgrid/pester"

	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// defaultWaveEndpoint is used when the config does not override it.
const defaultWaveEndpoint = "https://wave.webaim.org/api/request"

// maxWaveBody caps how much of the WAVE response is read.
const maxWaveBody = 8 << 20

// Wave drives the WAVE remote HTTP API. It is the only adapter that does
// not spawn a subprocess; retries and backoff are delegated to pester.
type Wave struct{}

// NewWave returns the WAVE API adapter.
func NewWave() *Wave { return &Wave{} }

// Kind implements Interface.
func (w *Wave) Kind() scan.ScannerKind { return scan.Wave }

// Scan implements Interface. A missing API key fails fast without any
// network call.
func (w *Wave) Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput {
	start := varcotime.Now()
	elapsed := func() int64 { return varcotime.Now().Sub(start).Milliseconds() }

	if cfg.APIKey == "" {
		return scan.Failed(scan.NewFailure(scan.FailureConfiguration, "WAVE API key not configured"), elapsed())
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultWaveEndpoint
	}

	reqURL, err := buildWaveURL(endpoint, cfg.APIKey, page.URL)
	if err != nil {
		return scan.Failed(scan.NewFailure(scan.FailureConfiguration, err.Error()), elapsed())
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return scan.Failed(scan.NewFailure(scan.FailureConfiguration, err.Error()), elapsed())
	}

	cfg.reportProgress(25)

	client := pester.New()
	client.MaxRetries = cfg.MaxRetries
	client.Concurrency = 1
	client.Backoff = waveBackoff

	resp, err := client.Do(req)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return scan.Failed(scan.NewFailure(scan.FailureTimeout,
				fmt.Sprintf("WAVE did not answer within %v", cfg.Timeout())), elapsed())
		}
		return scan.Failed(scan.NewFailure(scan.FailureTransport, err.Error()), elapsed())
	}
	defer resp.Body.Close()

	cfg.reportProgress(75)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWaveBody))
	if err != nil {
		return scan.Failed(scan.NewFailure(scan.FailureTransport, err.Error()), elapsed())
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return scan.Failed(scan.NewFailure(scan.FailureConfiguration,
			fmt.Sprintf("WAVE rejected the API key (status %v)", resp.StatusCode)), elapsed())
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// pester already retried; this is the post-retry verdict.
		return scan.Failed(scan.NewFailure(scan.FailureTransport,
			fmt.Sprintf("WAVE unavailable (status %v)", resp.StatusCode)), elapsed())
	case resp.StatusCode != http.StatusOK:
		return scan.Failed(scan.NewFailure(scan.FailureProtocol,
			fmt.Sprintf("unexpected WAVE status %v", resp.StatusCode)), elapsed())
	}

	if !json.Valid(body) {
		return scan.Failed(scan.NewFailure(scan.FailureProtocol, "WAVE response is not JSON"), elapsed())
	}

	writeRawArtifact(cfg, scan.Wave, page, body)
	return scan.Success(body, elapsed())
}

// waveBackoff is pester's retry schedule: exponential from 1s capped at
// 10s, mirroring the subprocess retry policy.
func waveBackoff(retry int) time.Duration {
	return backoffDelay(retry)
}

func buildWaveURL(endpoint, key, pageURL string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", key)
	q.Set("url", pageURL)
	q.Set("reporttype", "4")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
