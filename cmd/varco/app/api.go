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

package app

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
)

// apiClient is a thin wrapper over the server's JSON API for the remote
// commands (status, events, results, cancel, retrieve). Transient transport
// errors are retried by pester; HTTP error statuses are surfaced as-is.
type apiClient struct {
	base string
	http *pester.Client
}

func newAPIClient(server string) *apiClient {
	c := pester.New()
	c.MaxRetries = 3
	c.Concurrency = 1
	c.Backoff = pester.ExponentialBackoff
	return &apiClient{
		base: strings.TrimRight(server, "/") + "/api/v1",
		http: c,
	}
}

// get performs a GET and returns the open response body on 2xx. The caller
// owns closing it.
func (c *apiClient) get(path string) (*http.Response, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not reach the varco server at %v", c.base)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *apiClient) getJSON(path string, out interface{}) error {
	resp, err := c.get(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding server response")
}

// deleteJSON performs a DELETE and decodes the JSON response into out.
func (c *apiClient) deleteJSON(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "could not reach the varco server at %v", c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding server response")
}

// apiError turns the server's {"error": "..."} contract into a Go error,
// falling back to the HTTP status when the body is not what we expect.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return errors.Errorf("server returned %v: %v", resp.Status, body.Error)
	}
	return errors.Errorf("server returned %v", resp.Status)
}
