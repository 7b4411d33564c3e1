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
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/registry"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/tarball"
)

// sseHeartbeat is the idle interval after which a comment line keeps the
// event stream's connection alive through proxies.
const sseHeartbeat = 15 * time.Second

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := s.varco.StartScan(&client.StartScanConfig{Request: req})
	if err != nil {
		if errors.Cause(err) == registry.ErrTooManyScans {
			writeError(w, http.StatusTooManyRequests, "too many active scans")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	cfg := &client.ListScansConfig{}
	if state := r.URL.Query().Get("state"); state != "" {
		cfg.States = []scan.State{scan.State(state)}
	}

	statuses, err := s.varco.ListScans(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if statuses == nil {
		statuses = []*scan.Status{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	status, err := s.varco.GetScan(&client.GetScanConfig{ID: mux.Vars(r)["id"]})
	if err != nil {
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	status, err := s.varco.CancelScan(&client.CancelScanConfig{ID: mux.Vars(r)["id"]})
	if err != nil {
		writeClientError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// streamEvents serves the scan's event stream as server-sent events:
// `id:` carries the seq, `data:` the JSON event. Replay is controlled with
// ?since_seq= so clients can resume after a disconnect.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var sinceSeq int64
	if raw := r.URL.Query().Get("since_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "since_seq must be a non-negative integer")
			return
		}
		sinceSeq = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.varco.Subscribe(r.Context(), &client.SubscribeConfig{ID: id, SinceSeq: sinceSeq})
	if err != nil {
		writeClientError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logrus.WithError(err).Warn("could not marshal event for SSE")
				continue
			}
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Seq, data)
			flusher.Flush()
		}
	}
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.varco.Result(&client.ResultConfig{ID: mux.Vars(r)["id"]})
	if err != nil {
		if errors.Cause(err) == registry.ErrNotFound {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		writeError(w, http.StatusConflict, "scan not finished")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getArtifacts streams the scan directory as a gzipped tarball.
func (s *Server) getArtifacts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// The scan must exist before we touch the filesystem.
	if _, err := s.varco.GetScan(&client.GetScanConfig{ID: id}); err != nil {
		writeClientError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".tar.gz"))
	if err := tarball.EncodeDir(filepath.Join(s.resultsDir, id), w); err != nil {
		// Headers are gone; all we can do is log and cut the stream.
		logrus.WithError(err).WithField("scan", id).Error("could not stream artifacts")
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("could not encode response")
	}
}

// writeError emits the coarse error contract: {"error": "..."}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeClientError maps client errors onto status codes.
func writeClientError(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case registry.ErrNotFound:
		writeError(w, http.StatusNotFound, "scan not found")
	case registry.ErrAlreadyTerminal:
		writeError(w, http.StatusConflict, "scan already in a terminal state")
	case registry.ErrTooManyScans:
		writeError(w, http.StatusTooManyRequests, "too many active scans")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
