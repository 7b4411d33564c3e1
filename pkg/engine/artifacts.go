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

package engine

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/features"
	"github.com/varcolabs/varco/pkg/scan"
)

// Artifact file names inside a scan directory.
const (
	configArtifact  = "config.json"
	summaryArtifact = "summary.json"
	eventsArtifact  = "events.ndjson"
	runLogArtifact  = "run.log"
)

// newRunLogger builds the scan-scoped logger: entries mirror to
// <scanDir>/run.log as JSON via lfshook while staying off the process
// logger's output. Falls back to the process logger when the scan dir
// cannot be created.
func newRunLogger(scanDir, scanID string) logrus.FieldLogger {
	if err := os.MkdirAll(scanDir, 0755); err != nil {
		logrus.WithError(err).WithField("dir", scanDir).Error("could not create scan directory")
		return logrus.WithField("scan", scanID)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.GetLevel())
	logger.AddHook(lfshook.NewHook(
		filepath.Join(scanDir, runLogArtifact),
		&logrus.JSONFormatter{},
	))
	return logger.WithField("scan", scanID)
}

// writeConfigArtifact snapshots the validated request. The WAVE key never
// appears here; it is excluded from the request entirely.
func writeConfigArtifact(scanDir string, req scan.Request, log logrus.FieldLogger) {
	writeJSONArtifact(scanDir, configArtifact, req, log)
}

// writeSummaryArtifact persists the final Result as summary.json.
func writeSummaryArtifact(scanDir string, result *scan.Result, log logrus.FieldLogger) {
	writeJSONArtifact(scanDir, summaryArtifact, result, log)
}

func writeJSONArtifact(scanDir, name string, v interface{}, log logrus.FieldLogger) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithError(err).WithField("artifact", name).Error("could not marshal artifact")
		return
	}
	if err := os.WriteFile(filepath.Join(scanDir, name), append(b, '\n'), 0644); err != nil {
		log.WithError(err).WithField("artifact", name).Error("could not write artifact")
	}
}

// startEventLog mirrors the scan's event stream to events.ndjson, one JSON
// event per line, via its own bus subscription. Returns a wait func that
// blocks until the stream is closed and the file flushed; gated by the
// EventLogArtifact feature.
func (e *Engine) startEventLog(scanID, scanDir string, log logrus.FieldLogger) func() {
	noop := func() {}
	if !features.Enabled(features.EventLogArtifact) {
		return noop
	}

	sub, err := e.bus.Subscribe(context.Background(), scanID, 0)
	if err != nil {
		log.WithError(err).Error("could not subscribe for the event log")
		return noop
	}

	f, err := os.OpenFile(filepath.Join(scanDir, eventsArtifact), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.WithError(err).Error("could not open events.ndjson")
		return noop
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.Close()
		enc := json.NewEncoder(f)
		for ev := range sub.Events {
			if err := enc.Encode(ev); err != nil {
				log.WithError(err).Warn("could not append to events.ndjson")
			}
		}
	}()
	return func() { <-done }
}
