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

package scan

import "time"

// EventType tags a scan event. Consumers must ignore types they do not
// know so the set can grow.
type EventType string

const (
	EventScanStarted        EventType = "scan_started"
	EventPageStarted        EventType = "page_started"
	EventScannerStarted     EventType = "scanner_started"
	EventScannerProgress    EventType = "scanner_progress"
	EventScannerCompleted   EventType = "scanner_completed"
	EventScannerFailed      EventType = "scanner_failed"
	EventAggregationStarted EventType = "aggregation_started"
	EventScanCompleted      EventType = "scan_completed"
	EventScanFailed         EventType = "scan_failed"
	EventScanCancelled      EventType = "scan_cancelled"
)

// Event is the envelope published on the event bus and serialized to
// events.ndjson. Seq is assigned by the bus, 1-based and gapless per scan.
type Event struct {
	ScanID  string      `json:"scan_id"`
	Seq     int64       `json:"seq"`
	TS      time.Time   `json:"ts"`
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Terminal reports whether the event ends its scan's stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventScanCompleted, EventScanFailed, EventScanCancelled:
		return true
	}
	return false
}

// ScanStartedPayload announces the scan after admission.
type ScanStartedPayload struct {
	URL      string        `json:"url"`
	Scanners []ScannerKind `json:"scanners"`
	Mode     Mode          `json:"mode"`
}

// PageStartedPayload announces one page entering the scanner fan-out.
// Index is 1-based.
type PageStartedPayload struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// ScannerStartedPayload announces the dispatch of one (page, scanner) run.
type ScannerStartedPayload struct {
	Page    string      `json:"page"`
	Scanner ScannerKind `json:"scanner"`
}

// ScannerProgressPayload relays a coarse progress report from an adapter.
type ScannerProgressPayload struct {
	Page    string      `json:"page"`
	Scanner ScannerKind `json:"scanner"`
	Percent int         `json:"percent"`
}

// ScannerCompletedPayload closes a (page, scanner) run successfully.
type ScannerCompletedPayload struct {
	Page       string      `json:"page"`
	Scanner    ScannerKind `json:"scanner"`
	Violations int         `json:"violations"`
	ElapsedMS  int64       `json:"elapsed_ms"`
}

// ScannerFailedPayload closes a (page, scanner) run with a coarse reason.
// Critical marks configuration failures that will affect every page.
type ScannerFailedPayload struct {
	Page     string      `json:"page"`
	Scanner  ScannerKind `json:"scanner"`
	Reason   string      `json:"reason"`
	Critical bool        `json:"critical"`
}

// AggregationStartedPayload announces scoring over the collected pages.
type AggregationStartedPayload struct {
	Pages int `json:"pages"`
}

// ScanCompletedPayload carries the final metrics.
type ScanCompletedPayload struct {
	Metrics Metrics `json:"metrics"`
}

// ScanFailedPayload carries the coarse failure reason.
type ScanFailedPayload struct {
	Reason string `json:"reason"`
}

// ScanCancelledPayload carries whatever page results were collected before
// cancellation, for diagnostics only.
type ScanCancelledPayload struct {
	Partial []PageResult `json:"partial"`
}
