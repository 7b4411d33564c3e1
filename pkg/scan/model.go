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

// Package scan defines the canonical data model shared by every part of the
// engine: requests, discovered pages, violations, per-page results, and the
// final scored result. Everything downstream of the normalizer operates on
// these types; only the normalizer is allowed to tolerate loosely shaped
// scanner output.
package scan

import (
	"strings"
	"time"
)

// Severity grades a violation. The set is closed and ordered; use Rank for
// ordering comparisons.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Rank returns the sort position of the severity, critical first. Unknown
// severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// PageType is a coarse classification of a discovered page, derived from
// URL and title heuristics during discovery.
type PageType string

const (
	PageHomepage PageType = "homepage"
	PageForm     PageType = "form"
	PageContact  PageType = "contact"
	PageContent  PageType = "content"
	PageOther    PageType = "other"
)

// Priority is the scan priority class of a discovered page.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityForDepth maps BFS depth to a priority class: the seed is high,
// its direct links medium, everything deeper low.
func PriorityForDepth(depth int) Priority {
	switch {
	case depth <= 0:
		return PriorityHigh
	case depth == 1:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ElementCounts are rough page statistics gathered while discovery already
// has the HTML in hand. They feed page-type heuristics and reports.
type ElementCounts struct {
	Links  int `json:"links"`
	Images int `json:"images"`
	Forms  int `json:"forms"`
	Inputs int `json:"inputs"`
}

// PageRef is one page selected for scanning. URL is always normalized and
// unique within a scan.
type PageRef struct {
	URL      string        `json:"url"`
	Depth    int           `json:"depth"`
	Type     PageType      `json:"page_type"`
	Priority Priority      `json:"priority"`
	Elements ElementCounts `json:"elements"`
}

// Violation is the canonical, scanner-independent representation of one
// accessibility finding on one page.
type Violation struct {
	Code          string        `json:"code"`
	Message       string        `json:"message"`
	Severity      Severity      `json:"severity"`
	WCAGCriterion string        `json:"wcag_criterion"`
	WCAGLevel     string        `json:"wcag_level"`
	Selector      string        `json:"selector,omitempty"`
	Snippet       string        `json:"snippet,omitempty"`
	Remediation   string        `json:"remediation,omitempty"`
	Scanners      []ScannerKind `json:"scanners"`
	Count         int           `json:"count"`
	PageURL       string        `json:"page_url,omitempty"`
}

// DedupKey is the within-page deduplication identity: code, criterion and
// the (possibly empty) selector.
func (v Violation) DedupKey() string {
	return v.Code + "|" + v.WCAGCriterion + "|" + strings.TrimSpace(v.Selector)
}

// MergeKey is the cross-page grouping identity: code and criterion only.
func (v Violation) MergeKey() string {
	return v.Code + "|" + v.WCAGCriterion
}

// ScannerStatus records how one scanner fared on one page.
type ScannerStatus string

const (
	StatusOK      ScannerStatus = "ok"
	StatusFailed  ScannerStatus = "failed"
	StatusTimeout ScannerStatus = "timeout"
	StatusSkipped ScannerStatus = "skipped"
)

// PageResult bundles everything the engine learned about one page.
type PageResult struct {
	Page       PageRef                       `json:"page"`
	Scanners   map[ScannerKind]ScannerStatus `json:"scanners"`
	Violations []Violation                   `json:"violations"`
	ElapsedMS  map[ScannerKind]int64         `json:"elapsed_ms"`
}

// PageCount is a per-page occurrence entry inside an aggregated violation.
type PageCount struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// AggregatedViolation is the cross-page merge of one (code, criterion)
// group; this is what reports present.
type AggregatedViolation struct {
	Code          string        `json:"code"`
	Message       string        `json:"message"`
	Severity      Severity      `json:"severity"`
	WCAGCriterion string        `json:"wcag_criterion"`
	WCAGLevel     string        `json:"wcag_level"`
	Remediation   string        `json:"remediation,omitempty"`
	Scanners      []ScannerKind `json:"scanners"`
	TotalCount    int           `json:"total_count"`
	Pages         []PageCount   `json:"pages"`
}

// ComplianceLevel is the EAA conformance verdict.
type ComplianceLevel string

const (
	Conforme             ComplianceLevel = "conforme"
	ParzialmenteConforme ComplianceLevel = "parzialmente_conforme"
	NonConforme          ComplianceLevel = "non_conforme"
)

// SeverityCounts tallies aggregated violations by severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// PrincipleCounts tallies aggregated violations by WCAG principle (POUR).
type PrincipleCounts struct {
	Perceivable    int `json:"perceivable"`
	Operable       int `json:"operable"`
	Understandable int `json:"understandable"`
	Robust         int `json:"robust"`
}

// Metrics is the computed compliance summary for a scan.
type Metrics struct {
	OverallScore    int             `json:"overall_score"`
	ComplianceLevel ComplianceLevel `json:"compliance_level"`
	TotalViolations int             `json:"total_violations"`
	BySeverity      SeverityCounts  `json:"by_severity"`
	ByPrinciple     PrincipleCounts `json:"by_principle"`
	Confidence      float64         `json:"confidence"`
}

// RunTally counts successful and failed runs for one scanner across a scan.
type RunTally struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// Result is the canonical output of a completed scan; it is what
// summary.json holds and what report rendering consumes.
type Result struct {
	ScanID      string                   `json:"scan_id"`
	Request     Request                  `json:"request"`
	Pages       []PageResult             `json:"pages"`
	Violations  []AggregatedViolation    `json:"violations"`
	Metrics     Metrics                  `json:"metrics"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
	ScannerRuns map[ScannerKind]RunTally `json:"scanner_runs"`
}
