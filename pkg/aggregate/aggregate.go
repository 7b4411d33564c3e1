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

// Package aggregate merges per-page scanner findings into the final scored
// result. It owns the single authoritative scoring formula; every map
// iteration here is sorted so that identical inputs produce byte-identical
// results.
package aggregate

import (
	"sort"
	"time"

	"github.com/varcolabs/varco/pkg/scan"
)

// Severity weights and occurrence caps for the score penalty. The cap
// keeps a single prolific rule from dominating the score.
var (
	severityWeight = map[scan.Severity]int{
		scan.SeverityCritical: 20,
		scan.SeverityHigh:     15,
		scan.SeverityMedium:   8,
		scan.SeverityLow:      3,
	}
	severityCap = map[scan.Severity]int{
		scan.SeverityCritical: 5,
		scan.SeverityHigh:     5,
		scan.SeverityMedium:   5,
		scan.SeverityLow:      3,
	}
)

// Compliance level thresholds on the 0-100 score. Any critical violation
// forces non_conforme regardless of score.
const (
	conformeThreshold     = 85
	parzialmenteThreshold = 60
)

// Aggregate merges the collected page results into the canonical Result:
// per-page dedup, cross-page merge, sort, POUR categorization, score and
// confidence. Deterministic for identical inputs.
func Aggregate(pages []scan.PageResult, req scan.Request, startedAt, completedAt time.Time, scanID string) scan.Result {
	deduped := make([]scan.PageResult, len(pages))
	for i, page := range pages {
		deduped[i] = page
		deduped[i].Violations = DedupPage(page.Violations)
	}

	merged := mergePages(deduped)
	score, level := Score(merged)

	metrics := scan.Metrics{
		OverallScore:    score,
		ComplianceLevel: level,
		TotalViolations: len(merged),
		Confidence:      confidence(deduped),
	}
	for _, v := range merged {
		switch v.Severity {
		case scan.SeverityCritical:
			metrics.BySeverity.Critical++
		case scan.SeverityHigh:
			metrics.BySeverity.High++
		case scan.SeverityMedium:
			metrics.BySeverity.Medium++
		case scan.SeverityLow:
			metrics.BySeverity.Low++
		}
		switch principle(v.WCAGCriterion) {
		case "perceivable":
			metrics.ByPrinciple.Perceivable++
		case "operable":
			metrics.ByPrinciple.Operable++
		case "understandable":
			metrics.ByPrinciple.Understandable++
		default:
			metrics.ByPrinciple.Robust++
		}
	}

	return scan.Result{
		ScanID:      scanID,
		Request:     req,
		Pages:       deduped,
		Violations:  merged,
		Metrics:     metrics,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		ScannerRuns: tallyRuns(deduped),
	}
}

// DedupPage collapses a page's violation list on the within-page identity
// (code, criterion, selector), summing counts and unioning the producing
// scanner sets. First-occurrence order is preserved, which makes the
// operation idempotent.
func DedupPage(violations []scan.Violation) []scan.Violation {
	var out []scan.Violation
	index := map[string]int{}
	for _, v := range violations {
		key := v.DedupKey()
		if i, seen := index[key]; seen {
			out[i].Count += v.Count
			out[i].Scanners = unionKinds(out[i].Scanners, v.Scanners)
			continue
		}
		index[key] = len(out)
		keep := v
		keep.Scanners = unionKinds(nil, v.Scanners)
		out = append(out, keep)
	}
	return out
}

// mergePages groups deduplicated page violations on (code, criterion)
// across pages, carrying the per-page occurrence breakdown, then sorts the
// final list by severity, descending total count and code.
func mergePages(pages []scan.PageResult) []scan.AggregatedViolation {
	var out []scan.AggregatedViolation
	index := map[string]int{}
	for _, page := range pages {
		for _, v := range page.Violations {
			key := v.MergeKey()
			if i, seen := index[key]; seen {
				out[i].TotalCount += v.Count
				out[i].Scanners = unionKinds(out[i].Scanners, v.Scanners)
				out[i].Pages = addPageCount(out[i].Pages, v.PageURL, v.Count)
				continue
			}
			index[key] = len(out)
			out = append(out, scan.AggregatedViolation{
				Code:          v.Code,
				Message:       v.Message,
				Severity:      v.Severity,
				WCAGCriterion: v.WCAGCriterion,
				WCAGLevel:     v.WCAGLevel,
				Remediation:   v.Remediation,
				Scanners:      unionKinds(nil, v.Scanners),
				TotalCount:    v.Count,
				Pages:         []scan.PageCount{{URL: v.PageURL, Count: v.Count}},
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() < out[j].Severity.Rank()
		}
		if out[i].TotalCount != out[j].TotalCount {
			return out[i].TotalCount > out[j].TotalCount
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Score computes the overall 0-100 score and the EAA compliance level for
// an aggregated violation list.
func Score(violations []scan.AggregatedViolation) (int, scan.ComplianceLevel) {
	penalty := 0
	hasCritical := false
	for _, v := range violations {
		if v.Severity == scan.SeverityCritical {
			hasCritical = true
		}
		weight, ok := severityWeight[v.Severity]
		if !ok {
			weight = severityWeight[scan.SeverityMedium]
		}
		limit, ok := severityCap[v.Severity]
		if !ok {
			limit = severityCap[scan.SeverityMedium]
		}
		count := v.TotalCount
		if count > limit {
			count = limit
		}
		penalty += weight * count
	}

	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	switch {
	case hasCritical:
		return score, scan.NonConforme
	case score >= conformeThreshold:
		return score, scan.Conforme
	case score >= parzialmenteThreshold:
		return score, scan.ParzialmenteConforme
	default:
		return score, scan.NonConforme
	}
}

// principle maps a WCAG criterion to its POUR principle by the first
// digit; an absent or unparseable criterion defaults to robust.
func principle(criterion string) string {
	if criterion == "" {
		return "robust"
	}
	switch criterion[0] {
	case '1':
		return "perceivable"
	case '2':
		return "operable"
	case '3':
		return "understandable"
	default:
		return "robust"
	}
}

// confidence is the fraction of attempted scanner runs that succeeded.
// Skipped cells were never attempted and do not count either way; a scan
// with no attempted runs has confidence 0.
func confidence(pages []scan.PageResult) float64 {
	attempted, ok := 0, 0
	for _, page := range pages {
		for _, kind := range scan.AllKinds() {
			status, present := page.Scanners[kind]
			if !present || status == scan.StatusSkipped {
				continue
			}
			attempted++
			if status == scan.StatusOK {
				ok++
			}
		}
	}
	if attempted == 0 {
		return 0
	}
	return float64(ok) / float64(attempted)
}

// tallyRuns counts ok and failed runs per scanner kind across all pages.
func tallyRuns(pages []scan.PageResult) map[scan.ScannerKind]scan.RunTally {
	out := map[scan.ScannerKind]scan.RunTally{}
	for _, page := range pages {
		for _, kind := range scan.AllKinds() {
			status, present := page.Scanners[kind]
			if !present || status == scan.StatusSkipped {
				continue
			}
			tally := out[kind]
			if status == scan.StatusOK {
				tally.OK++
			} else {
				tally.Failed++
			}
			out[kind] = tally
		}
	}
	return out
}

// addPageCount bumps the entry for the URL in the per-page breakdown,
// appending a new entry on first sight. Page order is insertion order,
// which follows the ordered page list.
func addPageCount(pages []scan.PageCount, url string, count int) []scan.PageCount {
	for i := range pages {
		if pages[i].URL == url {
			pages[i].Count += count
			return pages
		}
	}
	return append(pages, scan.PageCount{URL: url, Count: count})
}

// unionKinds merges scanner kind sets preserving the fixed engine order.
func unionKinds(a, b []scan.ScannerKind) []scan.ScannerKind {
	present := map[scan.ScannerKind]bool{}
	for _, k := range a {
		present[k] = true
	}
	for _, k := range b {
		present[k] = true
	}
	var out []scan.ScannerKind
	for _, k := range scan.AllKinds() {
		if present[k] {
			out = append(out, k)
		}
	}
	return out
}
