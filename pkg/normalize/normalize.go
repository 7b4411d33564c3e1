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

// Package normalize converts raw scanner output into the canonical
// Violation model. It is the only layer allowed to tolerate loosely shaped
// data: real scanner output is frequently partial, so a structural
// deviation logs a warning and contributes zero violations instead of
// failing the run.
package normalize

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/scan"
)

// Normalize converts one scanner's raw output for one page into canonical
// violations. Pure modulo logging; failed or empty output yields nil.
func Normalize(kind scan.ScannerKind, raw scan.RawOutput, page scan.PageRef) []scan.Violation {
	if !raw.OK() || len(raw.Payload) == 0 {
		return nil
	}

	log := logrus.WithFields(logrus.Fields{"scanner": kind, "url": page.URL})

	var violations []scan.Violation
	switch kind {
	case scan.Wave:
		violations = normalizeWave(raw.Payload, page, log)
	case scan.Pa11y:
		violations = normalizePa11y(raw.Payload, page, log)
	case scan.Axe:
		violations = normalizeAxe(raw.Payload, page, log)
	case scan.Lighthouse:
		violations = normalizeLighthouse(raw.Payload, page, log)
	default:
		log.Warningf("no normalizer for scanner %q, dropping output", kind)
	}
	return violations
}

// newViolation fills the fields every scanner-specific normalizer shares.
func newViolation(kind scan.ScannerKind, page scan.PageRef, code, message string, sev scan.Severity, criterion string, count int) scan.Violation {
	c := canonical(code)
	if count < 1 {
		count = 1
	}
	return scan.Violation{
		Code:          c,
		Message:       message,
		Severity:      sev,
		WCAGCriterion: criterion,
		WCAGLevel:     levelFor(criterion),
		Remediation:   remediationFor(c),
		Scanners:      []scan.ScannerKind{kind},
		Count:         count,
		PageURL:       page.URL,
	}
}

type waveItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

type waveCategory struct {
	Items map[string]waveItem `json:"items"`
}

type waveReport struct {
	Categories struct {
		Error waveCategory `json:"error"`
		Alert waveCategory `json:"alert"`
	} `json:"categories"`
}

func normalizeWave(payload []byte, page scan.PageRef, log logrus.FieldLogger) []scan.Violation {
	var report waveReport
	if err := json.Unmarshal(payload, &report); err != nil {
		log.WithError(err).Warning("malformed WAVE payload, skipping")
		return nil
	}

	var out []scan.Violation
	for _, code := range sortedKeys(report.Categories.Error.Items) {
		item := report.Categories.Error.Items[code]
		sev, ok := waveSeverity[code]
		if !ok {
			sev = scan.SeverityMedium
		}
		out = append(out, newViolation(scan.Wave, page, code, waveMessage(code, item), sev, waveCriterion[code], item.Count))
	}
	for _, code := range sortedKeys(report.Categories.Alert.Items) {
		item := report.Categories.Alert.Items[code]
		out = append(out, newViolation(scan.Wave, page, code, waveMessage(code, item), scan.SeverityLow, waveCriterion[code], item.Count))
	}
	return out
}

func waveMessage(code string, item waveItem) string {
	if item.Description != "" {
		return item.Description
	}
	return "WAVE reported " + code
}

type pa11yIssue struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Selector string `json:"selector"`
	Context  string `json:"context"`
}

var pa11yCriterionRe = regexp.MustCompile(`^\d+_\d+(_\d+)?$`)

func normalizePa11y(payload []byte, page scan.PageRef, log logrus.FieldLogger) []scan.Violation {
	var issues []json.RawMessage
	if err := json.Unmarshal(payload, &issues); err != nil {
		// pa11y can also wrap issues in an object when run with certain
		// reporters; accept that shape too.
		var wrapped struct {
			Issues []json.RawMessage `json:"issues"`
		}
		if err2 := json.Unmarshal(payload, &wrapped); err2 != nil {
			log.WithError(err).Warning("malformed pa11y payload, skipping")
			return nil
		}
		issues = wrapped.Issues
	}

	var out []scan.Violation
	for _, rawIssue := range issues {
		var issue pa11yIssue
		if err := json.Unmarshal(rawIssue, &issue); err != nil {
			log.WithError(err).Warning("malformed pa11y issue, skipping")
			continue
		}

		var sev scan.Severity
		switch issue.Type {
		case "error":
			sev = scan.SeverityHigh
		case "warning":
			sev = scan.SeverityMedium
		case "notice":
			sev = scan.SeverityLow
		default:
			log.Warningf("unknown pa11y issue type %q, skipping", issue.Type)
			continue
		}

		criterion := pa11yCriterion(issue.Code)
		v := newViolation(scan.Pa11y, page, pa11yCode(issue.Code), issue.Message, sev, criterion, 1)
		v.Selector = issue.Selector
		v.Snippet = issue.Context
		out = append(out, v)
	}
	return out
}

// pa11yCriterion extracts the WCAG criterion from a dotted pa11y code such
// as WCAG2AA.Principle1.Guideline1_1.1_1_1.H37. Segments are scanned from
// the end for the first digit triple (or pair) so both plain and
// trailing-technique forms parse.
func pa11yCriterion(code string) string {
	segments := strings.Split(code, ".")
	for i := len(segments) - 1; i >= 0; i-- {
		if pa11yCriterionRe.MatchString(segments[i]) {
			return strings.ReplaceAll(segments[i], "_", ".")
		}
	}
	return ""
}

// pa11yCode picks the technique id (H37, G18, ...) out of the dotted code
// when one is present, so the canonical-code table can unify it with the
// other scanners; otherwise the full dotted code is kept.
func pa11yCode(code string) string {
	segments := strings.Split(code, ".")
	for i := len(segments) - 1; i >= 0; i-- {
		// Techniques may be comma-joined, e.g. "G18,G145".
		for _, tech := range strings.Split(segments[i], ",") {
			if _, ok := canonicalCode[tech]; ok {
				return tech
			}
		}
		if pa11yCriterionRe.MatchString(segments[i]) {
			break
		}
	}
	return code
}

type axeNode struct {
	HTML           string        `json:"html"`
	Target         []interface{} `json:"target"`
	FailureSummary string        `json:"failureSummary"`
}

type axeViolation struct {
	ID     string    `json:"id"`
	Impact string    `json:"impact"`
	Help   string    `json:"help"`
	Tags   []string  `json:"tags"`
	Nodes  []axeNode `json:"nodes"`
}

var axeTagRe = regexp.MustCompile(`^wcag(\d{3,4})$`)

func normalizeAxe(payload []byte, page scan.PageRef, log logrus.FieldLogger) []scan.Violation {
	var report struct {
		Violations []json.RawMessage `json:"violations"`
	}
	if err := json.Unmarshal(payload, &report); err != nil {
		// The axe CLI emits an array of result objects, one per URL.
		var multi []struct {
			Violations []json.RawMessage `json:"violations"`
		}
		if err2 := json.Unmarshal(payload, &multi); err2 != nil || len(multi) == 0 {
			log.WithError(err).Warning("malformed axe payload, skipping")
			return nil
		}
		report.Violations = multi[0].Violations
	}

	var out []scan.Violation
	for _, rawV := range report.Violations {
		var av axeViolation
		if err := json.Unmarshal(rawV, &av); err != nil {
			log.WithError(err).Warning("malformed axe violation, skipping")
			continue
		}

		var sev scan.Severity
		switch av.Impact {
		case "critical":
			sev = scan.SeverityCritical
		case "serious":
			sev = scan.SeverityHigh
		case "moderate":
			sev = scan.SeverityMedium
		case "minor":
			sev = scan.SeverityLow
		default:
			sev = scan.SeverityMedium
		}

		v := newViolation(scan.Axe, page, av.ID, av.Help, sev, axeCriterion(av.Tags), maxInt(len(av.Nodes), 1))
		if len(av.Nodes) > 0 {
			v.Selector = firstString(av.Nodes[0].Target)
			v.Snippet = av.Nodes[0].HTML
		}
		out = append(out, v)
	}
	return out
}

// axeCriterion resolves the WCAG criterion from axe rule tags of the form
// wcag143 (1.4.3) or wcag1410 (1.4.10).
func axeCriterion(tags []string) string {
	for _, tag := range tags {
		m := axeTagRe.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		digits := m[1]
		if len(digits) == 3 {
			return digits[0:1] + "." + digits[1:2] + "." + digits[2:3]
		}
		return digits[0:1] + "." + digits[1:2] + "." + digits[2:4]
	}
	return ""
}

type lighthouseAudit struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Score       *float64 `json:"score"`
}

func normalizeLighthouse(payload []byte, page scan.PageRef, log logrus.FieldLogger) []scan.Violation {
	var report struct {
		Audits map[string]json.RawMessage `json:"audits"`
	}
	if err := json.Unmarshal(payload, &report); err != nil {
		log.WithError(err).Warning("malformed lighthouse payload, skipping")
		return nil
	}

	var out []scan.Violation
	for _, id := range sortedKeys(report.Audits) {
		criterion, considered := lighthouseAudits[id]
		if !considered {
			continue
		}
		var audit lighthouseAudit
		if err := json.Unmarshal(report.Audits[id], &audit); err != nil {
			log.WithError(err).Warningf("malformed lighthouse audit %q, skipping", id)
			continue
		}
		if audit.Score == nil || *audit.Score >= 1 {
			continue
		}

		sev := scan.SeverityMedium
		if strings.HasPrefix(id, "aria-") || id == "color-contrast" {
			sev = scan.SeverityHigh
		}

		msg := audit.Title
		if msg == "" {
			msg = "Lighthouse audit " + id + " failed"
		}
		out = append(out, newViolation(scan.Lighthouse, page, id, msg, sev, criterion, 1))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstString(vals []interface{}) string {
	for _, v := range vals {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
