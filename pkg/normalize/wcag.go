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

package normalize

import "github.com/varcolabs/varco/pkg/scan"

// Static mapping tables. These encode how each scanner's native vocabulary
// projects onto WCAG 2.1 and onto the canonical rule codes used for
// cross-scanner deduplication. Unknown inputs fall through to documented
// defaults rather than being dropped.

// waveSeverity grades WAVE error items. Codes absent from the table are
// medium; alert items are always low regardless of code.
var waveSeverity = map[string]scan.Severity{
	"alt_missing":       scan.SeverityCritical,
	"alt_link_missing":  scan.SeverityCritical,
	"alt_input_missing": scan.SeverityCritical,
	"contrast":          scan.SeverityHigh,
	"label_missing":     scan.SeverityHigh,
	"button_empty":      scan.SeverityHigh,
	"link_empty":        scan.SeverityHigh,
	"language_missing":  scan.SeverityMedium,
	"title_invalid":     scan.SeverityMedium,
	"heading_skipped":   scan.SeverityMedium,
}

// waveCriterion maps WAVE item codes to WCAG success criteria.
var waveCriterion = map[string]string{
	"alt_missing":       "1.1.1",
	"alt_link_missing":  "1.1.1",
	"alt_input_missing": "1.1.1",
	"alt_suspicious":    "1.1.1",
	"alt_redundant":     "1.1.1",
	"contrast":          "1.4.3",
	"label_missing":     "3.3.2",
	"label_empty":       "3.3.2",
	"button_empty":      "4.1.2",
	"link_empty":        "2.4.4",
	"link_redirect":     "2.4.4",
	"language_missing":  "3.1.1",
	"title_invalid":     "2.4.2",
	"heading_missing":   "1.3.1",
	"heading_skipped":   "1.3.1",
	"heading_empty":     "1.3.1",
	"th_empty":          "1.3.1",
	"fieldset_missing":  "1.3.1",
}

// lighthouseAudits is the fixed set of Lighthouse accessibility audit ids
// the normalizer considers, with the WCAG criterion each one maps to.
// Audits outside this table are ignored even when they score below 1.
var lighthouseAudits = map[string]string{
	"image-alt":             "1.1.1",
	"input-image-alt":       "1.1.1",
	"color-contrast":        "1.4.3",
	"document-title":        "2.4.2",
	"link-name":             "2.4.4",
	"button-name":           "4.1.2",
	"html-has-lang":         "3.1.1",
	"html-lang-valid":       "3.1.1",
	"label":                 "3.3.2",
	"heading-order":         "1.3.1",
	"list":                  "1.3.1",
	"listitem":              "1.3.1",
	"duplicate-id":          "4.1.1",
	"frame-title":           "2.4.1",
	"meta-viewport":         "1.4.4",
	"tabindex":              "2.4.3",
	"aria-allowed-attr":     "4.1.2",
	"aria-hidden-body":      "4.1.2",
	"aria-hidden-focus":     "4.1.2",
	"aria-required-attr":    "4.1.2",
	"aria-roles":            "4.1.2",
	"aria-valid-attr":       "4.1.2",
	"aria-valid-attr-value": "4.1.2",
	"video-caption":         "1.2.2",
}

// wcagLevel maps success criteria to their conformance level. Criteria not
// in the table are assumed AA, the level this engine audits at.
var wcagLevel = map[string]string{
	"1.1.1":  "A",
	"1.2.2":  "A",
	"1.3.1":  "A",
	"1.4.3":  "AA",
	"1.4.4":  "AA",
	"1.4.10": "AA",
	"1.4.11": "AA",
	"2.1.1":  "A",
	"2.4.1":  "A",
	"2.4.2":  "A",
	"2.4.3":  "A",
	"2.4.4":  "A",
	"2.4.6":  "AA",
	"2.4.7":  "AA",
	"3.1.1":  "A",
	"3.1.2":  "AA",
	"3.3.1":  "A",
	"3.3.2":  "A",
	"4.1.1":  "A",
	"4.1.2":  "A",
}

// canonicalCode unifies rule ids that denote the same underlying rule
// across scanners so cross-scanner deduplication works. The map covers
// WAVE item codes, Pa11y technique ids and axe/Lighthouse rule ids; ids
// not in the table pass through unchanged.
var canonicalCode = map[string]string{
	// WAVE
	"alt_missing":      "alt_missing",
	"contrast":         "color-contrast",
	"heading_skipped":  "heading_skipped",
	"label_missing":    "label_missing",
	"link_empty":       "link_empty",
	"language_missing": "language_missing",
	"title_invalid":    "title_invalid",
	"button_empty":     "button_empty",
	// Pa11y techniques
	"H37":  "alt_missing",
	"G18":  "color-contrast",
	"G145": "color-contrast",
	"G141": "heading_skipped",
	"F68":  "label_missing",
	"H91":  "link_empty",
	"H57":  "language_missing",
	// axe / Lighthouse
	"image-alt":      "alt_missing",
	"color-contrast": "color-contrast",
	"heading-order":  "heading_skipped",
	"label":          "label_missing",
	"link-name":      "link_empty",
	"html-has-lang":  "language_missing",
	"document-title": "title_invalid",
	"button-name":    "button_empty",
}

// remediation holds fix hints for the canonical rules the engine sees most.
var remediation = map[string]string{
	"alt_missing":      "Add a descriptive alt attribute to every informative image; use alt=\"\" for purely decorative ones.",
	"color-contrast":   "Increase the contrast ratio between text and its background to at least 4.5:1 (3:1 for large text).",
	"heading_skipped":  "Keep heading levels sequential; do not jump from h1 to h3.",
	"label_missing":    "Associate every form control with a label element or an aria-label.",
	"link_empty":       "Give every link discernible text or an accessible name.",
	"language_missing": "Declare the document language with a lang attribute on the html element.",
	"title_invalid":    "Give the page a concise, descriptive title element.",
	"button_empty":     "Give every button discernible text or an accessible name.",
}

// canonical resolves a scanner-native rule id to its canonical code.
func canonical(code string) string {
	if c, ok := canonicalCode[code]; ok {
		return c
	}
	return code
}

// levelFor returns the WCAG conformance level of a criterion, AA if unknown.
func levelFor(criterion string) string {
	if l, ok := wcagLevel[criterion]; ok {
		return l
	}
	return "AA"
}

// remediationFor returns the fix hint for a canonical code, if one exists.
func remediationFor(code string) string {
	return remediation[code]
}
