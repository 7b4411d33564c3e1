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
	"net/url"
	"strings"

	"github.com/varcolabs/varco/pkg/scan"
)

// Simulated is the fixture adapter used in simulate mode: deterministic
// canned JSON keyed by the page URL, no external calls. URLs whose path
// contains "fail" yield a transport failure and "timeout" a timeout, so
// failure handling can be demonstrated offline.
type Simulated struct {
	kind scan.ScannerKind
}

// NewSimulated returns the fixture adapter impersonating the given kind.
func NewSimulated(kind scan.ScannerKind) *Simulated {
	return &Simulated{kind: kind}
}

// Fixed elapsed values per kind, roughly matching each scanner's real
// latency class.
var simulatedElapsed = map[scan.ScannerKind]int64{
	scan.Wave:       1200,
	scan.Pa11y:      2100,
	scan.Axe:        1800,
	scan.Lighthouse: 3500,
}

// Kind implements Interface.
func (s *Simulated) Kind() scan.ScannerKind { return s.kind }

// Scan implements Interface.
func (s *Simulated) Scan(ctx context.Context, page scan.PageRef, cfg Config) scan.RawOutput {
	elapsed := simulatedElapsed[s.kind]

	if ctx.Err() != nil {
		return scan.Failed(scan.NewFailure(scan.FailureTimeout, "run cancelled"), 0)
	}

	path := "/"
	if u, err := url.Parse(page.URL); err == nil {
		path = u.Path
	}
	switch {
	case strings.Contains(path, "timeout"):
		return scan.Failed(scan.NewFailure(scan.FailureTimeout, "simulated timeout"), int64(cfg.TimeoutMs))
	case strings.Contains(path, "fail"):
		return scan.Failed(scan.NewFailure(scan.FailureTransport, "simulated transport failure"), elapsed)
	}

	cfg.reportProgress(50)

	payload := []byte(simulatedPayload(s.kind))
	writeRawArtifact(cfg, s.kind, page, payload)
	return scan.Success(payload, elapsed)
}

// simulatedPayload returns the canned raw output for one scanner kind.
// The fixtures are aligned so that, after normalization and aggregation,
// a one-page simulate scan yields exactly four cross-scanner violations:
// alt_missing (1.1.1), color-contrast (1.4.3, three scanners),
// label_missing (1.3.1) and heading_skipped (1.3.1, two scanners).
func simulatedPayload(kind scan.ScannerKind) string {
	switch kind {
	case scan.Wave:
		return `{
  "status": {"success": true},
  "categories": {
    "error": {
      "count": 2,
      "items": {
        "alt_missing": {"id": "alt_missing", "description": "Missing alternative text", "count": 3},
        "contrast": {"id": "contrast", "description": "Very low contrast", "count": 1}
      }
    },
    "alert": {
      "count": 1,
      "items": {
        "heading_skipped": {"id": "heading_skipped", "description": "Skipped heading level", "count": 1}
      }
    }
  }
}`
	case scan.Pa11y:
		return `[
  {
    "code": "WCAG2AA.Principle1.Guideline1_3.1_3_1.F68",
    "type": "error",
    "message": "This form field should be labelled in some way.",
    "selector": "#newsletter-email",
    "context": "<input type=\"email\" id=\"newsletter-email\">"
  },
  {
    "code": "WCAG2AA.Principle1.Guideline1_3.1_3_1.G141",
    "type": "notice",
    "message": "Check that the heading structure is logically nested.",
    "selector": "h3"
  }
]`
	case scan.Axe:
		return `{
  "violations": [
    {
      "id": "color-contrast",
      "impact": "serious",
      "help": "Elements must have sufficient color contrast",
      "tags": ["cat.color", "wcag2aa", "wcag143"],
      "nodes": [
        {"html": "<p class=\"subtitle\">Welcome</p>", "target": ["p.subtitle"]}
      ]
    }
  ]
}`
	case scan.Lighthouse:
		return `{
  "audits": {
    "color-contrast": {
      "id": "color-contrast",
      "title": "Background and foreground colors do not have a sufficient contrast ratio.",
      "score": 0
    },
    "image-alt": {
      "id": "image-alt",
      "title": "Image elements have [alt] attributes",
      "score": 1
    }
  },
  "categories": {"accessibility": {"score": 0.74}}
}`
	}
	return "{}"
}
