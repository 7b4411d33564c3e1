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

// ScannerKind identifies one of the external accessibility scanners the
// engine knows how to drive. The set is closed; adapters and normalizers
// are keyed by it.
type ScannerKind string

const (
	Wave       ScannerKind = "wave"
	Pa11y      ScannerKind = "pa11y"
	Axe        ScannerKind = "axe"
	Lighthouse ScannerKind = "lighthouse"
)

// LatencyClass is a coarse expectation of how long one run of a scanner
// usually takes; the CLI uses it to order output and pick poll intervals.
type LatencyClass string

const (
	LatencyFast   LatencyClass = "fast"
	LatencyMedium LatencyClass = "medium"
	LatencySlow   LatencyClass = "slow"
)

// Descriptor carries the static traits of a scanner kind.
type Descriptor struct {
	Kind           ScannerKind  `json:"kind"`
	RequiresAPIKey bool         `json:"requires_api_key"`
	Latency        LatencyClass `json:"latency"`

	// Criteria is the subset of WCAG 2.1 success criteria the scanner is
	// able to detect. Informational; aggregation does not consult it.
	Criteria []string `json:"criteria"`
}

var descriptors = map[ScannerKind]Descriptor{
	Wave: {
		Kind:           Wave,
		RequiresAPIKey: true,
		Latency:        LatencyFast,
		Criteria:       []string{"1.1.1", "1.3.1", "1.4.3", "2.4.2", "2.4.4", "3.1.1", "3.3.2"},
	},
	Pa11y: {
		Kind:     Pa11y,
		Latency:  LatencyMedium,
		Criteria: []string{"1.1.1", "1.3.1", "1.4.3", "2.4.1", "2.4.4", "3.1.1", "3.3.2", "4.1.2"},
	},
	Axe: {
		Kind:     Axe,
		Latency:  LatencyMedium,
		Criteria: []string{"1.1.1", "1.3.1", "1.4.3", "2.1.1", "2.4.2", "2.4.4", "3.1.1", "4.1.1", "4.1.2"},
	},
	Lighthouse: {
		Kind:     Lighthouse,
		Latency:  LatencySlow,
		Criteria: []string{"1.1.1", "1.3.1", "1.4.3", "2.4.2", "2.4.4", "3.1.1", "4.1.2"},
	},
}

// AllKinds returns every known scanner kind in the fixed engine order.
func AllKinds() []ScannerKind {
	return []ScannerKind{Wave, Pa11y, Axe, Lighthouse}
}

// DescriptorFor returns the static descriptor for the given kind.
func DescriptorFor(kind ScannerKind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// ValidKind reports whether kind names a known scanner.
func ValidKind(kind ScannerKind) bool {
	_, ok := descriptors[kind]
	return ok
}
