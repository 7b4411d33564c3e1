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

import "encoding/json"

// FailureKind classifies why a scanner run failed. The kind decides
// retryability and the coarse reason shown to clients.
type FailureKind string

const (
	// FailureConfiguration covers missing API keys, missing binaries and
	// anything else that cannot improve by retrying.
	FailureConfiguration FailureKind = "configuration_error"

	// FailureTimeout means the adapter's own deadline expired. Not retried
	// at the adapter level.
	FailureTimeout FailureKind = "timeout"

	// FailureTransport covers network errors, broken pipes and transient
	// subprocess exits. Retryable.
	FailureTransport FailureKind = "transport_error"

	// FailureProtocol means the scanner ran but produced output we cannot
	// parse. Not retryable.
	FailureProtocol FailureKind = "protocol_error"
)

// Coarse client-visible failure reasons. These are the only strings that
// travel in events and status messages; everything else stays in run.log.
const (
	ReasonTimeout            = "timeout"
	ReasonScannerUnavailable = "scanner_unavailable"
	ReasonSeedUnreachable    = "seed_unreachable"
	ReasonInternalError      = "internal_error"
	ReasonAllScannersFailed  = "all_scanners_failed"
	ReasonCancelled          = "cancelled"
)

// Failure describes a failed scanner run.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// NewFailure builds a Failure with retryability derived from the kind.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{
		Kind:      kind,
		Message:   message,
		Retryable: kind == FailureTransport,
	}
}

// ClientReason maps a failure kind to the coarse reason string exposed to
// clients in events and status messages. Precise diagnostics stay in logs
// and artifacts.
func (f *Failure) ClientReason() string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case FailureTimeout:
		return ReasonTimeout
	default:
		return ReasonScannerUnavailable
	}
}

// RawOutput is the result of one scanner run against one page: either an
// opaque JSON payload or a typed failure, never both. It is consumed by the
// normalizer and only persisted best-effort for debugging; the Violation
// set derived from it is the authoritative record.
type RawOutput struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`

	// ElapsedMS is how long the run took, as measured by the adapter.
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Success wraps a raw payload in a RawOutput.
func Success(payload []byte, elapsedMS int64) RawOutput {
	return RawOutput{Payload: payload, ElapsedMS: elapsedMS}
}

// Failed wraps a Failure in a RawOutput.
func Failed(f *Failure, elapsedMS int64) RawOutput {
	return RawOutput{Failure: f, ElapsedMS: elapsedMS}
}

// OK reports whether the run produced a payload.
func (o RawOutput) OK() bool {
	return o.Failure == nil
}
