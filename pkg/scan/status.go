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

// State is the lifecycle state of a scan. Transitions are strictly
// monotonic: pending → running → one of the terminal states, with direct
// pending → failed/cancelled allowed for scans that never start.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

var legalTransitions = map[State][]State{
	StatePending: {StateRunning, StateFailed, StateCancelled},
	StateRunning: {StateCompleted, StateFailed, StateCancelled},
}

// CanTransition reports whether moving from one state to another respects
// the lifecycle FSM.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status is the registry's view of one scan: lifecycle state, progress and
// the request snapshot. The registry owns it exclusively; everyone else
// sees clones.
type Status struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	Request Request `json:"request"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// FailureReason is the coarse client-visible reason when State is
	// failed; details never travel here.
	FailureReason string `json:"failure_reason,omitempty"`

	// CancelRequested is set as soon as a cancel call is accepted, before
	// the scan reaches the cancelled state.
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// Clone returns a deep copy safe to hand outside the registry.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	out := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
