// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progress tracks in-flight analysis requests: it owns the
// cancellation handle of the single active run and reports a simulated,
// time-paced progress sequence to subscribers while the run is in flight.
//
// The percentages are a UX estimate emitted on a fixed interval. They are not
// measured from the underlying call and must not be read as telemetry.
package progress

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of progress events
type EventType string

const (
	// EventTypeProgress represents a simulated progress update
	EventTypeProgress EventType = "progress"
	// EventTypeComplete represents successful completion
	EventTypeComplete EventType = "complete"
	// EventTypeCancelled represents a cancelled run
	EventTypeCancelled EventType = "cancelled"
	// EventTypeError represents a failed run
	EventTypeError EventType = "error"
)

// Stage labels reported to UI callers
const (
	StageIdle          = ""
	StageInitializing  = "Initializing"
	StageUnderstanding = "Understanding input"
	StageGenerating    = "Generating"
	StageProcessing    = "Processing response"
	StageFinalizing    = "Finalizing"
	StageComplete      = "Complete"
	StageCancelled     = "Cancelled"
	StageFailed        = "Failed"
)

// Step is one entry of the simulated progress sequence
type Step struct {
	Stage    string
	Progress int
}

// SimulatedSteps are emitted one per interval after the initial
// "Initializing" update. Percentages are estimates, strictly increasing.
var SimulatedSteps = []Step{
	{Stage: StageUnderstanding, Progress: 10},
	{Stage: StageGenerating, Progress: 45},
	{Stage: StageProcessing, Progress: 80},
	{Stage: StageFinalizing, Progress: 95},
}

// Event represents a progress event of a single run
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"` // 0-100
	Simulated bool      `json:"simulated"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Terminal reports whether no further events follow for the run
func (e Event) Terminal() bool {
	return e.Type != EventTypeProgress
}

// ToSSEMessage converts an event to Server-Sent Events format
func (e Event) ToSSEMessage() string {
	data, _ := json.Marshal(e)
	return "event: " + string(e.Type) + "\ndata: " + string(data) + "\n\n"
}

// Callback receives events in emission order
type Callback func(event Event)

// State is the observable state of a controller
type State struct {
	Processing bool   `json:"is_processing"`
	Stage      string `json:"stage"`
	Progress   int    `json:"progress"`
	RunID      string `json:"run_id,omitempty"`
}

func newEvent(runID string, eventType EventType, state State, errMsg string) Event {
	return Event{
		ID:        "event_" + uuid.NewString(),
		RunID:     runID,
		Type:      eventType,
		Stage:     state.Stage,
		Progress:  state.Progress,
		Simulated: eventType == EventTypeProgress,
		Timestamp: time.Now(),
		Error:     errMsg,
	}
}
