// Package events provides the progress events emitted while a diagnostic
// run executes, and the Listener interface used to consume them.
//
// A run emits run_started, then a started and a completed, failed or
// skipped event for every stage, and finally run_completed or run_failed.
package events

import (
	"time"
)

// EventType identifies a progress event.
type EventType string

const (
	// EventRunStarted is emitted when a diagnostic run begins.
	EventRunStarted EventType = "run_started"

	// EventRunCompleted is emitted when the report has been assembled.
	EventRunCompleted EventType = "run_completed"

	// EventRunFailed is emitted when the input cannot be analyzed at all.
	EventRunFailed EventType = "run_failed"

	// EventStageStarted is emitted when a stage begins.
	EventStageStarted EventType = "stage_started"

	// EventStageCompleted is emitted when a stage produced a result.
	EventStageCompleted EventType = "stage_completed"

	// EventStageFailed is emitted when a stage failed. The run continues.
	EventStageFailed EventType = "stage_failed"

	// EventStageSkipped is emitted when a stage had nothing to do.
	EventStageSkipped EventType = "stage_skipped"
)

// Event is a single progress notification.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	// Stage is empty for run-level events.
	Stage string `json:"stage,omitempty"`
	// StageIndex is the one-based position of the stage in the pipeline.
	StageIndex  int            `json:"stage_index,omitempty"`
	TotalStages int            `json:"total_stages,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Error       string         `json:"error,omitempty"`
	Text        string         `json:"text,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Listener consumes the events of a run.
type Listener interface {
	// StartListening reads events until the channel is closed.
	StartListening(progressChan <-chan Event)

	// StopListening is called once the run has finished.
	StopListening()
}

// NoopListener discards events.
type NoopListener struct{}

func (n *NoopListener) StartListening(progressChan <-chan Event) {
	for range progressChan {
	}
}

func (n *NoopListener) StopListening() {}

// Collector records every event it receives. It is mostly useful in tests
// and for replaying a finished run.
type Collector struct {
	Events []Event
	done   chan struct{}
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func (c *Collector) StartListening(progressChan <-chan Event) {
	defer close(c.done)
	for e := range progressChan {
		c.Events = append(c.Events, e)
	}
}

// StopListening waits until the event channel has been drained.
func (c *Collector) StopListening() {
	<-c.done
}

// Types returns the type of each recorded event in order.
func (c *Collector) Types() []EventType {
	out := make([]EventType, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Type
	}
	return out
}
