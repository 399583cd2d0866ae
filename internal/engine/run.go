package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lacquerai/cortex/internal/style"
	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

// Runner runs the pipeline and feeds its progress events to a listener.
type Runner struct {
	orchestrator     *Orchestrator
	progressListener pkgEvents.Listener
}

// NewRunner creates a runner. A nil listener discards progress.
func NewRunner(o *Orchestrator, progressListener pkgEvents.Listener) *Runner {
	return &Runner{orchestrator: o, progressListener: progressListener}
}

// SetProgressListener replaces the progress listener.
func (r *Runner) SetProgressListener(listener pkgEvents.Listener) {
	r.progressListener = listener
}

// Run executes one diagnostic run.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	return r.RunWithID(ctx, NewRunID(), req)
}

// RunWithID executes one diagnostic run under the given identifier.
func (r *Runner) RunWithID(ctx context.Context, runID string, req Request) (*Report, error) {
	if r.progressListener == nil {
		return r.orchestrator.RunWithID(ctx, runID, req, nil)
	}

	progressChan := make(chan pkgEvents.Event, 100)
	go r.progressListener.StartListening(progressChan)

	rep, err := r.orchestrator.RunWithID(ctx, runID, req, progressChan)
	close(progressChan)
	r.progressListener.StopListening()

	return rep, err
}

// stageProgress is the display state of one running stage.
type stageProgress struct {
	stage   string
	index   int
	total   int
	status  string // "running", "completed", "failed", "skipped"
	title   string
	spinner style.Spinner
}

// CLIProgressTracker shows one spinner per pipeline stage.
type CLIProgressTracker struct {
	stages map[string]*stageProgress
	mu     sync.Mutex
	writer io.Writer
	done   chan struct{}
}

// NewProgressTracker creates a tracker writing to writer.
func NewProgressTracker(writer io.Writer) *CLIProgressTracker {
	return &CLIProgressTracker{
		stages: make(map[string]*stageProgress),
		writer: writer,
		done:   make(chan struct{}),
	}
}

// StartListening renders events until the channel is closed.
func (pt *CLIProgressTracker) StartListening(progressChan <-chan pkgEvents.Event) {
	defer close(pt.done)

	for event := range progressChan {
		switch event.Type {
		case pkgEvents.EventStageStarted:
			pt.startStage(event)
		case pkgEvents.EventStageCompleted:
			pt.finishStage(event.Stage, "completed", style.SuccessIcon(), formatDuration(event.Duration))
		case pkgEvents.EventStageFailed:
			pt.finishStage(event.Stage, "failed", style.ErrorIcon(), style.ErrorStyle.Render(event.Error))
		case pkgEvents.EventStageSkipped:
			pt.finishStage(event.Stage, "skipped", style.SkipIcon(), style.MutedStyle.Render(event.Text))
		}
	}
}

// StopListening waits for the event channel to drain and stops any
// spinner that is still running.
func (pt *CLIProgressTracker) StopListening() {
	<-pt.done

	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, state := range pt.stages {
		if state.status == "running" {
			state.spinner.Stop()
		}
	}
}

// HasCompleted reports whether the event stream has ended.
func (pt *CLIProgressTracker) HasCompleted() bool {
	select {
	case <-pt.done:
		return true
	default:
		return false
	}
}

func (pt *CLIProgressTracker) startStage(event pkgEvents.Event) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	s := style.NewSpinner(pt.writer)
	title := fmt.Sprintf(" Running %s (%d/%d)", style.AccentStyle.Render(event.Stage), event.StageIndex, event.TotalStages)
	s.SetSuffix(title)

	pt.stages[event.Stage] = &stageProgress{
		stage:   event.Stage,
		index:   event.StageIndex,
		total:   event.TotalStages,
		status:  "running",
		title:   title,
		spinner: s,
	}
	s.Start()
}

func (pt *CLIProgressTracker) finishStage(stage, status, icon, detail string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	state, ok := pt.stages[stage]
	if !ok {
		return
	}
	state.status = status
	msg := fmt.Sprintf("%s %s (%d/%d)", icon, stage, state.index, state.total)
	if detail != "" {
		msg += " " + detail
	}
	state.spinner.SetFinalMSG(msg + "\n")
	state.spinner.Stop()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return style.MutedStyle.Render(d.Round(time.Millisecond).String())
}
