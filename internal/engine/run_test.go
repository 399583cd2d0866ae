package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgEvents "github.com/lacquerai/cortex/pkg/events"
)

func stageEvent(typ pkgEvents.EventType, s Stage) pkgEvents.Event {
	return pkgEvents.Event{Type: typ, Stage: string(s), StageIndex: s.index(), TotalStages: len(Stages)}
}

func TestProgressTracker(t *testing.T) {
	t.Setenv("CORTEX_TEST", "true")

	var out bytes.Buffer
	tracker := NewProgressTracker(&out)

	ch := make(chan pkgEvents.Event, 16)
	go tracker.StartListening(ch)

	ch <- pkgEvents.Event{Type: pkgEvents.EventRunStarted}
	ch <- stageEvent(pkgEvents.EventStageStarted, StageSchema)
	completed := stageEvent(pkgEvents.EventStageCompleted, StageSchema)
	completed.Duration = 12 * time.Millisecond
	ch <- completed
	ch <- stageEvent(pkgEvents.EventStageStarted, StageModeling)
	failed := stageEvent(pkgEvents.EventStageFailed, StageModeling)
	failed.Error = "Cross-validation failed."
	ch <- failed
	ch <- stageEvent(pkgEvents.EventStageStarted, StageBias)
	skipped := stageEvent(pkgEvents.EventStageSkipped, StageBias)
	skipped.Text = MsgBiasSkipped
	ch <- skipped
	ch <- stageEvent(pkgEvents.EventStageStarted, StageScore)
	// an event for a stage that never started is ignored
	ch <- stageEvent(pkgEvents.EventStageCompleted, StageNarrative)
	close(ch)

	tracker.StopListening()
	require.True(t, tracker.HasCompleted())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var starts, stops, finals []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "[SPINNER START]"):
			starts = append(starts, line)
		case strings.HasPrefix(line, "[SPINNER STOP]"):
			stops = append(stops, line)
		case strings.HasPrefix(line, "[FINAL MSG]"):
			finals = append(finals, line)
		}
	}

	assert.Len(t, starts, 4)
	assert.Len(t, stops, 4, "the running score spinner is stopped on StopListening")
	require.Len(t, finals, 3)
	assert.Contains(t, finals[0], "schema (1/9)")
	assert.Contains(t, finals[0], "12ms")
	assert.Contains(t, finals[1], "modeling (7/9)")
	assert.Contains(t, finals[1], "Cross-validation failed.")
	assert.Contains(t, finals[2], "bias (5/9)")
	assert.Contains(t, finals[2], MsgBiasSkipped)
	assert.Contains(t, out.String(), "Running")
}

func TestRunnerWithoutListener(t *testing.T) {
	runner := NewRunner(New(WithModeler(nil)), nil)
	rep, err := runner.Run(context.Background(), Request{Data: loans(20), Target: "approved"})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)

	runner.SetProgressListener(&pkgEvents.NoopListener{})
	_, err = runner.Run(context.Background(), Request{Data: loans(20), Target: "approved"})
	require.NoError(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Empty(t, formatDuration(0))
	assert.Contains(t, formatDuration(1500*time.Microsecond), "2ms")
}
