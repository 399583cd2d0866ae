package style

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

const spinnerDelay = 100 * time.Millisecond

// Spinner animates one progress line until it is stopped, then replaces
// the line with its final message.
type Spinner interface {
	SetSuffix(suffix string)
	SetFinalMSG(finalMSG string)
	Start()
	Stop()
}

// NewSpinner returns a terminal spinner writing to w. Under CORTEX_TEST
// it returns a RecordingSpinner so stage progress is deterministic.
func NewSpinner(w io.Writer) Spinner {
	if os.Getenv("CORTEX_TEST") == "true" {
		return &RecordingSpinner{w: w}
	}
	s := spinner.New(spinner.CharSets[9], spinnerDelay, spinner.WithWriter(w))
	_ = s.Color("cyan")
	return terminalSpinner{s}
}

type terminalSpinner struct{ *spinner.Spinner }

func (s terminalSpinner) SetSuffix(suffix string)     { s.Suffix = suffix }
func (s terminalSpinner) SetFinalMSG(finalMSG string) { s.FinalMSG = finalMSG }

// RecordingSpinner writes one line per state change instead of animating.
type RecordingSpinner struct {
	mu       sync.Mutex
	w        io.Writer
	finalMSG string
	active   bool
}

func (s *RecordingSpinner) SetSuffix(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[SET SUFFIX] %s\n", suffix)
}

func (s *RecordingSpinner) SetFinalMSG(finalMSG string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalMSG = finalMSG
}

func (s *RecordingSpinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	fmt.Fprintln(s.w, "[SPINNER START]")
}

// Stop is a no-op on a spinner that is not running.
func (s *RecordingSpinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	fmt.Fprintln(s.w, "[SPINNER STOP]")
	if s.finalMSG != "" {
		fmt.Fprintf(s.w, "[FINAL MSG] %s\n", s.finalMSG)
	}
}
