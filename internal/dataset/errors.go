package dataset

import (
	"fmt"
	"strings"
)

const (
	ReasonEmpty            = "The uploaded dataset is empty."
	ReasonDuplicateColumns = "Duplicate column names detected"
	ReasonUnparseable      = "The uploaded dataset could not be parsed as CSV"
)

// MalformedInputError rejects an input before any analysis runs.
type MalformedInputError struct {
	Reason string
	// Names lists offending column names, when the reason concerns columns.
	Names []string
	Err   error
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	if len(e.Names) > 0 {
		fmt.Fprintf(&b, ": [%s]", strings.Join(e.Names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedInputError) Unwrap() error { return e.Err }
