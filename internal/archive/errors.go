package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalProcess is wrapped by every ProcessError
	ErrExternalProcess = errors.New("external decompression failed")

	// ErrMemberNotFound means an unpacked archive lacked the expected file
	ErrMemberNotFound = errors.New("expected archive member not found")
)

// ProcessError reports a failed run of the external decompression command
type ProcessError struct {
	Command []string
	Output  string
	Err     error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ProcessError) Unwrap() []error {
	return []error{ErrExternalProcess, e.Err}
}
