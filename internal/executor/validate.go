package executor

import (
	"errors"
	"strings"
)

// MaxCommandLength is the longest command the executor sends to the shell.
const MaxCommandLength = 2000

var (
	ErrEmptyCommand    = errors.New("command is empty")
	ErrCommandTooLong  = errors.New("command exceeds maximum length")
	ErrMultiLine       = errors.New("command spans multiple lines")
	ErrNULByte         = errors.New("command contains a NUL byte")
	ErrMarkerInjection = errors.New("command contains the completion marker")
)

// ValidateCommand applies the structural checks every generated command must
// pass before it reaches the shell.
func ValidateCommand(command string) error {
	switch {
	case strings.TrimSpace(command) == "":
		return ErrEmptyCommand
	case len(command) > MaxCommandLength:
		return ErrCommandTooLong
	case strings.ContainsAny(command, "\r\n"):
		return ErrMultiLine
	case strings.ContainsRune(command, 0):
		return ErrNULByte
	case strings.Contains(command, markerPrefix):
		return ErrMarkerInjection
	}
	return nil
}
