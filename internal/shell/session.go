// Package shell runs the live command shell the agent types into and fans
// its output out to subscribers.
package shell

import "errors"

// ErrClosed is returned when writing to a session whose shell has exited.
var ErrClosed = errors.New("shell session closed")

// Chunk is a piece of shell output as it arrived.
type Chunk struct {
	SessionID string
	Data      string
}

// Session is a running shell.
type Session interface {
	ID() string
	// Write sends text to the shell's input verbatim.
	Write(text string) error
	// Subscribe returns a channel of output chunks and a function that stops
	// delivery. The function may be called any number of times.
	Subscribe() (<-chan Chunk, func())
}
