package device

import (
	"errors"
	"fmt"
)

// ErrUnknownState reports a state name that UnmarshalText cannot decode.
var ErrUnknownState = errors.New("unknown device state")

// State is the lifecycle state of a device's stack.
type State int

const (
	// StateUninitialized means no buffer is allocated.
	StateUninitialized State = iota
	// StateReady means the buffer exists and accepts push, pop and resize.
	StateReady
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uninitialized":
		*s = StateUninitialized
	case "ready":
		*s = StateReady
	default:
		return fmt.Errorf("%w: %q", ErrUnknownState, text)
	}

	return nil
}

// Op names a device operation.
type Op string

// Device operations.
const (
	OpOpen    Op = "open"
	OpRelease Op = "release"
	OpPush    Op = "push"
	OpPop     Op = "pop"
	OpResize  Op = "resize"
	OpControl Op = "control"
	OpClose   Op = "close"
)

// Command is a control command number.
type Command uint

// CmdResize changes the stack capacity to the command argument.
const CmdResize Command = 1

// Shape is the observable size of a device at one instant.
type Shape struct {
	State State `json:"state"`
	Len   int   `json:"len"`
	Cap   int   `json:"cap"`
}

// Stats is a consistent snapshot of a device.
type Stats struct {
	Shape

	DefaultCapacity int    `json:"default_capacity"`
	MaxCapacity     int    `json:"max_capacity"`
	Opens           uint64 `json:"opens"`
	Releases        uint64 `json:"releases"`
	Closed          bool   `json:"closed"`
}
