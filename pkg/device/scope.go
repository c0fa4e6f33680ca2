package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Isolation selects how sessions map onto devices.
type Isolation string

const (
	// IsolationGlobal shares one device between every session.
	IsolationGlobal Isolation = "global"
	// IsolationSession gives each session a private device.
	IsolationSession Isolation = "session"
)

// ErrUnknownIsolation reports an unrecognized isolation mode.
var ErrUnknownIsolation = errors.New("unknown isolation mode")

// ParseIsolation parses an isolation mode name, case-insensitively.
func ParseIsolation(raw string) (Isolation, error) {
	switch mode := Isolation(strings.ToLower(strings.TrimSpace(raw))); mode {
	case IsolationGlobal, IsolationSession:
		return mode, nil
	case "":
		return IsolationGlobal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIsolation, raw)
	}
}

// Factory creates a device for a scope.
type Factory func() (*Device, error)

// Scope hands devices to sessions according to an isolation mode.
type Scope struct {
	mode    Isolation
	factory Factory

	mu      sync.Mutex
	shared  *Device
	devices map[*Device]struct{}
	done    bool
}

// NewScope creates a scope. In global mode the shared device is created
// immediately.
func NewScope(mode Isolation, factory Factory) (*Scope, error) {
	sc := &Scope{
		mode:    mode,
		factory: factory,
		devices: make(map[*Device]struct{}),
	}

	switch mode {
	case IsolationGlobal:
		dev, err := factory()
		if err != nil {
			return nil, fmt.Errorf("create shared device: %w", err)
		}

		sc.shared = dev
		sc.devices[dev] = struct{}{}
	case IsolationSession:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIsolation, mode)
	}

	return sc, nil
}

// Mode returns the isolation mode.
func (sc *Scope) Mode() Isolation {
	return sc.mode
}

// Acquire returns the device a new session should use.
func (sc *Scope) Acquire() (*Device, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.done {
		return nil, ErrClosed
	}

	if sc.shared != nil {
		return sc.shared, nil
	}

	dev, err := sc.factory()
	if err != nil {
		return nil, fmt.Errorf("create session device: %w", err)
	}

	sc.devices[dev] = struct{}{}

	return dev, nil
}

// Detach is called once a session using dev has ended. Private devices are
// closed and forgotten; the shared device is left alone.
func (sc *Scope) Detach(dev *Device) {
	sc.mu.Lock()

	if dev == sc.shared {
		sc.mu.Unlock()

		return
	}

	_, owned := sc.devices[dev]
	delete(sc.devices, dev)
	sc.mu.Unlock()

	if owned {
		_ = dev.Close()
	}
}

// Devices returns the devices currently owned by the scope.
func (sc *Scope) Devices() []*Device {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	out := make([]*Device, 0, len(sc.devices))
	for dev := range sc.devices {
		out = append(out, dev)
	}

	return out
}

// Shutdown closes every device the scope owns. Acquire fails afterwards.
func (sc *Scope) Shutdown() error {
	sc.mu.Lock()
	devices := make([]*Device, 0, len(sc.devices))

	for dev := range sc.devices {
		devices = append(devices, dev)
	}

	sc.devices = make(map[*Device]struct{})
	sc.done = true
	sc.mu.Unlock()

	var errs []error

	for _, dev := range devices {
		errs = append(errs, dev.Close())
	}

	return errors.Join(errs...)
}
