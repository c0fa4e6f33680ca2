package fusedev

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

// ErrMalformedControl reports a control line that cannot be parsed.
var ErrMalformedControl = errors.New("malformed control line")

// controlNames maps symbolic command names to their numbers.
var controlNames = map[string]device.Command{
	"resize": device.CmdResize,
}

// ParseControl parses one control line of the form "<command> <arg>".
// The command is either a name ("resize") or a raw command number.
// Unknown names map to an unsupported command error.
func ParseControl(line string) (device.Command, uint64, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedControl, line)
	}

	arg, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: argument %q: %w", ErrMalformedControl, fields[1], err)
	}

	if cmd, ok := controlNames[strings.ToLower(fields[0])]; ok {
		return cmd, arg, nil
	}

	num, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", stack.ErrUnsupportedCommand, fields[0])
	}

	return device.Command(num), arg, nil
}

// formatStat renders the control file contents.
func formatStat(stats device.Stats) string {
	return fmt.Sprintf("state=%s len=%d cap=%d max=%d opens=%d releases=%d\n",
		stats.State, stats.Len, stats.Cap, stats.MaxCapacity, stats.Opens, stats.Releases)
}
