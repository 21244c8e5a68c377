// Package pedal talks to a Zoom multi-effects pedal over SysEx: control
// mode, file transfer and patch transfer.
package pedal

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
)

// DefaultPortPattern matches the port names the G series pedals announce.
const DefaultPortPattern = "ZOOM G*"

// Endpoint is a duplex SysEx connection. Messages carry neither the F0
// nor the F7 framing byte.
type Endpoint interface {
	Send(ctx context.Context, msg []byte) error
	// Receive blocks for the next SysEx message or until ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// ProgramChanger is implemented by endpoints that can also send channel
// messages.
type ProgramChanger interface {
	ProgramChange(ctx context.Context, channel, program uint8) error
}

// Provider enumerates and opens endpoints.
type Provider interface {
	Inputs() ([]string, error)
	Outputs() ([]string, error)
	Open(in, out string) (Endpoint, error)
}

// FindPorts returns the first input and output whose names match the glob
// pattern.
func FindPorts(p Provider, pattern string) (in, out string, err error) {
	if pattern == "" {
		pattern = DefaultPortPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return "", "", fmt.Errorf("port pattern %q: %w", pattern, err)
	}

	ins, err := p.Inputs()
	if err != nil {
		return "", "", fmt.Errorf("list inputs: %w", err)
	}
	outs, err := p.Outputs()
	if err != nil {
		return "", "", fmt.Errorf("list outputs: %w", err)
	}

	in, inOK := firstMatch(g, ins)
	out, outOK := firstMatch(g, outs)
	switch {
	case !inOK && !outOK:
		return "", "", fmt.Errorf("%w: no input or output matches %q", ErrDeviceNotFound, pattern)
	case !inOK:
		return "", "", fmt.Errorf("%w: no input matches %q", ErrDeviceNotFound, pattern)
	case !outOK:
		return "", "", fmt.Errorf("%w: no output matches %q", ErrDeviceNotFound, pattern)
	}
	return in, out, nil
}

func firstMatch(g glob.Glob, names []string) (string, bool) {
	for _, n := range names {
		if g.Match(n) {
			return n, true
		}
	}
	return "", false
}
