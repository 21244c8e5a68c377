package pedal

import (
	"bytes"
	"context"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const defaultSysExBuffer = 4096

// MIDIProvider opens pedal ports through the registered gomidi driver.
// The caller imports a driver package, e.g. rtmididrv.
type MIDIProvider struct {
	// SysExBufferSize bounds a single incoming SysEx message.
	SysExBufferSize uint32
}

func (p *MIDIProvider) Inputs() ([]string, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

func (p *MIDIProvider) Outputs() ([]string, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// Open opens the named ports and starts listening for SysEx.
func (p *MIDIProvider) Open(in, out string) (Endpoint, error) {
	inPort, err := findIn(in)
	if err != nil {
		return nil, err
	}
	outPort, err := findOut(out)
	if err != nil {
		return nil, err
	}

	if err := outPort.Open(); err != nil {
		return nil, fmt.Errorf("open output %q: %w", out, err)
	}

	size := p.SysExBufferSize
	if size == 0 {
		size = defaultSysExBuffer
	}

	e := &midiEndpoint{
		in:     inPort,
		out:    outPort,
		frames: make(chan []byte, 16),
	}
	e.stop, err = midi.ListenTo(inPort, func(msg midi.Message, _ int32) {
		var data []byte
		if !msg.GetSysEx(&data) {
			return
		}
		select {
		case e.frames <- bytes.Clone(data):
		default:
		}
	}, midi.UseSysEx(), midi.SysExBufferSize(size))
	if err != nil {
		_ = outPort.Close()
		return nil, fmt.Errorf("listen on %q: %w", in, err)
	}

	return e, nil
}

// Close shuts the MIDI driver down. Call it once all endpoints are closed.
func (p *MIDIProvider) Close() {
	drivers.Close()
}

func findIn(name string) (drivers.In, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if in.String() == name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: input %q", ErrDeviceNotFound, name)
}

func findOut(name string) (drivers.Out, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if out.String() == name {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: output %q", ErrDeviceNotFound, name)
}

type midiEndpoint struct {
	in     drivers.In
	out    drivers.Out
	stop   func()
	frames chan []byte
}

func (e *midiEndpoint) Send(_ context.Context, msg []byte) error {
	drain(e.frames)
	if !e.out.IsOpen() {
		if err := e.out.Open(); err != nil {
			return err
		}
	}
	return e.out.Send(midi.SysEx(msg).Bytes())
}

func (e *midiEndpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-e.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *midiEndpoint) ProgramChange(_ context.Context, channel, program uint8) error {
	return e.out.Send(midi.ProgramChange(channel, program).Bytes())
}

func (e *midiEndpoint) Close() error {
	e.stop()
	inErr := e.in.Close()
	if err := e.out.Close(); err != nil {
		return err
	}
	return inErr
}

// drain drops replies left over from a request that timed out, so they
// are not taken for the answer to the next one.
func drain(frames chan []byte) {
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
