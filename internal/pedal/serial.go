package pedal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	// DefaultBaud is the MIDI DIN rate. USB serial bridges usually ignore it.
	DefaultBaud = 31250

	serialReadTimeout = 100 * time.Millisecond
)

// SerialProvider reaches the pedal through a raw MIDI byte stream on a
// serial device. The device is its own input and output.
type SerialProvider struct {
	Device string
	Baud   int
}

func (p *SerialProvider) Inputs() ([]string, error)  { return []string{p.Device}, nil }
func (p *SerialProvider) Outputs() ([]string, error) { return []string{p.Device}, nil }

func (p *SerialProvider) Open(in, out string) (Endpoint, error) {
	if in != out {
		return nil, fmt.Errorf("serial input %q and output %q differ", in, out)
	}
	baud := p.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        in,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", in, err)
	}
	return newStreamEndpoint(port), nil
}

// streamEndpoint frames SysEx messages out of a byte stream.
type streamEndpoint struct {
	rw     io.ReadWriteCloser
	frames chan []byte
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func newStreamEndpoint(rw io.ReadWriteCloser) *streamEndpoint {
	e := &streamEndpoint{
		rw:     rw,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go e.readLoop()
	return e
}

func (e *streamEndpoint) readLoop() {
	defer close(e.frames)

	var f framer
	buf := make([]byte, 512)
	for {
		n, err := e.rw.Read(buf)
		f.feed(buf[:n], func(msg []byte) {
			select {
			case e.frames <- msg:
			default:
			}
		})
		if err == nil {
			continue
		}
		select {
		case <-e.done:
			return
		default:
		}
		// tarm reports an idle read timeout as io.EOF.
		if errors.Is(err, io.EOF) && n == 0 {
			continue
		}
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		return
	}
}

func (e *streamEndpoint) Send(_ context.Context, msg []byte) error {
	drain(e.frames)
	b := make([]byte, 0, len(msg)+2)
	b = append(b, 0xF0)
	b = append(b, msg...)
	b = append(b, 0xF7)
	_, err := e.rw.Write(b)
	return err
}

func (e *streamEndpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-e.frames:
		if !ok {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.err != nil {
				return nil, fmt.Errorf("%w: %w", ErrClosed, e.err)
			}
			return nil, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *streamEndpoint) ProgramChange(_ context.Context, channel, program uint8) error {
	_, err := e.rw.Write([]byte{0xC0 | channel&0x0F, program & 0x7F})
	return err
}

func (e *streamEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.rw.Close()
	})
	return err
}

// framer collects the bytes between F0 and F7. Real-time bytes may appear
// inside a message and are skipped; any other status byte abandons it.
type framer struct {
	msg []byte
	in  bool
}

func (f *framer) feed(b []byte, emit func([]byte)) {
	for _, c := range b {
		switch {
		case c == 0xF0:
			f.msg = []byte{}
			f.in = true
		case c == 0xF7:
			if f.in {
				emit(f.msg)
			}
			f.msg, f.in = nil, false
		case c >= 0xF8:
		case c&0x80 != 0:
			f.msg, f.in = nil, false
		case f.in:
			f.msg = append(f.msg, c)
		}
	}
}
