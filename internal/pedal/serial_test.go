package pedal

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFramer(t *testing.T) {
	var got [][]byte
	emit := func(m []byte) { got = append(got, m) }

	var f framer
	f.feed([]byte{0x90, 0x40, 0xF0, 0x52, 0x00}, emit)
	f.feed([]byte{0xF8, 0x6E, 0xF7}, emit)
	f.feed([]byte{0xF0, 0x01, 0x80, 0x02, 0xF7}, emit)
	f.feed([]byte{0xF0, 0xF7, 0xF7}, emit)

	require.Equal(t, [][]byte{{0x52, 0x00, 0x6E}, {}}, got)
}

type pipePort struct {
	io.Reader
	io.Writer
	close func() error
}

func (p *pipePort) Close() error { return p.close() }

func TestStreamEndpoint(t *testing.T) {
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	e := newStreamEndpoint(&pipePort{Reader: hostR, Writer: hostW, close: hostR.Close})

	go func() {
		_, _ = devW.Write([]byte{0xFE, 0xF0, 0x52, 0x00, 0x6E, 0x52, 0xF7})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := e.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0x52, 0x00, 0x6E, 0x52}, msg)

	sent := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := devR.Read(buf)
		sent <- buf[:n]
	}()
	require.NoError(t, e.Send(ctx, []byte{0x52, 0x00, 0x6E, 0x53}))
	require.Equal(t, []byte{0xF0, 0x52, 0x00, 0x6E, 0x53, 0xF7}, <-sent)

	go func() {
		buf := make([]byte, 4)
		n, _ := devR.Read(buf)
		sent <- buf[:n]
	}()
	require.NoError(t, e.ProgramChange(ctx, 0, 5))
	require.Equal(t, []byte{0xC0, 0x05}, <-sent)

	require.NoError(t, e.Close())
	_, err = e.Receive(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, e.Close())
}

func TestStreamEndpointReceiveTimeout(t *testing.T) {
	hostR, _ := io.Pipe()
	e := newStreamEndpoint(&pipePort{Reader: hostR, Writer: io.Discard, close: hostR.Close})
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
