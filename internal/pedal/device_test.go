package pedal

import (
	"bytes"
	"context"

	"zoomzt2/internal/sysex"
)

// fakeDevice answers requests the way the pedal does. Replies are queued
// on Send and handed out by Receive, one per request.
type fakeDevice struct {
	files   map[string][]byte
	patches map[int][]byte
	listing []string

	chunk        int  // device side download chunk size
	corruptChunk int  // chunk index whose checksum is spoiled, -1 for none
	corruptPatch bool // spoil patch checksums
	silent       bool // never reply

	sent   [][]byte
	queue  [][]byte
	pcs    []uint8
	closed bool

	probed  string
	reading []byte
	missing bool
	pending bool
	sentN   int
	listPos int
	writing string
	written []byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		files:        map[string][]byte{},
		patches:      map[int][]byte{},
		chunk:        300,
		corruptChunk: -1,
	}
}

func (d *fakeDevice) Send(_ context.Context, msg []byte) error {
	if d.closed {
		return ErrClosed
	}
	d.sent = append(d.sent, bytes.Clone(msg))
	if !d.silent {
		d.queue = append(d.queue, d.respond(msg[len(vendor):]))
	}
	return nil
}

func (d *fakeDevice) Receive(ctx context.Context) ([]byte, error) {
	if len(d.queue) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := d.queue[0]
	d.queue = d.queue[1:]
	return r, nil
}

func (d *fakeDevice) ProgramChange(_ context.Context, channel, program uint8) error {
	d.pcs = append(d.pcs, program)
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// commands returns what was sent with the vendor prefix removed.
func (d *fakeDevice) commands() [][]byte {
	out := make([][]byte, len(d.sent))
	for i, m := range d.sent {
		out[i] = m[len(vendor):]
	}
	return out
}

func reply(b ...byte) []byte {
	return append(append([]byte{}, vendor...), b...)
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func (d *fakeDevice) respond(cmd []byte) []byte {
	switch cmd[0] {
	case 0x52, 0x53:
		return reply(cmd[0], 0x00)
	case 0x09:
		return d.patchReply(int(cmd[2]+1)*10 + int(cmd[3]))
	case 0x08:
		slot := int(cmd[2]+1)*10 + int(cmd[3])
		n := int(cmd[4]) | int(cmd[5])<<7
		d.patches[slot] = sysex.Unpack(cmd[6 : 6+sysex.PackedLen(n)])
		return reply(0x00, 0x00)
	case 0x60:
	default:
		return reply(0x7F)
	}

	switch cmd[1] {
	case 0x25:
		name := cstring(cmd[4:])
		if name == "*" {
			d.listPos = 0
			return d.listReply()
		}
		d.probed = name
	case 0x26:
		d.listPos++
		return d.listReply()
	case 0x05:
		switch {
		case d.pending:
			d.pending = false
			return d.chunkReply()
		case d.probed != "":
			_, ok := d.files[d.probed]
			d.probed = ""
			if !ok {
				return reply(0x60, 0x05, 0x00, 0x7F, 0x7F)
			}
			return reply(0x60, 0x05, 0x00, 0x00, 0x00)
		}
		return reply(0x60, 0x05, 0x00, 0x00, 0x00)
	case 0x20:
		name := cstring(cmd[12:])
		if cmd[2] == 0x02 {
			data, ok := d.files[name]
			d.reading, d.missing, d.sentN = bytes.Clone(data), !ok, 0
		} else {
			d.writing, d.written = name, nil
		}
	case 0x22:
		d.pending = true
	case 0x23:
		n := int(cmd[7]) | int(cmd[8])<<7
		d.written = append(d.written, sysex.Unpack(cmd[12:12+sysex.PackedLen(n)])...)
	case 0x24:
		delete(d.files, cstring(cmd[2:]))
	case 0x21:
		if d.writing != "" {
			d.files[d.writing] = d.written
			d.writing = ""
		}
	}
	return reply(0x60, 0x00)
}

func (d *fakeDevice) chunkReply() []byte {
	r := reply(0x60, 0x04, 0x00, 0x00, 0x00)
	if d.missing {
		return append(r, 0x7F, 0x0F)
	}
	n := min(len(d.reading), d.chunk)
	block := d.reading[:n]
	d.reading = d.reading[n:]

	r = append(r, byte(n&0x7F), byte(n>>7))
	if n == 0 {
		return r
	}
	r = append(r, sysex.Pack(block)...)
	r = sysex.AppendChecksum(r, block)
	if d.sentN == d.corruptChunk {
		r[len(r)-1] ^= 0x01
	}
	d.sentN++
	return r
}

func (d *fakeDevice) listReply() []byte {
	if d.listPos >= len(d.listing) {
		return reply(0x60, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	}
	r := make([]byte, 30)
	copy(r, vendor)
	r[3], r[4] = 0x60, listTag
	copy(r[listStart:], d.listing[d.listPos])
	return r
}

func (d *fakeDevice) patchReply(slot int) []byte {
	data := d.patches[slot]
	n := len(data)
	r := reply(0x08, 0x00, byte(slot/10-1), byte(slot%10), byte(n&0x7F), byte(n>>7))
	if n == 0 {
		return r
	}
	r = append(r, sysex.Pack(data)...)
	r = sysex.AppendChecksum(r, data)
	if d.corruptPatch {
		r[len(r)-3] ^= 0x10
	}
	return r
}

type fakeProvider struct {
	ins, outs []string
	dev       Endpoint
	opened    []string
}

func (p *fakeProvider) Inputs() ([]string, error)  { return p.ins, nil }
func (p *fakeProvider) Outputs() ([]string, error) { return p.outs, nil }

func (p *fakeProvider) Open(in, out string) (Endpoint, error) {
	p.opened = append(p.opened, in, out)
	return p.dev, nil
}

func pedalProvider(dev Endpoint) *fakeProvider {
	return &fakeProvider{
		ins:  []string{"Midi Through Port-0", "ZOOM G Series MIDI 1"},
		outs: []string{"Midi Through Port-0", "ZOOM G Series MIDI 1"},
		dev:  dev,
	}
}
