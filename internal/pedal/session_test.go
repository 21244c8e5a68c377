package pedal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zoomzt2/internal/logger"
)

func connected(t *testing.T, dev *fakeDevice) *Session {
	t.Helper()
	s := NewSession(Options{Timeout: 50 * time.Millisecond, Logger: logger.Discard()})
	require.NoError(t, s.Connect(context.Background(), pedalProvider(dev), ""))
	dev.sent = nil
	return s
}

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/13)
	}
	return b
}

func TestConnectDisconnect(t *testing.T) {
	dev := newFakeDevice()
	p := pedalProvider(dev)
	s := NewSession(Options{Logger: logger.Discard()})

	require.NoError(t, s.Connect(context.Background(), p, ""))
	require.Equal(t, ControlModeOn, s.State())
	require.NotEmpty(t, s.ID())
	require.Equal(t, []string{"ZOOM G Series MIDI 1", "ZOOM G Series MIDI 1"}, p.opened)
	require.Equal(t, []byte{0x52, 0x00, 0x6E, 0x52}, dev.sent[0])

	require.ErrorIs(t, s.Connect(context.Background(), p, ""), ErrAlreadyConnected)

	require.NoError(t, s.Disconnect(context.Background()))
	require.Equal(t, []byte{0x52, 0x00, 0x6E, 0x53}, dev.sent[len(dev.sent)-1])
	require.True(t, dev.closed)
	require.Equal(t, Disconnected, s.State())
	require.Empty(t, s.ID())

	require.NoError(t, s.Disconnect(context.Background()))
}

func TestConnectDeviceNotFound(t *testing.T) {
	dev := newFakeDevice()
	p := &fakeProvider{ins: []string{"ZOOM G Series"}, outs: []string{"Synth"}, dev: dev}
	s := NewSession(Options{Logger: logger.Discard()})

	err := s.Connect(context.Background(), p, "")
	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.Empty(t, p.opened)
	require.Equal(t, Disconnected, s.State())
}

func TestConnectTimeoutReleasesEndpoint(t *testing.T) {
	dev := newFakeDevice()
	dev.silent = true
	s := NewSession(Options{Timeout: 20 * time.Millisecond, Logger: logger.Discard()})

	err := s.Connect(context.Background(), pedalProvider(dev), "ZOOM*")
	require.ErrorIs(t, err, ErrProtocolTimeout)
	require.True(t, dev.closed)
	require.Equal(t, Disconnected, s.State())
}

func TestDisconnectAfterTimeout(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)

	dev.silent = true
	_, err := s.FileExists(context.Background(), "FLST_SEQ.ZT2")
	require.ErrorIs(t, err, ErrProtocolTimeout)
	require.Equal(t, ControlModeOn, s.State())

	err = s.Disconnect(context.Background())
	require.ErrorIs(t, err, ErrProtocolTimeout)
	require.True(t, dev.closed)
	require.Equal(t, Disconnected, s.State())
}

func TestCancelIsNotTimeout(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	dev.silent = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := s.DownloadPatch(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrProtocolTimeout)
}

func TestNotConnected(t *testing.T) {
	s := NewSession(Options{Logger: logger.Discard()})
	ctx := context.Background()

	_, err := s.Download(ctx, "FLST_SEQ.ZT2")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, s.UploadPatch(ctx, 10, []byte{1}), ErrNotConnected)
	require.ErrorIs(t, s.CloseFile(ctx), ErrNotConnected)
	require.ErrorIs(t, s.SelectPatch(ctx, 10), ErrNotConnected)
}

func TestFileExists(t *testing.T) {
	dev := newFakeDevice()
	dev.files["FLST_SEQ.ZT2"] = content(10)
	s := connected(t, dev)
	ctx := context.Background()

	ok, err := s.FileExists(ctx, "/tmp/FLST_SEQ.ZT2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]byte{
		append([]byte{0x60, 0x25, 0x00, 0x00}, "FLST_SEQ.ZT2\x00"...),
		{0x60, 0x05, 0x00},
		{0x60, 0x27},
	}, dev.commands())

	dev.sent = nil
	ok, err = s.FileExists(ctx, "NOPE.ZD2")
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, dev.sent, 2)
}

func TestFetch(t *testing.T) {
	dev := newFakeDevice()
	want := content(1000)
	dev.files["FLST_SEQ.ZT2"] = want
	s := connected(t, dev)

	got, err := s.Fetch(context.Background(), "FLST_SEQ.ZT2")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, ControlModeOn, s.State())

	cmds := dev.commands()
	open := append(append([]byte{}, cmdOpenRead...), "FLST_SEQ.ZT2\x00"...)
	require.Equal(t, open, cmds[3])
	require.Equal(t, open, cmds[4])
	require.Equal(t, cmdCloseFile, cmds[len(cmds)-2])
	require.Equal(t, cmdCloseDone, cmds[len(cmds)-1])
}

func TestFetchMissing(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)

	_, err := s.Fetch(context.Background(), "GONE.ZD2")
	require.ErrorIs(t, err, ErrFileNotFound)
	require.Equal(t, ControlModeOn, s.State())
}

func TestDownloadMissingEndsOnSentinel(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)

	data, err := s.Download(context.Background(), "GONE.ZD2")
	require.NoError(t, err)
	require.Empty(t, data)
	require.Equal(t, FileOpen, s.State())
}

func TestDownloadIntegrity(t *testing.T) {
	dev := newFakeDevice()
	dev.files["BIG.ZD2"] = content(1000)
	dev.corruptChunk = 1
	s := connected(t, dev)
	ctx := context.Background()

	data, err := s.Download(ctx, "BIG.ZD2")
	require.Nil(t, data)
	require.ErrorIs(t, err, ErrIntegrity)

	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, 1, ie.Chunk)
	require.Equal(t, "BIG.ZD2", ie.Object)
	require.NotEqual(t, ie.Want, ie.Got)

	require.Equal(t, FileOpen, s.State())
	_, err = s.FileExists(ctx, "BIG.ZD2")
	require.ErrorIs(t, err, ErrFileOpen)

	require.NoError(t, s.CloseFile(ctx))
	require.Equal(t, ControlModeOn, s.State())
}

func TestStore(t *testing.T) {
	dev := newFakeDevice()
	dev.files["FLST_SEQ.ZT2"] = content(5)
	s := connected(t, dev)
	want := content(1100)

	require.NoError(t, s.Store(context.Background(), "FLST_SEQ.ZT2", want))
	require.Equal(t, want, dev.files["FLST_SEQ.ZT2"])
	require.Equal(t, ControlModeOn, s.State())

	var sizes []int
	for _, c := range dev.commands() {
		if c[0] == 0x60 && c[1] == 0x23 {
			sizes = append(sizes, int(c[7])|int(c[8])<<7)
			require.Equal(t, []byte{0, 0, 0}, c[9:12])
		}
	}
	require.Equal(t, []int{512, 512, 76}, sizes)
}

func TestUploadThenDelete(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "OD.ZD2", content(20)))
	require.ErrorIs(t, s.Upload(ctx, "OD.ZD2", nil), ErrFileOpen)
	require.NoError(t, s.CloseFile(ctx))
	require.Equal(t, content(20), dev.files["OD.ZD2"])

	require.NoError(t, s.DeleteFile(ctx, "OD.ZD2"))
	require.NotContains(t, dev.files, "OD.ZD2")
}

func TestListFiles(t *testing.T) {
	dev := newFakeDevice()
	dev.listing = []string{"AMP.ZD2", "FLST_SEQ.ZT2", "OD.ZD2"}
	s := connected(t, dev)

	names, err := s.ListFiles(context.Background(), "*.ZD2")
	require.NoError(t, err)
	require.Equal(t, []string{"AMP.ZD2", "OD.ZD2"}, names)

	cmds := dev.commands()
	require.Equal(t, []byte{0x60, 0x25, 0x00, 0x00, '*', 0x00}, cmds[0])
	require.Equal(t, []byte{0x60, 0x26, 0x00, 0x00, '*', 0x00}, cmds[1])
	require.Len(t, cmds, 4)
}

func TestListEntry(t *testing.T) {
	r := make([]byte, 30)
	r[4] = listTag
	copy(r[listStart:], "ABCDEFGHIJKLM")
	_, ok := listEntry(r)
	require.False(t, ok, "no terminator inside the name field")

	_, ok = listEntry(r[:10])
	require.False(t, ok)
}

func TestPatchTransfer(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	ctx := context.Background()
	want := content(700)

	require.NoError(t, s.UploadPatch(ctx, 12, want))
	put := dev.commands()[0]
	require.Equal(t, []byte{0x08, 0x00, 0x00, 0x02, byte(700 & 0x7F), byte(700 >> 7)}, put[:6])
	require.Equal(t, want, dev.patches[12])

	got, err := s.DownloadPatch(ctx, 12)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, []byte{0x09, 0x00, 0x00, 0x02}, dev.commands()[1])

	got, err = s.DownloadPatch(ctx, 59)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, []byte{0x09, 0x00, 0x04, 0x09}, dev.commands()[2])
}

func TestPatchErrors(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	ctx := context.Background()

	_, err := s.DownloadPatch(ctx, 9)
	require.ErrorIs(t, err, ErrInvalidSlot)
	require.ErrorIs(t, s.UploadPatch(ctx, 60, nil), ErrInvalidSlot)
	require.ErrorIs(t, s.UploadPatch(ctx, 10, make([]byte, maxPatchLen+1)), ErrPayloadTooLarge)
	require.Empty(t, dev.sent)

	dev.patches[20] = content(50)
	dev.corruptPatch = true
	data, err := s.DownloadPatch(ctx, 20)
	require.Nil(t, data)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestShortReply(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	dev.queue = nil

	short := &shortDevice{fakeDevice: dev}
	s.ep = short
	_, err := s.DownloadPatch(context.Background(), 10)
	require.ErrorIs(t, err, ErrShortReply)
}

// shortDevice answers everything with a bare acknowledgement.
type shortDevice struct {
	*fakeDevice
}

func (d *shortDevice) Send(_ context.Context, msg []byte) error {
	d.queue = append(d.queue, reply(0x00))
	return nil
}

func TestSelectPatch(t *testing.T) {
	dev := newFakeDevice()
	s := connected(t, dev)
	ctx := context.Background()

	require.NoError(t, s.SelectPatch(ctx, 12))
	require.Equal(t, []uint8{2}, dev.pcs)

	s.ep = struct{ Endpoint }{dev}
	require.ErrorIs(t, s.SelectPatch(ctx, 12), ErrUnsupported)
}

func TestFileName(t *testing.T) {
	n, err := FileName(`C:\effects\OD.ZD2`)
	require.NoError(t, err)
	require.Equal(t, "OD.ZD2", n)

	n, err = FileName("/home/u/FLST_SEQ.ZT2")
	require.NoError(t, err)
	require.Equal(t, "FLST_SEQ.ZT2", n)

	_, err = FileName("dir/")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = FileName("caf\u00e9.ZD2")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestFindPorts(t *testing.T) {
	p := &fakeProvider{
		ins:  []string{"ZOOM G Series:MIDI 1 24:0", "Other"},
		outs: []string{"Other", "ZOOM G Series:MIDI 1 24:0"},
	}
	in, out, err := FindPorts(p, "")
	require.NoError(t, err)
	require.Equal(t, "ZOOM G Series:MIDI 1 24:0", in)
	require.Equal(t, in, out)

	_, _, err = FindPorts(p, "MicroKorg*")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, _, err = FindPorts(p, "[")
	require.Error(t, err)
}
