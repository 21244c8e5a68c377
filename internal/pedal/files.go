package pedal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"zoomzt2/internal/sysex"
)

const (
	// ChunkSize is the largest raw payload of one upload message.
	ChunkSize = 512

	// lengthEnd marks a download chunk reply for a missing file.
	lengthEnd = 2047

	listTag   = 4
	listStart = 14
	listEnd   = 27
)

var (
	cmdProbe      = []byte{0x60, 0x25, 0x00, 0x00}
	cmdProbeNext  = []byte{0x60, 0x26, 0x00, 0x00}
	cmdStatus     = []byte{0x60, 0x05, 0x00}
	cmdProbeClose = []byte{0x60, 0x27}
	cmdOpenRead   = []byte{0x60, 0x20, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	cmdOpenWrite  = []byte{0x60, 0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	cmdReadChunk  = []byte{0x60, 0x22, 0x14, 0x2F, 0x60, 0x00, 0x0C, 0x00, 0x02, 0x00, 0x00, 0x00}
	cmdWriteChunk = []byte{0x60, 0x23, 0x40, 0x00, 0x00, 0x00, 0x00}
	cmdDelete     = []byte{0x60, 0x24}
	cmdCloseFile  = []byte{0x60, 0x21, 0x40, 0x00, 0x00, 0x00, 0x00}
	cmdCloseDone  = []byte{0x60, 0x09}
)

// FileName reduces name to its base file name and checks the device can
// store it: printable ASCII, not empty.
func FileName(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c > 0x7E {
			return "", fmt.Errorf("%w: %q: byte 0x%02X at %d", ErrInvalidName, name, c, i)
		}
	}
	return name, nil
}

func withName(cmd []byte, name string) []byte {
	msg := make([]byte, 0, len(cmd)+len(name)+1)
	msg = append(msg, cmd...)
	msg = append(msg, name...)
	return append(msg, 0x00)
}

// FileExists asks the device whether name is stored.
func (s *Session) FileExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return false, err
	}
	name, err := FileName(name)
	if err != nil {
		return false, err
	}
	return s.probe(ctx, name)
}

func (s *Session) probe(ctx context.Context, name string) (bool, error) {
	if _, err := s.roundTrip(ctx, withName(cmdProbe, name)); err != nil {
		return false, err
	}
	reply, err := s.roundTrip(ctx, cmdStatus)
	if err != nil {
		return false, err
	}
	if err := need(reply, 8, "probe status"); err != nil {
		return false, err
	}
	if reply[6] == 0x7F && reply[7] == 0x7F {
		s.log.Debug("file absent", "name", name)
		return false, nil
	}
	if _, err := s.roundTrip(ctx, cmdProbeClose); err != nil {
		return false, err
	}
	return true, nil
}

// ListFiles walks the device's directory and returns the names matching
// the glob pattern. An empty pattern matches everything.
func (s *Session) ListFiles(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("file pattern %q: %w", pattern, err)
	}

	var names []string
	cmd := cmdProbe
	for {
		reply, err := s.roundTrip(ctx, withName(cmd, "*"))
		if err != nil {
			return nil, err
		}
		name, ok := listEntry(reply)
		if !ok {
			break
		}
		if g.Match(name) {
			names = append(names, name)
		}
		cmd = cmdProbeNext
	}
	return names, nil
}

// listEntry extracts the NUL terminated name of a directory reply. A reply
// without the entry tag, or without a terminator, ends the listing.
func listEntry(reply []byte) (string, bool) {
	if len(reply) <= listStart || reply[4] != listTag {
		return "", false
	}
	end := min(len(reply), listEnd)
	for i := listStart; i < end; i++ {
		if reply[i] == 0 {
			return string(reply[listStart:i]), i > listStart
		}
	}
	return "", false
}

// Download reads name from the device. The file stays open afterwards and
// must be closed with CloseFile, also when Download fails.
func (s *Session) Download(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	name, err := FileName(name)
	if err != nil {
		return nil, err
	}
	return s.download(ctx, name)
}

func (s *Session) download(ctx context.Context, name string) ([]byte, error) {
	open := withName(cmdOpenRead, name)
	// The device only starts streaming after the open is repeated.
	for i := 0; i < 2; i++ {
		if _, err := s.roundTrip(ctx, open); err != nil {
			return nil, err
		}
		s.state = FileOpen
	}

	var data []byte
	for chunk := 0; ; chunk++ {
		if _, err := s.roundTrip(ctx, cmdStatus); err != nil {
			return nil, err
		}
		if _, err := s.roundTrip(ctx, cmdReadChunk); err != nil {
			return nil, err
		}
		reply, err := s.roundTrip(ctx, cmdStatus)
		if err != nil {
			return nil, err
		}

		if err := need(reply, 10, "chunk header"); err != nil {
			return nil, err
		}
		n := int(reply[8]) | int(reply[9])<<7
		if n == 0 || n == lengthEnd {
			break
		}
		packed := sysex.PackedLen(n)
		if err := need(reply, 10+packed+sysex.ChecksumLen, "chunk"); err != nil {
			return nil, err
		}

		block := sysex.Unpack(reply[10 : 10+packed])
		if err := verify(name, chunk, block, reply[len(reply)-sysex.ChecksumLen:]); err != nil {
			return nil, err
		}
		data = append(data, block...)
		s.log.Debug("chunk received", "name", name, "chunk", chunk, "len", n)
	}

	s.log.Info("downloaded", "name", name, "bytes", len(data))
	return data, nil
}

func verify(object string, chunk int, block, wire []byte) error {
	want, err := sysex.DecodeChecksum(wire)
	if err != nil {
		return err
	}
	if got := sysex.Checksum(block); got != want {
		return &IntegrityError{Object: object, Chunk: chunk, Want: want, Got: got}
	}
	return nil
}

// Upload replaces name on the device with data, sent in ChunkSize pieces.
// The file stays open afterwards and must be closed with CloseFile.
func (s *Session) Upload(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	name, err := FileName(name)
	if err != nil {
		return err
	}
	return s.upload(ctx, name, data)
}

func (s *Session) upload(ctx context.Context, name string, data []byte) error {
	if _, err := s.roundTrip(ctx, withName(cmdDelete, name)); err != nil {
		return err
	}
	if _, err := s.roundTrip(ctx, withName(cmdOpenWrite, name)); err != nil {
		return err
	}
	s.state = FileOpen
	if _, err := s.roundTrip(ctx, cmdStatus); err != nil {
		return err
	}

	for chunk := 0; len(data) > 0; chunk++ {
		n := min(len(data), ChunkSize)
		if _, err := s.roundTrip(ctx, writeChunk(data[:n])); err != nil {
			return err
		}
		if _, err := s.roundTrip(ctx, cmdStatus); err != nil {
			return err
		}
		s.log.Debug("chunk sent", "name", name, "chunk", chunk, "len", n)
		data = data[n:]
	}

	s.log.Info("uploaded", "name", name)
	return nil
}

func writeChunk(block []byte) []byte {
	n := len(block)
	msg := make([]byte, 0, len(cmdWriteChunk)+5+sysex.PackedLen(n)+sysex.ChecksumLen)
	msg = append(msg, cmdWriteChunk...)
	msg = append(msg, byte(n&0x7F), byte(n>>7&0x7F), 0x00, 0x00, 0x00)
	msg = append(msg, sysex.Pack(block)...)
	return sysex.AppendChecksum(msg, block)
}

// DeleteFile removes name from the device.
func (s *Session) DeleteFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	name, err := FileName(name)
	if err != nil {
		return err
	}
	if _, err := s.roundTrip(ctx, withName(cmdDelete, name)); err != nil {
		return err
	}
	s.log.Info("deleted", "name", name)
	return nil
}

// CloseFile ends the device's file session. It is also needed after
// DeleteFile before the directory is rescanned.
func (s *Session) CloseFile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeFile(ctx)
}

func (s *Session) closeFile(ctx context.Context) error {
	if s.state == Disconnected || s.state == ControlModeOff {
		return ErrNotConnected
	}
	if _, err := s.roundTrip(ctx, cmdCloseFile); err != nil {
		return err
	}
	if _, err := s.roundTrip(ctx, cmdCloseDone); err != nil {
		return err
	}
	s.state = ControlModeOn
	return nil
}

// Fetch checks name exists, downloads it and closes the file again.
func (s *Session) Fetch(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	name, err := FileName(name)
	if err != nil {
		return nil, err
	}

	ok, err := s.probe(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	data, err := s.download(ctx, name)
	if cerr := s.closeFile(ctx); cerr != nil {
		return nil, errors.Join(err, fmt.Errorf("close %s: %w", name, cerr))
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store uploads data as name and closes the file again.
func (s *Session) Store(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	name, err := FileName(name)
	if err != nil {
		return err
	}

	// The device expects the probe before a write even when the file is new.
	exists, err := s.probe(ctx, name)
	if err != nil {
		return err
	}
	s.log.Debug("replacing file", "name", name, "exists", exists)

	err = s.upload(ctx, name, data)
	if cerr := s.closeFile(ctx); cerr != nil {
		return errors.Join(err, fmt.Errorf("close %s: %w", name, cerr))
	}
	return err
}
