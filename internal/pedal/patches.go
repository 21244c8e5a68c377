package pedal

import (
	"context"
	"fmt"

	"zoomzt2/internal/sysex"
)

const (
	FirstSlot = 10
	LastSlot  = 59

	// maxPatchLen is the largest length the two 7-bit length bytes hold.
	maxPatchLen = 1<<14 - 1
)

var (
	cmdPatchGet = []byte{0x09, 0x00}
	cmdPatchPut = []byte{0x08, 0x00}
)

// CheckSlot reports whether slot is a patch location the device accepts.
func CheckSlot(slot int) error {
	if slot < FirstSlot || slot > LastSlot {
		return fmt.Errorf("%w: %d not in %d..%d", ErrInvalidSlot, slot, FirstSlot, LastSlot)
	}
	return nil
}

func slotBytes(slot int) (byte, byte) {
	return byte(slot/10 - 1), byte(slot % 10)
}

// DownloadPatch reads the patch assembly stored in slot. An empty slot
// gives nil data and no error.
func (s *Session) DownloadPatch(ctx context.Context, slot int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := CheckSlot(slot); err != nil {
		return nil, err
	}

	hi, lo := slotBytes(slot)
	reply, err := s.roundTrip(ctx, append(append([]byte{}, cmdPatchGet...), hi, lo))
	if err != nil {
		return nil, err
	}

	if err := need(reply, 9, "patch header"); err != nil {
		return nil, err
	}
	n := int(reply[7]) | int(reply[8])<<7
	if n == 0 {
		s.log.Debug("empty patch slot", "slot", slot)
		return nil, nil
	}
	packed := sysex.PackedLen(n)
	if err := need(reply, 9+packed+sysex.ChecksumLen, "patch"); err != nil {
		return nil, err
	}

	data := sysex.Unpack(reply[9 : 9+packed])
	if err := verify(fmt.Sprintf("patch %d", slot), 0, data, reply[len(reply)-sysex.ChecksumLen:]); err != nil {
		return nil, err
	}
	s.log.Info("patch downloaded", "slot", slot, "bytes", len(data))
	return data, nil
}

// UploadPatch writes data to slot in a single message.
func (s *Session) UploadPatch(ctx context.Context, slot int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if err := CheckSlot(slot); err != nil {
		return err
	}
	if len(data) > maxPatchLen {
		return fmt.Errorf("%w: patch is %d bytes, limit %d", ErrPayloadTooLarge, len(data), maxPatchLen)
	}

	hi, lo := slotBytes(slot)
	n := len(data)
	msg := make([]byte, 0, len(cmdPatchPut)+4+sysex.PackedLen(n)+sysex.ChecksumLen)
	msg = append(msg, cmdPatchPut...)
	msg = append(msg, hi, lo, byte(n&0x7F), byte(n>>7&0x7F))
	msg = append(msg, sysex.Pack(data)...)
	msg = sysex.AppendChecksum(msg, data)

	if _, err := s.roundTrip(ctx, msg); err != nil {
		return err
	}
	s.log.Info("patch uploaded", "slot", slot, "bytes", n)
	return nil
}

// SelectPatch makes slot the active patch with a program change on MIDI
// channel 1. Program 0 is slot 10.
func (s *Session) SelectPatch(ctx context.Context, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return ErrNotConnected
	}
	if err := CheckSlot(slot); err != nil {
		return err
	}
	pc, ok := s.ep.(ProgramChanger)
	if !ok {
		return fmt.Errorf("program change: %w", ErrUnsupported)
	}
	if err := pc.ProgramChange(ctx, 0, uint8(slot-FirstSlot)); err != nil {
		return fmt.Errorf("program change: %w", err)
	}
	s.log.Info("patch selected", "slot", slot)
	return nil
}
