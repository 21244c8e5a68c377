package pedal

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrIntegrity        = errors.New("checksum mismatch")
	ErrProtocolTimeout  = errors.New("no reply from device")
	ErrShortReply       = errors.New("reply too short")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrFileOpen         = errors.New("a file is open on the device")
	ErrFileNotFound     = errors.New("file not found on device")
	ErrInvalidSlot      = errors.New("patch slot out of range")
	ErrInvalidName      = errors.New("invalid file name")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnsupported      = errors.New("not supported by endpoint")
	ErrClosed           = errors.New("endpoint closed")
)

// IntegrityError reports a transfer whose wire checksum did not match the
// unpacked payload. Everything received for that transfer is discarded.
type IntegrityError struct {
	Object string
	Chunk  int
	Want   uint32
	Got    uint32
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: chunk %d: checksum mismatch: wire %08X, computed %08X", e.Object, e.Chunk, e.Want, e.Got)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
