// Package binfmt holds the strict little-endian reader and writer shared by
// the pedal's file codecs.
package binfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reader walks a byte slice and fails with a *ParseError on any short read,
// magic mismatch or invalid text. Record names the structure being read and
// is copied into every error.
type Reader struct {
	data   []byte
	off    int
	Record string
}

func NewReader(data []byte, record string) *Reader {
	return &Reader{data: data, Record: record}
}

func (r *Reader) Offset() int       { return r.off }
func (r *Reader) Len() int          { return len(r.data) - r.off }
func (r *Reader) Remaining() []byte { return r.data[r.off:] }

// Rewind moves back to an offset returned by Offset.
func (r *Reader) Rewind(off int) {
	r.off = min(max(off, 0), len(r.data))
}

// Fail builds a ParseError for field at the current offset.
func (r *Reader) Fail(field string, err error) error {
	return r.FailAt(field, r.off, err)
}

func (r *Reader) FailAt(field string, off int, err error) error {
	return &ParseError{Record: r.Record, Field: field, Offset: off, Err: err}
}

// Peek reports whether the next bytes equal prefix without consuming them.
func (r *Reader) Peek(prefix []byte) bool {
	return bytes.HasPrefix(r.data[r.off:], prefix)
}

func (r *Reader) Bytes(field string, n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.Fail(field, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.Len()))
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip consumes n padding bytes. Their content is not checked.
func (r *Reader) Skip(field string, n int) error {
	_, err := r.Bytes(field, n)
	return err
}

// Expect consumes len(magic) bytes that must equal magic.
func (r *Reader) Expect(field string, magic []byte) error {
	off := r.off
	b, err := r.Bytes(field, len(magic))
	if err != nil {
		return err
	}
	if !bytes.Equal(b, magic) {
		return r.FailAt(field, off, fmt.Errorf("%w: got % X, want % X", ErrBadMagic, b, magic))
	}
	return nil
}

func (r *Reader) Uint8(field string) (uint8, error) {
	b, err := r.Bytes(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint32(field string) (uint32, error) {
	b, err := r.Bytes(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// PaddedString reads an n byte ASCII field and strips trailing NULs.
func (r *Reader) PaddedString(field string, n int) (string, error) {
	off := r.off
	b, err := r.Bytes(field, n)
	if err != nil {
		return "", err
	}
	if i := nonASCII(b); i >= 0 {
		return "", r.FailAt(field, off+i, ErrNotASCII)
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// RawString reads an n byte ASCII field verbatim.
func (r *Reader) RawString(field string, n int) (string, error) {
	off := r.off
	b, err := r.Bytes(field, n)
	if err != nil {
		return "", err
	}
	if i := nonASCII(b); i >= 0 {
		return "", r.FailAt(field, off+i, ErrNotASCII)
	}
	return string(b), nil
}

// CString reads ASCII up to and including a NUL terminator.
func (r *Reader) CString(field string) (string, error) {
	off := r.off
	i := bytes.IndexByte(r.data[r.off:], 0)
	if i < 0 {
		return "", r.Fail(field, fmt.Errorf("%w: missing NUL terminator", ErrTruncated))
	}
	b := r.data[r.off : r.off+i]
	if j := nonASCII(b); j >= 0 {
		return "", r.FailAt(field, off+j, ErrNotASCII)
	}
	r.off += i + 1
	return string(b), nil
}

func nonASCII(b []byte) int {
	for i, c := range b {
		if c > 0x7F {
			return i
		}
	}
	return -1
}

// Writer appends fields and records the first overflow it meets. Record
// names the structure being built.
type Writer struct {
	buf    []byte
	err    error
	Record string
}

func NewWriter(record string, capacity int) *Writer {
	return &Writer{Record: record, buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Err() error     { return w.err }
func (w *Writer) Len() int       { return len(w.buf) }

func (w *Writer) overflow(field string, value any, limit int) {
	if w.err == nil {
		w.err = &FieldError{Record: w.Record, Field: field, Value: value, Limit: limit}
	}
}

func (w *Writer) Write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Uint8(b uint8) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PaddedString writes s NUL-padded to n bytes. Longer or non-ASCII values
// are reported, never truncated.
func (w *Writer) PaddedString(field, s string, n int) {
	if len(s) > n {
		w.overflow(field, s, n)
	} else if nonASCII([]byte(s)) >= 0 {
		w.overflow(field, s, 0x7F)
	}
	b := make([]byte, n)
	copy(b, s)
	w.buf = append(w.buf, b...)
}

// CString writes s followed by a NUL.
func (w *Writer) CString(field, s string) {
	if nonASCII([]byte(s)) >= 0 {
		w.overflow(field, s, 0x7F)
	}
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Check records an overflow when v exceeds limit.
func (w *Writer) Check(field string, v uint64, limit uint64) {
	if v > limit {
		w.overflow(field, v, int(limit))
	}
}
