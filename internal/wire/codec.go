package wire

import (
	"encoding/binary"
	"fmt"
)

// byteWriter accumulates a payload body using the fixed little-endian,
// length-prefixed encoding rules from the frame format: u32-length-prefixed
// byte arrays and UTF-8 strings, single-byte booleans, a u16-length-prefixed
// string reserved for the envelope's session_id.
type byteWriter struct {
	buf []byte
}

func newByteWriter() *byteWriter { return &byteWriter{buf: make([]byte, 0, 64)} }

func (w *byteWriter) bytes() []byte { return w.buf }

func (w *byteWriter) putByte(b byte) { w.buf = append(w.buf, b) }

func (w *byteWriter) putBool(b bool) {
	if b {
		w.putByte(1)
	} else {
		w.putByte(0)
	}
}

func (w *byteWriter) putUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) putInt64(v int64) { w.putUint64(uint64(v)) }

// putBytes32 writes a u32-length-prefixed byte array.
func (w *byteWriter) putBytes32(b []byte) {
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// putString32 writes a u32-length-prefixed UTF-8 string.
func (w *byteWriter) putString32(s string) { w.putBytes32([]byte(s)) }

// putString16 writes a u16-length-prefixed UTF-8 string, used only for the
// envelope's session_id field.
func (w *byteWriter) putString16(s string) {
	w.putUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// byteReader consumes a payload body using the same rules.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) getByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated byte", ErrInvalidFrame)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) getBool() (bool, error) {
	b, err := r.getByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *byteReader) getUint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: truncated uint16", ErrInvalidFrame)
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) getUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("%w: truncated uint32", ErrInvalidFrame)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) getUint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, fmt.Errorf("%w: truncated uint64", ErrInvalidFrame)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) getInt64() (int64, error) {
	v, err := r.getUint64()
	return int64(v), err
}

func (r *byteReader) getBytes32() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: byte array length %d exceeds frame cap", ErrInvalidFrame, n)
	}
	if r.remaining() < int(n) {
		return nil, fmt.Errorf("%w: truncated byte array", ErrInvalidFrame)
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *byteReader) getString32() (string, error) {
	b, err := r.getBytes32()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) getString16() (string, error) {
	n, err := r.getUint16()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", fmt.Errorf("%w: truncated session id", ErrInvalidFrame)
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
