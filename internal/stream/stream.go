// Package stream implements the growable byte cursor all MQTT packets are
// encoded into and decoded from.
package stream

import (
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/model"
)

// ErrEndOfStream is returned by every read that would move past the end of the buffer.
// It means more data is needed, never that the data is corrupt.
var ErrEndOfStream = errors.New("end of stream")

var (
	ErrVariableIntegerTooLong = errors.New("variable byte integer longer than 4 bytes")
	ErrStringTooLong          = errors.New("string longer than 65535 bytes")
	ErrValueTooLarge          = errors.New("value too large for variable byte integer")
)

// Stream is a byte buffer with a read/write position.
// 0 <= position <= len(buffer) always holds.
type Stream struct {
	buf []byte
	pos int
}

func New(b []byte) *Stream {
	return &Stream{buf: b}
}

func (s *Stream) Len() int {
	return len(s.buf)
}

func (s *Stream) Position() int {
	return s.pos
}

func (s *Stream) SetPosition(p int) error {
	if p < 0 || p > len(s.buf) {
		return ErrEndOfStream
	}
	s.pos = p
	return nil
}

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int {
	return len(s.buf) - s.pos
}

// Bytes returns the whole buffer.
func (s *Stream) Bytes() []byte {
	return s.buf
}

func (s *Stream) Reset() {
	s.buf, s.pos = nil, 0
}

// move advances the position and returns the old one. The position is left untouched on failure.
func (s *Stream) move(n int) (int, error) {
	np := s.pos + n
	if np < 0 || np > len(s.buf) {
		return s.pos, ErrEndOfStream
	}
	old := s.pos
	s.pos = np
	return old, nil
}

// Skip moves the position by delta bytes, which may be negative.
func (s *Stream) Skip(delta int) error {
	_, err := s.move(delta)
	return err
}

// Cut discards all bytes before the position, which becomes 0.
func (s *Stream) Cut() {
	if s.pos == len(s.buf) {
		s.buf = s.buf[:0]
	} else {
		s.buf = s.buf[s.pos:]
	}
	s.pos = 0
}

// Append adds data to the end of the buffer without moving the position.
func (s *Stream) Append(p []byte) {
	s.buf = append(s.buf, p...)
}

// Write appends p to the buffer and advances the position by len(p).
func (s *Stream) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	s.pos += len(p)
	return len(p), nil
}

func (s *Stream) PutByte(b byte) {
	s.buf = append(s.buf, b)
	s.pos++
}

// PutWord writes a big-endian 16-bit integer.
func (s *Stream) PutWord(w uint16) {
	s.buf = append(s.buf, byte(w>>8), byte(w))
	s.pos += 2
}

// PutBytes writes data prefixed with its 16-bit length.
func (s *Stream) PutBytes(data []byte) error {
	if len(data) > math.MaxUint16 {
		return ErrStringTooLong
	}
	s.PutWord(uint16(len(data)))
	s.Write(data)
	return nil
}

// PutString writes an MQTT UTF-8 string.
func (s *Stream) PutString(str string) error {
	if len(str) > math.MaxUint16 {
		return ErrStringTooLong
	}
	s.PutWord(uint16(len(str)))
	s.buf = append(s.buf, str...)
	s.pos += len(str)
	return nil
}

// PutVariableByteInteger writes v in the minimal number of bytes.
func (s *Stream) PutVariableByteInteger(v int) error {
	if v < 0 || v > model.MaxRemainingLength {
		return ErrValueTooLarge
	}
	n := len(s.buf)
	s.buf = model.VariableLengthEncode(s.buf, v)
	s.pos += len(s.buf) - n
	return nil
}

func (s *Stream) ReadByte() (byte, error) {
	p, err := s.move(1)
	if err != nil {
		return 0, err
	}
	return s.buf[p], nil
}

// ReadWord reads a big-endian 16-bit integer.
func (s *Stream) ReadWord() (uint16, error) {
	p, err := s.move(2)
	if err != nil {
		return 0, err
	}
	return uint16(s.buf[p])<<8 | uint16(s.buf[p+1]), nil
}

// ReadN returns the next n bytes. The slice aliases the buffer.
func (s *Stream) ReadN(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrEndOfStream
	}
	p, err := s.move(n)
	if err != nil {
		return nil, err
	}
	return s.buf[p : p+n : p+n], nil
}

// ReadStringBytes reads a 16-bit length prefixed byte string.
func (s *Stream) ReadStringBytes() ([]byte, error) {
	start := s.pos
	l, err := s.ReadWord()
	if err != nil {
		return nil, err
	}
	b, err := s.ReadN(int(l))
	if err != nil {
		s.pos = start
		return nil, err
	}
	return b, nil
}

func (s *Stream) ReadString() (string, error) {
	b, err := s.ReadStringBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("invalid UTF-8 string")
	}
	return string(b), nil
}

// ReadVariableByteInteger reads a remaining length encoded value.
func (s *Stream) ReadVariableByteInteger() (int, error) {
	start := s.pos
	value, mul := 0, 1
	for i := 0; i < 4; i++ {
		b, err := s.ReadByte()
		if err != nil {
			s.pos = start
			return 0, err
		}
		value += int(b&127) * mul
		if b&128 == 0 {
			return value, nil
		}
		mul *= 128
	}
	return 0, ErrVariableIntegerTooLong
}
