// Package parser reassembles MQTT packets from a fragmented byte stream.
package parser

import (
	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// Result is one decoded packet with its fixed header.
type Result struct {
	Type   model.Type
	Flags  uint8
	Packet packet.Packet
}

// Parser buffers incoming bytes until complete packets can be decoded.
// It is not safe for concurrent use.
type Parser struct {
	s *stream.Stream
}

func New() *Parser {
	return &Parser{s: stream.New(nil)}
}

// Parse appends chunk to the buffered bytes and returns every packet that is now complete.
// Bytes of an incomplete packet stay buffered for the next call.
// On a malformed packet the buffer is discarded and the packets decoded before
// it are returned along with the error.
func (p *Parser) Parse(chunk []byte) ([]Result, error) {
	p.s.Append(chunk)

	var results []Result
	for p.s.Remaining() > 0 {
		r, err := p.next()
		if err != nil {
			if errors.Is(err, stream.ErrEndOfStream) {
				break
			}
			p.Reset()
			return results, err
		}
		results = append(results, r)
		p.s.Cut()
	}
	return results, nil
}

// next decodes the packet at the position. On end of stream the position is left where it was.
func (p *Parser) next() (Result, error) {
	start := p.s.Position()

	h, err := p.s.ReadByte()
	if err != nil {
		return Result{}, err
	}
	t, flags := model.Type(h>>4), h&0x0F
	if !t.Valid() {
		return Result{}, errors.Wrapf(packet.ErrMalformedPacket, "invalid control packet type %d", uint8(t))
	}
	if !t.ValidateFlags(flags) {
		return Result{}, errors.Wrapf(packet.ErrMalformedPacket, "invalid fixed header flags 0x%X for %s", flags, t)
	}

	l, err := p.s.ReadVariableByteInteger()
	if err != nil {
		if errors.Is(err, stream.ErrEndOfStream) {
			p.s.SetPosition(start)
			return Result{}, err
		}
		return Result{}, errors.Wrap(packet.ErrMalformedPacket, err.Error())
	}

	body, err := p.s.ReadN(l)
	if err != nil {
		p.s.SetPosition(start)
		return Result{}, err
	}

	bs := stream.New(body)
	pkt, err := packet.Decode(bs, t, l, flags)
	if err != nil {
		if errors.Is(err, stream.ErrEndOfStream) {
			return Result{}, errors.Wrapf(packet.ErrMalformedPacket, "%s body shorter than its fields", t)
		}
		return Result{}, err
	}
	if bs.Remaining() != 0 {
		return Result{}, errors.Wrapf(packet.ErrMalformedPacket, "%s has %d trailing bytes", t, bs.Remaining())
	}
	return Result{Type: t, Flags: flags, Packet: pkt}, nil
}

// Reset discards all buffered bytes.
func (p *Parser) Reset() {
	p.s.Reset()
}

// Buffered returns the number of bytes waiting for the rest of their packet.
func (p *Parser) Buffered() int {
	return p.s.Remaining()
}
