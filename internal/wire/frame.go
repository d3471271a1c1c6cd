// Package wire implements the length-delimited framing for the
// validator<->broker session: a fixed binary header followed by a JSON
// payload.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 64

var magic = [2]byte{'S', 'V'} // "Sentinel Validator" wire magic

const protocolVersion byte = 1

// FrameKind identifies which of the five message schemas a frame carries.
type FrameKind byte

const (
	FrameHello FrameKind = iota
	FrameHelloAck
	FrameSample
	FrameResult
	FrameAction
)

func (k FrameKind) String() string {
	switch k {
	case FrameHello:
		return "Hello"
	case FrameHelloAck:
		return "HelloAck"
	case FrameSample:
		return "Sample"
	case FrameResult:
		return "Result"
	case FrameAction:
		return "Action"
	default:
		return "Unknown"
	}
}

// header layout (64 bytes):
//   Magic(2) Version(1) Kind(1) Reserved(4) PayloadLen(4) ValidatorID(32) CorrelationID(20)
type header struct {
	kind          FrameKind
	payloadLen    uint32
	validatorID   [32]byte
	correlationID [20]byte
}

func encodeHeader(buf []byte, h header) {
	buf[0], buf[1] = magic[0], magic[1]
	buf[2] = protocolVersion
	buf[3] = byte(h.kind)
	// buf[4:8] reserved, left zero
	binary.BigEndian.PutUint32(buf[8:12], h.payloadLen)
	copy(buf[12:44], h.validatorID[:])
	copy(buf[44:64], h.correlationID[:])
}

func decodeHeader(buf []byte) (header, error) {
	var h header
	if buf[0] != magic[0] || buf[1] != magic[1] {
		return h, fmt.Errorf("wire: bad magic bytes %02x%02x", buf[0], buf[1])
	}
	if buf[2] != protocolVersion {
		return h, fmt.Errorf("wire: unsupported protocol version %d", buf[2])
	}
	h.kind = FrameKind(buf[3])
	h.payloadLen = binary.BigEndian.Uint32(buf[8:12])
	copy(h.validatorID[:], buf[12:44])
	copy(h.correlationID[:], buf[44:64])
	return h, nil
}

func toFixed32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

func toFixed20(s string) [20]byte {
	var out [20]byte
	copy(out[:], s)
	return out
}

func fromFixed(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// maxPayload guards against a corrupt or hostile length prefix forcing an
// unbounded allocation.
const maxPayload = 16 * 1024 * 1024

// Frame is a decoded wire message: a kind tag, routing metadata, and a raw
// JSON payload the caller unmarshals into the concrete schema for kind.
type Frame struct {
	Kind          FrameKind
	ValidatorID   string
	CorrelationID string
	Payload       json.RawMessage
}

// WriteFrame marshals v as JSON and writes a framed message to w.
func WriteFrame(w io.Writer, kind FrameKind, validatorID, correlationID string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("wire: payload too large: %d bytes", len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	encodeHeader(buf, header{
		kind:          kind,
		payloadLen:    uint32(len(payload)),
		validatorID:   toFixed32(validatorID),
		correlationID: toFixed20(correlationID),
	})
	copy(buf[HeaderSize:], payload)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one framed message from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return nil, err
	}
	h, err := decodeHeader(hbuf)
	if err != nil {
		return nil, err
	}
	if h.payloadLen > maxPayload {
		return nil, fmt.Errorf("wire: declared payload length %d exceeds limit", h.payloadLen)
	}
	payload := make([]byte, h.payloadLen)
	if h.payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return &Frame{
		Kind:          h.kind,
		ValidatorID:   fromFixed(h.validatorID[:]),
		CorrelationID: fromFixed(h.correlationID[:]),
		Payload:       payload,
	}, nil
}
