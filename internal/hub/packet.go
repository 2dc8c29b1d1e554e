package hub

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet framing constants.
const (
	// headerSize is the fixed packet header length.
	headerSize = 8

	// maxPacketSize is the largest packet the hub sends or accepts.
	maxPacketSize = 80

	// maxPayloadSize is the largest request/response payload.
	maxPayloadSize = maxPacketSize - headerSize

	// maxSequence is the largest sequence number; 0 is reserved for callbacks.
	maxSequence = 15
)

// Well-known function IDs handled by the client itself.
const (
	functionDisconnectProbe = 128
	functionCallbackEnum    = 253
)

// Error codes carried in the top two bits of header byte 7.
const (
	errorCodeOK                   = 0
	errorCodeInvalidParameter     = 1
	errorCodeFunctionNotSupported = 2
)

// header is the decoded 8-byte packet header.
//
// Layout (little-endian):
//
//	0..3  device UID
//	4     total packet length including header
//	5     function ID
//	6     sequence << 4 | response expected << 3
//	7     error code << 6
type header struct {
	UID              uint32
	Length           uint8
	FunctionID       uint8
	Sequence         uint8
	ResponseExpected bool
	ErrorCode        uint8
}

// encodePacket builds a complete packet. The Length field is computed.
func encodePacket(h header, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], h.UID)
	buf[4] = uint8(len(buf)) //nolint:gosec // bounded by maxPacketSize at call sites
	buf[5] = h.FunctionID

	options := (h.Sequence & 0x0F) << 4
	if h.ResponseExpected {
		options |= 1 << 3
	}
	buf[6] = options
	buf[7] = (h.ErrorCode & 0x03) << 6

	copy(buf[headerSize:], payload)
	return buf
}

// decodeHeader parses the first headerSize bytes of b.
func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, fmt.Errorf("%w: header too short (%d bytes)", ErrInvalidPacket, len(b))
	}
	h := header{
		UID:              binary.LittleEndian.Uint32(b[0:4]),
		Length:           b[4],
		FunctionID:       b[5],
		Sequence:         (b[6] >> 4) & 0x0F,
		ResponseExpected: b[6]&(1<<3) != 0,
		ErrorCode:        (b[7] >> 6) & 0x03,
	}
	if h.Length < headerSize || h.Length > maxPacketSize {
		return header{}, fmt.Errorf("%w: length %d outside [%d, %d]", ErrProtocolDesync, h.Length, headerSize, maxPacketSize)
	}
	return h, nil
}

// readPacket reads exactly one packet from r into buf and returns the
// header and a payload slice that aliases buf.
func readPacket(r io.Reader, buf []byte) (header, []byte, error) {
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return header{}, nil, fmt.Errorf("read header: %w", err)
	}

	h, err := decodeHeader(buf[:headerSize])
	if err != nil {
		return header{}, nil, err
	}

	total := int(h.Length)
	if _, err := io.ReadFull(r, buf[headerSize:total]); err != nil {
		return header{}, nil, fmt.Errorf("read payload: %w", err)
	}
	return h, buf[headerSize:total], nil
}

// errorCodeText describes a non-zero response error code.
func errorCodeText(code uint8) string {
	switch code {
	case errorCodeInvalidParameter:
		return "invalid parameter"
	case errorCodeFunctionNotSupported:
		return "function not supported"
	default:
		return fmt.Sprintf("unknown error %d", code)
	}
}
