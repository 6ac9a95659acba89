package comm

import (
	"github.com/sigurn/crc8"
)

// FrameTerminator ends every frame on the wire.
const FrameTerminator byte = 0

var crcTable = crc8.MakeTable(crc8.CRC8)

// Codec converts payloads to frames and back.
type Codec struct {
	// Checksum appends a CRC-8 of the payload before stuffing,
	// compatible with older firmware builds.
	Checksum bool
}

// Encode builds the wire frame for payload, including the terminator.
func (c Codec) Encode(payload []byte) []byte {
	if c.Checksum {
		sum := crc8.Checksum(payload, crcTable)
		payload = append(append(make([]byte, 0, len(payload)+1), payload...), sum)
	}
	return append(StuffCOBS(payload), FrameTerminator)
}

// Decode extracts the payload from a frame received by Parser
// (without the terminator).
func (c Codec) Decode(frame []byte) ([]byte, error) {
	payload, err := UnstuffCOBS(frame)
	if err != nil {
		return nil, err
	}
	if !c.Checksum {
		return payload, nil
	}
	if len(payload) < 2 {
		return nil, corrupted("frame too short for checksum", -1)
	}
	n := len(payload) - 1
	if crc8.Checksum(payload[:n], crcTable) != payload[n] {
		return nil, corrupted("checksum mismatch", n)
	}
	return payload[:n], nil
}
