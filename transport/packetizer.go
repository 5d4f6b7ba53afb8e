package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// DynamicPayloadType is the RTP payload type used for SBC media.
const DynamicPayloadType = 96

// Packetizer wraps media payloads in RTP headers with a running sequence
// number and sample timestamp. It is not safe for concurrent use.
type Packetizer struct {
	ssrc           uint32
	sequenceNumber uint16
	timestamp      uint32
	payloadType    uint8
}

// NewPacketizer creates a packetizer with a random SSRC.
func NewPacketizer(payloadType uint8) (*Packetizer, error) {
	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewPacketizer",
			"error":    err.Error(),
		}).Error("Failed to generate SSRC")
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}

	p := &Packetizer{
		ssrc:        binary.BigEndian.Uint32(ssrcBytes),
		payloadType: payloadType,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewPacketizer",
		"ssrc":         p.ssrc,
		"payload_type": payloadType,
	}).Debug("Media packetizer created")

	return p, nil
}

// Packetize returns header+payload and advances the sequence number by one
// and the timestamp by samples.
func (p *Packetizer) Packetize(payload []byte, samples uint32) ([]byte, error) {
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    p.payloadType,
			SequenceNumber: p.sequenceNumber,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	data, err := packet.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal media packet: %w", err)
	}

	p.sequenceNumber++
	p.timestamp += samples
	return data, nil
}

// SSRC returns the stream's synchronisation source identifier.
func (p *Packetizer) SSRC() uint32 { return p.ssrc }

// SequenceNumber returns the sequence number the next packet will carry.
func (p *Packetizer) SequenceNumber() uint16 { return p.sequenceNumber }

// Timestamp returns the timestamp the next packet will carry.
func (p *Packetizer) Timestamp() uint32 { return p.timestamp }
