package remote

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// Binary chunk frame layout, big-endian:
//
//	[0]     version
//	[1]     flags (reserved, zero)
//	[2:10]  sequence
//	[10:18] timestamp in milliseconds
//	[18:22] sample rate in Hz
//	[22:24] channels
//	[24:28] payload length
//	[28:]   PCM16 little-endian payload
const (
	frameVersion    = 0x01
	frameHeaderSize = 28
)

// encodeChunkFrame serializes a chunk into one binary websocket frame.
func encodeChunkFrame(c asr.Chunk) []byte {
	buf := make([]byte, frameHeaderSize+len(c.PCM))
	buf[0] = frameVersion
	buf[1] = 0
	binary.BigEndian.PutUint64(buf[2:10], c.Sequence)
	ms := c.Timestamp.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	binary.BigEndian.PutUint64(buf[10:18], uint64(ms))
	binary.BigEndian.PutUint32(buf[18:22], uint32(c.SampleRate))
	binary.BigEndian.PutUint16(buf[22:24], uint16(c.Channels))
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(c.PCM)))
	copy(buf[frameHeaderSize:], c.PCM)
	return buf
}

// decodeChunkFrame parses a binary chunk frame. The payload is copied out
// of the input buffer, so the frame data may be reused by the caller.
func decodeChunkFrame(data []byte) (asr.Chunk, error) {
	if len(data) < frameHeaderSize {
		return asr.Chunk{}, fmt.Errorf("chunk frame too short: %d bytes", len(data))
	}
	if data[0] != frameVersion {
		return asr.Chunk{}, fmt.Errorf("unsupported chunk frame version %d", data[0])
	}
	payloadLen := binary.BigEndian.Uint32(data[24:28])
	if int(payloadLen) != len(data)-frameHeaderSize {
		return asr.Chunk{}, fmt.Errorf("chunk frame payload length %d does not match %d remaining bytes",
			payloadLen, len(data)-frameHeaderSize)
	}
	pcm := make([]byte, payloadLen)
	copy(pcm, data[frameHeaderSize:])
	return asr.Chunk{
		Sequence:   binary.BigEndian.Uint64(data[2:10]),
		Timestamp:  time.Duration(binary.BigEndian.Uint64(data[10:18])) * time.Millisecond,
		SampleRate: int(binary.BigEndian.Uint32(data[18:22])),
		Channels:   int(binary.BigEndian.Uint16(data[22:24])),
		PCM:        pcm,
	}, nil
}

// startMessage announces a new session and its audio format.
type startMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	BitDepth       int    `json:"bit_depth"`
	ChunkSizeBytes int    `json:"chunk_size_bytes"`
}

// stopMessage announces the end of a session.
type stopMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// serverMessage is the superset of all inbound JSON message shapes; Type
// selects which fields are meaningful.
type serverMessage struct {
	Type string `json:"type"`

	// result
	Sequence   uint64          `json:"sequence"`
	Text       string          `json:"text"`
	Final      bool            `json:"final"`
	Confidence float64         `json:"confidence"`
	Words      []string        `json:"words"`
	Detections []detectionJSON `json:"detections"`

	// error
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`

	// status
	State  string `json:"state"`
	Detail string `json:"detail"`
}

// detectionJSON is the wire shape of one auxiliary classifier hit.
type detectionJSON struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// parseServerMessage parses a raw inbound text frame into one of the
// closed message variants. Returns (nil, false) for malformed frames and
// unknown message types, which the session skips.
func parseServerMessage(data []byte) (asr.Message, bool) {
	var m serverMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	switch m.Type {
	case "result":
		r := asr.Result{
			Sequence:   m.Sequence,
			Text:       m.Text,
			Final:      m.Final,
			Confidence: m.Confidence,
			Words:      m.Words,
		}
		if len(m.Detections) > 0 {
			r.Detections = make([]asr.Detection, len(m.Detections))
			for i, d := range m.Detections {
				r.Detections[i] = asr.Detection{Label: d.Label, Score: d.Score}
			}
		}
		return r, true
	case "error":
		return asr.Fault{
			Code:        m.Code,
			Detail:      m.Message,
			Recoverable: m.Recoverable,
		}, true
	case "status":
		return asr.Status{
			State:  m.State,
			Detail: m.Detail,
		}, true
	}
	return nil, false
}
