package remote

import (
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/provider/asr"
)

func TestChunkFrameRoundTrip(t *testing.T) {
	t.Parallel()

	in := asr.Chunk{
		Sequence:   42,
		Timestamp:  1600 * time.Millisecond,
		SampleRate: 16000,
		Channels:   1,
		PCM:        []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
	}
	got, err := decodeChunkFrame(encodeChunkFrame(in))
	if err != nil {
		t.Fatalf("decodeChunkFrame: %v", err)
	}
	if got.Sequence != in.Sequence {
		t.Errorf("sequence = %d, want %d", got.Sequence, in.Sequence)
	}
	if got.Timestamp != in.Timestamp {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, in.Timestamp)
	}
	if got.SampleRate != in.SampleRate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, in.SampleRate)
	}
	if got.Channels != in.Channels {
		t.Errorf("channels = %d, want %d", got.Channels, in.Channels)
	}
	if string(got.PCM) != string(in.PCM) {
		t.Errorf("pcm = %v, want %v", got.PCM, in.PCM)
	}
}

func TestChunkFrameRoundTrip_EmptyPayload(t *testing.T) {
	t.Parallel()

	got, err := decodeChunkFrame(encodeChunkFrame(asr.Chunk{Sequence: 7}))
	if err != nil {
		t.Fatalf("decodeChunkFrame: %v", err)
	}
	if got.Sequence != 7 {
		t.Errorf("sequence = %d, want 7", got.Sequence)
	}
	if len(got.PCM) != 0 {
		t.Errorf("pcm length = %d, want 0", len(got.PCM))
	}
}

func TestDecodeChunkFrame_TooShort(t *testing.T) {
	t.Parallel()

	if _, err := decodeChunkFrame([]byte{frameVersion, 0, 0}); err == nil {
		t.Error("decoding a truncated frame succeeded, want error")
	}
}

func TestDecodeChunkFrame_BadVersion(t *testing.T) {
	t.Parallel()

	frame := encodeChunkFrame(asr.Chunk{Sequence: 1})
	frame[0] = 0x7F
	if _, err := decodeChunkFrame(frame); err == nil {
		t.Error("decoding an unknown version succeeded, want error")
	}
}

func TestDecodeChunkFrame_LengthMismatch(t *testing.T) {
	t.Parallel()

	frame := encodeChunkFrame(asr.Chunk{Sequence: 1, PCM: []byte{1, 2, 3, 4}})
	// Truncate the payload without fixing the header length.
	if _, err := decodeChunkFrame(frame[:len(frame)-2]); err == nil {
		t.Error("decoding a frame with a short payload succeeded, want error")
	}
}

func TestParseServerMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want asr.Message
		ok   bool
	}{
		{
			"final result",
			`{"type":"result","sequence":12,"text":"hello there","final":true,"confidence":0.92}`,
			asr.Result{Sequence: 12, Text: "hello there", Final: true, Confidence: 0.92},
			true,
		},
		{
			"partial result",
			`{"type":"result","sequence":3,"text":"hel","final":false}`,
			asr.Result{Sequence: 3, Text: "hel"},
			true,
		},
		{
			"final result with words and detections",
			`{"type":"result","sequence":8,"text":"hello there","final":true,"confidence":0.9,` +
				`"words":["hello","there"],"detections":[{"label":"safe","score":0.98},{"label":"warn","score":0.8}]}`,
			asr.Result{
				Sequence: 8, Text: "hello there", Final: true, Confidence: 0.9,
				Words: []string{"hello", "there"},
				Detections: []asr.Detection{
					{Label: "safe", Score: 0.98},
					{Label: "warn", Score: 0.8},
				},
			},
			true,
		},
		{
			"error",
			`{"type":"error","code":"overloaded","message":"try later","recoverable":true}`,
			asr.Fault{Code: "overloaded", Detail: "try later", Recoverable: true},
			true,
		},
		{
			"status",
			`{"type":"status","state":"ok","detail":"warmed up"}`,
			asr.Status{State: "ok", Detail: "warmed up"},
			true,
		},
		{"unknown type", `{"type":"telemetry","data":1}`, nil, false},
		{"malformed json", `{"type":`, nil, false},
		{"empty", ``, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := parseServerMessage([]byte(c.data))
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("message = %#v, want %#v", got, c.want)
			}
		})
	}
}
