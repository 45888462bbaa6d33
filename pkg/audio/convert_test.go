package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
)

func TestFloatToPCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1}
	got := audio.PCM16ToFloat(audio.FloatToPCM16(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1.0/32768 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], in[i])
		}
	}
}

func TestFloatToPCM16_Clamping(t *testing.T) {
	pcm := audio.FloatToPCM16([]float32{1.5, -1.5})
	v0 := int16(pcm[0]) | int16(pcm[1])<<8
	v1 := int16(pcm[2]) | int16(pcm[3])<<8
	if v0 != 32767 {
		t.Errorf("over-range sample: got %d, want 32767", v0)
	}
	if v1 != -32767 {
		t.Errorf("under-range sample: got %d, want -32767", v1)
	}
}

func TestPCM16ToFloat_OddTrailingByte(t *testing.T) {
	// 5 bytes = 2 complete samples + 1 trailing byte to ignore.
	got := audio.PCM16ToFloat([]byte{0x00, 0x40, 0x00, 0xC0, 0xFF})
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if math.Abs(float64(got[0]-0.5)) > 0.001 {
		t.Errorf("sample 0: got %f, want 0.5", got[0])
	}
	if math.Abs(float64(got[1]+0.5)) > 0.001 {
		t.Errorf("sample 1: got %f, want -0.5", got[1])
	}
}

func TestDownmix_Stereo(t *testing.T) {
	// Two stereo frames: L=0.2,R=0.4 and L=-0.2,R=-0.4.
	in := []float32{0.2, 0.4, -0.2, -0.4}
	got := audio.Downmix(in, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2}
	got := audio.Downmix(in, 1)
	if &got[0] != &in[0] {
		t.Error("expected same slice (zero allocation) for mono input")
	}
}

func TestCountClipped(t *testing.T) {
	in := []float32{0.5, 1.0, -1.0, 0.9995, -0.5, 2.0}
	if got := audio.CountClipped(in); got != 4 {
		t.Errorf("CountClipped = %d, want 4", got)
	}
}

func TestFrameDuration(t *testing.T) {
	frame := audio.Frame{
		Samples:    make([]float32, 960),
		SampleRate: 48000,
		Channels:   1,
	}
	if got := frame.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}

	stereo := audio.Frame{
		Samples:    make([]float32, 960),
		SampleRate: 48000,
		Channels:   2,
	}
	if got := stereo.Duration(); got != 10*time.Millisecond {
		t.Errorf("stereo Duration = %v, want 10ms", got)
	}

	var zero audio.Frame
	if got := zero.Duration(); got != 0 {
		t.Errorf("zero-value Duration = %v, want 0", got)
	}
}
