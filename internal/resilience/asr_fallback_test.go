package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/auricle/pkg/provider/asr"
	asrmock "github.com/MrWong99/auricle/pkg/provider/asr/mock"
)

func TestASRFallback_StartStream_PrimarySuccess(t *testing.T) {
	sess := &asrmock.Session{MessagesCh: make(chan asr.Message, 1)}
	primary := &asrmock.Provider{Session: sess}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SessionID:  "s1",
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(primary.StartStreamCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.StartStreamCalls))
	}
	if len(secondary.StartStreamCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.StartStreamCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_Failover(t *testing.T) {
	primary := &asrmock.Provider{
		StartStreamErr: errors.New("primary down"),
	}
	secondarySess := &asrmock.Session{MessagesCh: make(chan asr.Message, 1)}
	secondary := &asrmock.Provider{Session: secondarySess}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SessionID:  "s1",
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(secondary.StartStreamCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.StartStreamCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_AllFail(t *testing.T) {
	primary := &asrmock.Provider{StartStreamErr: errors.New("primary down")}
	secondary := &asrmock.Provider{StartStreamErr: errors.New("secondary down")}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.StartStream(context.Background(), asr.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestASRFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &asrmock.Provider{StartStreamErr: errors.New("primary down")}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	// Two failing starts trip the primary breaker.
	for range 2 {
		if _, err := fb.StartStream(context.Background(), asr.StreamConfig{}); err != nil {
			t.Fatalf("failover start: %v", err)
		}
	}
	primaryCalls := len(primary.StartStreamCalls)

	// With the breaker open, the primary is not dialled again.
	if _, err := fb.StartStream(context.Background(), asr.StreamConfig{}); err != nil {
		t.Fatalf("start with open primary breaker: %v", err)
	}
	if got := len(primary.StartStreamCalls); got != primaryCalls {
		t.Errorf("primary called %d times after breaker opened, want %d", got, primaryCalls)
	}
	if len(secondary.StartStreamCalls) != 3 {
		t.Errorf("secondary called %d times, want 3", len(secondary.StartStreamCalls))
	}
}
