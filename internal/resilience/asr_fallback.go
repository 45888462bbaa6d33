package resilience

import (
	"context"

	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// ASRFallback implements [asr.Provider] with automatic failover across a
// primary and backup analysis endpoints. Each endpoint has its own circuit
// breaker.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
}

// Compile-time interface assertion.
var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// endpoint.
func NewASRFallback(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional analysis endpoint as a backup.
func (f *ASRFallback) AddFallback(name string, provider asr.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens an analysis session against the first healthy endpoint.
// If the primary fails to start the session, backups are tried in order.
func (f *ASRFallback) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p asr.Provider) (asr.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
