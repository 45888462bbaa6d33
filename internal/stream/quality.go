package stream

import "time"

// Quality is the coarse network quality ordinal derived from recent loss
// rate and average round-trip latency.
type Quality int

// Quality levels, ordered worst to best.
const (
	QualityPoor Quality = iota
	QualityFair
	QualityGood
	QualityExcellent
)

// String returns the lowercase quality name.
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	default:
		return "poor"
	}
}

// deriveQuality maps loss rate and average latency onto the quality
// ordinal. Each tier requires both figures to clear its bar.
func deriveQuality(lossRate float64, avgLatency time.Duration) Quality {
	switch {
	case lossRate < 0.01 && avgLatency < 150*time.Millisecond:
		return QualityExcellent
	case lossRate < 0.05 && avgLatency < 300*time.Millisecond:
		return QualityGood
	case lossRate < 0.15 && avgLatency < 500*time.Millisecond:
		return QualityFair
	default:
		return QualityPoor
	}
}
