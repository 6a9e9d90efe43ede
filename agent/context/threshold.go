package context

// DefaultThreshold is the fraction of the available window above which a
// conversation is compacted.
const DefaultThreshold = 0.8

// IsOverThreshold reports whether used/window strictly exceeds fraction.
// Equality is not over. A non-positive window is always over.
func IsOverThreshold(used, window int, fraction float64) bool {
	if window <= 0 {
		return true
	}
	return float64(used)/float64(window) > fraction
}

// UsagePercentage returns used/window clamped to [0, 1]. A non-positive
// window reports 1.
func UsagePercentage(used, window int) float64 {
	if window <= 0 {
		return 1
	}
	p := float64(used) / float64(window)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
