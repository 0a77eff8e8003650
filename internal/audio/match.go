package audio

import (
	"fmt"
	"math"
)

// DurationMatchError reports an invalid duration matching request.
type DurationMatchError struct {
	Target float64
}

// Error describes the invariant violation.
func (e *DurationMatchError) Error() string {
	return fmt.Sprintf("duration match: non-positive target duration %.3fs", e.Target)
}

// scaleDeadZone is the relative ratio band inside which a clip is close
// enough to its target that time-scaling is skipped and only pad/trim
// runs, keeping the synthesized voice unwarped.
const scaleDeadZone = 0.05

// Matcher adjusts clip lengths to exact target durations via a uniform
// time-scale plus trailing pad/trim. The scale is a naive linear
// resample: it shifts pitch along with speed. Results always land within
// one sample frame of the target; clip onsets are never trimmed.
type Matcher struct {
	sampleRate int
}

// NewMatcher creates a matcher producing clips at the given rate.
func NewMatcher(sampleRate int) *Matcher {
	return &Matcher{sampleRate: sampleRate}
}

// Match returns clip adjusted to exactly targetDuration seconds.
func (m *Matcher) Match(clip Clip, targetDuration float64) (Clip, error) {
	if targetDuration <= 0 {
		return Clip{}, &DurationMatchError{Target: targetDuration}
	}

	rate := clip.SampleRate
	if rate <= 0 {
		rate = m.sampleRate
		clip.SampleRate = rate
	}
	targetSamples := DurationToSamples(rate, targetDuration)
	if targetSamples < 1 {
		targetSamples = 1
	}

	native := clip.Duration()
	if native > 0 {
		ratio := native / targetDuration
		if math.Abs(ratio-1) >= scaleDeadZone {
			clip = clip.Resampled(targetSamples)
		}
	}

	// Rounding can leave the clip a few samples off; land exactly on the
	// target with trailing silence or a trailing trim.
	return clip.FitTo(targetSamples), nil
}
