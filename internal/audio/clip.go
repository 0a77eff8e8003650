package audio

import (
	"fmt"
	"math"
)

// Clip is a mono PCM waveform held in memory. Samples are normalized
// float64 values in [-1, 1]; duration is derived from the sample count.
type Clip struct {
	SampleRate int
	Samples    []float64
}

// NewClip wraps samples at the given rate.
func NewClip(sampleRate int, samples []float64) Clip {
	return Clip{SampleRate: sampleRate, Samples: samples}
}

// Silence returns a clip of zero samples covering duration seconds.
// Negative durations yield an empty clip.
func Silence(sampleRate int, duration float64) Clip {
	n := DurationToSamples(sampleRate, duration)
	if n < 0 {
		n = 0
	}
	return Clip{SampleRate: sampleRate, Samples: make([]float64, n)}
}

// DurationToSamples converts seconds to a whole sample count.
func DurationToSamples(sampleRate int, duration float64) int {
	return int(math.Round(duration * float64(sampleRate)))
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Empty reports whether the clip has no samples.
func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

// Append returns c followed by other. Both clips must share a sample rate.
func (c Clip) Append(other Clip) (Clip, error) {
	if c.SampleRate == 0 {
		return other, nil
	}
	if other.SampleRate != 0 && other.SampleRate != c.SampleRate {
		return Clip{}, fmt.Errorf("sample rate mismatch: %d vs %d", c.SampleRate, other.SampleRate)
	}

	out := make([]float64, 0, len(c.Samples)+len(other.Samples))
	out = append(out, c.Samples...)
	out = append(out, other.Samples...)
	return Clip{SampleRate: c.SampleRate, Samples: out}, nil
}

// Concat joins clips in order with no silence between them.
func Concat(sampleRate int, clips ...Clip) (Clip, error) {
	out := Clip{SampleRate: sampleRate}
	var err error
	for _, clip := range clips {
		out, err = out.Append(clip)
		if err != nil {
			return Clip{}, err
		}
	}
	return out, nil
}

// Resampled returns the clip stretched or compressed to exactly n samples
// using linear interpolation. This is a uniform time-scale: playback
// speed changes and pitch shifts with it.
func (c Clip) Resampled(n int) Clip {
	if n <= 0 {
		return Clip{SampleRate: c.SampleRate}
	}
	if len(c.Samples) == 0 {
		return Clip{SampleRate: c.SampleRate, Samples: make([]float64, n)}
	}
	if n == len(c.Samples) {
		return Clip{SampleRate: c.SampleRate, Samples: append([]float64(nil), c.Samples...)}
	}

	out := make([]float64, n)
	if len(c.Samples) == 1 {
		for i := range out {
			out[i] = c.Samples[0]
		}
		return Clip{SampleRate: c.SampleRate, Samples: out}
	}

	step := float64(len(c.Samples)-1) / float64(n-1)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(c.Samples)-1 {
			out[i] = c.Samples[len(c.Samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = c.Samples[idx]*(1-frac) + c.Samples[idx+1]*frac
	}
	return Clip{SampleRate: c.SampleRate, Samples: out}
}

// FitTo pads trailing silence or trims trailing samples so the clip holds
// exactly n samples. The clip start is never cut.
func (c Clip) FitTo(n int) Clip {
	if n < 0 {
		n = 0
	}
	if len(c.Samples) == n {
		return c
	}

	out := make([]float64, n)
	copy(out, c.Samples)
	return Clip{SampleRate: c.SampleRate, Samples: out}
}
