package audio

import (
	"errors"
	"math"
	"testing"
)

// TestMatchHitsTargetWithinOneFrame covers stretch, compress, and the
// near-match dead zone.
func TestMatchHitsTargetWithinOneFrame(t *testing.T) {
	const rate = 16000
	m := NewMatcher(rate)
	frame := 1.0 / float64(rate)

	cases := []struct {
		name   string
		native float64
		target float64
	}{
		{"stretch", 1.0, 2.5},
		{"compress", 3.0, 1.2},
		{"dead zone", 1.02, 1.0},
		{"tiny target", 0.8, 0.05},
		{"already exact", 2.0, 2.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clip := Silence(rate, tc.native)
			for i := range clip.Samples {
				clip.Samples[i] = math.Sin(float64(i) / 50)
			}

			out, err := m.Match(clip, tc.target)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if diff := math.Abs(out.Duration() - tc.target); diff > frame {
				t.Fatalf("duration = %v, want %v within %v", out.Duration(), tc.target, frame)
			}
		})
	}
}

// TestMatchDeadZoneSkipsTimeScale verifies a near-match keeps the
// original waveform and only trims the tail.
func TestMatchDeadZoneSkipsTimeScale(t *testing.T) {
	const rate = 16000
	clip := Silence(rate, 1.02)
	for i := range clip.Samples {
		clip.Samples[i] = float64(i%100) / 100
	}

	out, err := NewMatcher(rate).Match(clip, 1.0)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	for i := 0; i < 100; i++ {
		if out.Samples[i] != clip.Samples[i] {
			t.Fatalf("sample %d rewritten: %v != %v", i, out.Samples[i], clip.Samples[i])
		}
	}
}

// TestMatchPadsShortClipAtTail verifies padding never shifts the onset.
func TestMatchPadsShortClipAtTail(t *testing.T) {
	const rate = 16000
	clip := Silence(rate, 0.98)
	for i := range clip.Samples {
		clip.Samples[i] = 0.5
	}

	out, err := NewMatcher(rate).Match(clip, 1.0)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if out.Samples[0] != 0.5 {
		t.Fatalf("onset sample = %v, want 0.5", out.Samples[0])
	}
	if out.Samples[len(out.Samples)-1] != 0 {
		t.Fatalf("expected trailing silence, got %v", out.Samples[len(out.Samples)-1])
	}
}

// TestMatchRejectsNonPositiveTarget checks the DurationMatchError path.
func TestMatchRejectsNonPositiveTarget(t *testing.T) {
	m := NewMatcher(16000)
	for _, target := range []float64{0, -1} {
		_, err := m.Match(Silence(16000, 1), target)
		var matchErr *DurationMatchError
		if !errors.As(err, &matchErr) {
			t.Fatalf("target %v: error = %v, want DurationMatchError", target, err)
		}
	}
}
