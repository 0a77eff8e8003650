package timeline

import (
	"errors"
	"fmt"

	"voice-converter/internal/audio"
	"voice-converter/internal/domain"
)

// ErrNoSpeech is returned when no sentences are left to reconstruct.
var ErrNoSpeech = errors.New("no speech detected")

// SynthesizedClip pairs a retained sentence with the waveform synthesized
// for it. Index refers to the sentence's position in the filtered list.
type SynthesizedClip struct {
	Index    int
	Waveform audio.Clip
}

// NativeDuration is the clip length as the synthesizer produced it.
func (c SynthesizedClip) NativeDuration() float64 {
	return c.Waveform.Duration()
}

// Reconstructor assembles synthesized clips into a single output waveform
// according to a placement policy.
type Reconstructor struct {
	sampleRate int
	matcher    *audio.Matcher
}

func NewReconstructor(sampleRate int) *Reconstructor {
	return &Reconstructor{
		sampleRate: sampleRate,
		matcher:    audio.NewMatcher(sampleRate),
	}
}

// Render builds the output waveform for the given policy. Sentences must be
// sorted by start time and clips must carry one entry per sentence, matched
// by position. totalDuration is the length of the source recording in
// seconds and bounds the policies that preserve original timing.
func (r *Reconstructor) Render(policy domain.ReconstructionPolicy, sentences []domain.IndexedSentence, clips []SynthesizedClip, totalDuration float64) (audio.Clip, error) {
	if len(sentences) == 0 {
		return audio.Clip{}, ErrNoSpeech
	}
	if len(clips) != len(sentences) {
		return audio.Clip{}, fmt.Errorf("have %d clips for %d sentences", len(clips), len(sentences))
	}
	if totalDuration <= 0 {
		return audio.Clip{}, fmt.Errorf("invalid total duration %.3fs", totalDuration)
	}

	switch policy {
	case domain.PolicyOriginal:
		return r.renderOriginal(sentences, clips, totalDuration)
	case domain.PolicyContinuous:
		return r.renderContinuous(clips)
	case domain.PolicyContinuousWithSpaces:
		return r.renderContinuousWithSpaces(sentences, clips, totalDuration)
	case domain.PolicySameLength:
		return r.renderSameLength(clips, totalDuration)
	case domain.PolicyTimestampBased:
		return r.renderTimestampBased(sentences, clips)
	default:
		return audio.Clip{}, fmt.Errorf("unknown reconstruction policy %q", policy)
	}
}

// renderOriginal places each clip at its sentence's original start over a
// silent canvas of exactly totalDuration. Clips are stretched or padded to
// their sentence's span so nothing bleeds past the next sentence.
func (r *Reconstructor) renderOriginal(sentences []domain.IndexedSentence, clips []SynthesizedClip, totalDuration float64) (audio.Clip, error) {
	out := audio.Silence(r.sampleRate, totalDuration)
	for i, s := range sentences {
		matched, err := r.matcher.Match(clips[i].Waveform, s.Duration())
		if err != nil {
			return audio.Clip{}, err
		}
		offset := audio.DurationToSamples(r.sampleRate, s.Start)
		for j, sample := range matched.Samples {
			if offset+j >= len(out.Samples) {
				break
			}
			out.Samples[offset+j] = sample
		}
	}
	return out, nil
}

// renderContinuous concatenates the clips back to back at their native
// lengths, discarding all original timing.
func (r *Reconstructor) renderContinuous(clips []SynthesizedClip) (audio.Clip, error) {
	waveforms := make([]audio.Clip, len(clips))
	for i, c := range clips {
		waveforms[i] = c.Waveform
	}
	return audio.Concat(r.sampleRate, waveforms...)
}

// renderContinuousWithSpaces appends clips at native length but restores
// silence before each sentence whose original start lies beyond the current
// write position. The result is padded to totalDuration when speech ends
// early and allowed to run longer when native clips outgrow their slots.
func (r *Reconstructor) renderContinuousWithSpaces(sentences []domain.IndexedSentence, clips []SynthesizedClip, totalDuration float64) (audio.Clip, error) {
	out := audio.NewClip(r.sampleRate, nil)
	for i, s := range sentences {
		startAt := audio.DurationToSamples(r.sampleRate, s.Start)
		if gap := startAt - len(out.Samples); gap > 0 {
			out.Samples = append(out.Samples, make([]float64, gap)...)
		}
		var err error
		out, err = out.Append(clips[i].Waveform)
		if err != nil {
			return audio.Clip{}, err
		}
	}
	if target := audio.DurationToSamples(r.sampleRate, totalDuration); len(out.Samples) < target {
		out = out.FitTo(target)
	}
	return out, nil
}

// renderSameLength divides totalDuration among the clips proportionally to
// their native lengths, stretches each into its slot, and trims the
// concatenation to exactly totalDuration.
func (r *Reconstructor) renderSameLength(clips []SynthesizedClip, totalDuration float64) (audio.Clip, error) {
	var nativeTotal float64
	for _, c := range clips {
		nativeTotal += c.NativeDuration()
	}
	if nativeTotal <= 0 {
		return audio.Clip{}, ErrNoSpeech
	}

	out := audio.NewClip(r.sampleRate, nil)
	for _, c := range clips {
		slot := totalDuration * c.NativeDuration() / nativeTotal
		matched, err := r.matcher.Match(c.Waveform, slot)
		if err != nil {
			return audio.Clip{}, err
		}
		out, err = out.Append(matched)
		if err != nil {
			return audio.Clip{}, err
		}
	}
	return out.FitTo(audio.DurationToSamples(r.sampleRate, totalDuration)), nil
}

// renderTimestampBased stretches each clip to its sentence's original span
// and concatenates the results, so the output lasts exactly as long as the
// speech in the source did.
func (r *Reconstructor) renderTimestampBased(sentences []domain.IndexedSentence, clips []SynthesizedClip) (audio.Clip, error) {
	out := audio.NewClip(r.sampleRate, nil)
	for i, s := range sentences {
		matched, err := r.matcher.Match(clips[i].Waveform, s.Duration())
		if err != nil {
			return audio.Clip{}, err
		}
		out, err = out.Append(matched)
		if err != nil {
			return audio.Clip{}, err
		}
	}
	return out, nil
}
