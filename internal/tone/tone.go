// Package tone maps semantic tone names to synthesis parameters.
package tone

import "github.com/speakuplabs/speakupd/internal/message"

// Params parameterizes one synthesis run. NoiseScale and NoiseScaleW control
// prosody variance, LengthScale the utterance duration (lower is faster).
type Params struct {
	NoiseScale  float64 `json:"noise_scale"`
	NoiseScaleW float64 `json:"noise_scale_w"`
	LengthScale float64 `json:"length_scale"`
}

var presets = map[message.Tone]Params{
	message.ToneNeutral:   {NoiseScale: 0.667, NoiseScaleW: 0.8, LengthScale: 1.0},
	message.ToneExcited:   {NoiseScale: 0.8, NoiseScaleW: 0.9, LengthScale: 0.9},
	message.ToneConcerned: {NoiseScale: 0.5, NoiseScaleW: 0.6, LengthScale: 1.1},
	message.ToneCalm:      {NoiseScale: 0.4, NoiseScaleW: 0.5, LengthScale: 1.15},
	message.ToneUrgent:    {NoiseScale: 0.7, NoiseScaleW: 0.85, LengthScale: 0.85},
}

// Resolve returns the parameters for a tone at the given speed multiplier.
// Unknown tones fall back to neutral. Speed scales the length inversely.
func Resolve(t message.Tone, speed float64) Params {
	base, ok := presets[t]
	if !ok {
		base = presets[message.ToneNeutral]
	}
	if speed <= 0 {
		speed = 1.0
	}
	base.LengthScale = base.LengthScale / speed
	return base
}

// Available lists all known tone names.
func Available() []message.Tone {
	return []message.Tone{
		message.ToneNeutral,
		message.ToneExcited,
		message.ToneConcerned,
		message.ToneCalm,
		message.ToneUrgent,
	}
}
