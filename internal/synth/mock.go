package synth

import (
	"context"
	"time"
)

// mockSynth emits silence proportional to the text length. It keeps the full
// pipeline exercisable without a model: chunks arrive incrementally, scaled
// by the request's length scale, so cancellation and streaming behave as
// they would with a real engine.
type mockSynth struct {
	sampleRate int
	channels   int
	chunkDur   time.Duration
	chunkDelay time.Duration
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{
		sampleRate: sampleRate,
		channels:   channels,
		chunkDur:   40 * time.Millisecond,
		chunkDelay: 5 * time.Millisecond,
	}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		// Roughly 60ms of audio per word, stretched by the length scale.
		words := 1 + len(req.Text)/6
		total := time.Duration(words) * 60 * time.Millisecond
		if req.Params.LengthScale > 0 {
			total = time.Duration(float64(total) * req.Params.LengthScale)
		}
		count := int(total/m.chunkDur) + 1

		samplesPerChunk := int(float64(m.sampleRate) * m.chunkDur.Seconds())
		pcm := make([]byte, samplesPerChunk*m.channels*2)

		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case <-time.After(m.chunkDelay):
			}
			chunk := Chunk{
				Sequence:   i,
				SampleRate: m.sampleRate,
				Channels:   m.channels,
				PCM:        pcm,
				Final:      i == count-1,
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}
