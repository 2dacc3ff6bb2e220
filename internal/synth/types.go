// Package synth defines the synthesis-engine boundary: given text and
// synthesis parameters, an engine produces a finite, lazy sequence of PCM
// chunks. The sequence is not restartable mid-stream and may fail at any
// point.
package synth

import (
	"context"
	"fmt"

	"github.com/speakuplabs/speakupd/internal/tone"
)

// Request contains parameters for one synthesis run.
type Request struct {
	Text   string
	Params tone.Params
}

// Chunk contains 16-bit little-endian PCM data.
type Chunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio. The chunk channel is
// closed when the sequence ends; a mid-stream failure is delivered on the
// error channel and ends the sequence.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}

// SynthesisError wraps an engine failure. The affected message ends up
// failed; the queue continues.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
