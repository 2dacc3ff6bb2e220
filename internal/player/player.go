// Package player drives one message's synthesis-to-audio pipeline. Chunks are
// pulled lazily from the engine and fed to the sink as they arrive, so
// playback begins after roughly one chunk's synthesis latency regardless of
// utterance length, and can be stopped mid-utterance within the audio buffer
// latency.
package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/speakuplabs/speakupd/internal/audio"
	"github.com/speakuplabs/speakupd/internal/message"
	"github.com/speakuplabs/speakupd/internal/synth"
	"github.com/speakuplabs/speakupd/internal/tone"
)

// Result classifies how one playback attempt ended.
type Result string

const (
	ResultCompleted Result = "completed"
	ResultCancelled Result = "cancelled"
	ResultError     Result = "error"
)

// Playback is the outcome of one Play call.
type Playback struct {
	Result     Result
	DurationMS float64
	Err        error
}

// Player is reused across messages; it is idle between playbacks. The
// protocol is Arm then Play: Arm installs the cancellation hook, Play runs
// the armed playback to completion. Splitting the two lets the caller make
// the message externally visible as playing between them, with Cancel
// already effective — a cancel can never slip through before Play begins.
// Cancel may be called concurrently from any goroutine.
type Player struct {
	synth   synth.Synthesizer
	sink    audio.Sink
	timeout time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	playCtx   context.Context
	cancel    context.CancelFunc
	cancelled bool
}

func New(s synth.Synthesizer, sink audio.Sink, playTimeout time.Duration, log *slog.Logger) *Player {
	return &Player{
		synth:   s,
		sink:    sink,
		timeout: playTimeout,
		log:     log.With(slog.String("component", "player")),
	}
}

// Arm prepares the next Play call. From this point Cancel lands, whether or
// not Play has started yet. The generous timeout guards against an
// unresponsive engine wedging the queue forever.
func (p *Player) Arm(ctx context.Context) {
	playCtx, cancel := context.WithTimeout(ctx, p.timeout)
	p.mu.Lock()
	p.playCtx = playCtx
	p.cancel = cancel
	p.cancelled = false
	p.mu.Unlock()
}

// Disarm releases an armed playback that will not run.
func (p *Player) Disarm() {
	p.mu.Lock()
	cancel := p.cancel
	p.playCtx = nil
	p.cancel = nil
	p.cancelled = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Play synthesizes and plays one message under the context installed by the
// preceding Arm call. A timeout expiry ends the attempt as an error; any
// other cancellation ends it as cancelled.
func (p *Player) Play(msg message.Message) Playback {
	p.mu.Lock()
	playCtx := p.playCtx
	cancel := p.cancel
	p.mu.Unlock()
	if playCtx == nil {
		return Playback{Result: ResultError, Err: errors.New("playback not armed")}
	}
	defer func() {
		p.mu.Lock()
		if p.playCtx == playCtx {
			p.playCtx = nil
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	params := tone.Resolve(msg.Tone, msg.Speed)
	chunks, errs := p.synth.Synthesize(playCtx, synth.Request{Text: msg.SpokenText, Params: params})

	var (
		started    bool
		totalBytes int
		sampleRate int
		channels   int
		synthErr   error
	)

	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if !started {
				sampleRate = chunk.SampleRate
				channels = chunk.Channels
				if err := p.sink.Start(sampleRate, channels); err != nil {
					p.sink.Stop()
					return Playback{Result: ResultError, Err: err}
				}
				started = true
			}
			if err := p.sink.Write(chunk.PCM); err != nil {
				if p.wasCancelled() {
					return Playback{Result: ResultCancelled, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
				}
				p.sink.Stop()
				return Playback{Result: ResultError, Err: err}
			}
			totalBytes += len(chunk.PCM)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				synthErr = err
			}

		case <-playCtx.Done():
			if p.wasCancelled() || errors.Is(playCtx.Err(), context.Canceled) {
				p.sink.Stop()
				return Playback{Result: ResultCancelled, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
			}
			p.sink.Stop()
			return Playback{Result: ResultError, Err: playCtx.Err()}
		}
	}

	if synthErr != nil {
		if p.wasCancelled() || errors.Is(synthErr, context.Canceled) {
			return Playback{Result: ResultCancelled, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
		}
		// Already-emitted audio is not retracted; the stream just stops here.
		p.sink.Stop()
		return Playback{Result: ResultError, Err: synthErr}
	}

	if started {
		if err := p.sink.Drain(); err != nil {
			if p.wasCancelled() {
				return Playback{Result: ResultCancelled, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
			}
			return Playback{Result: ResultError, Err: err}
		}
	}
	if p.wasCancelled() {
		return Playback{Result: ResultCancelled, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
	}
	return Playback{Result: ResultCompleted, DurationMS: pcmDuration(totalBytes, sampleRate, channels)}
}

// Cancel stops the armed playback, if any, causing its Play to return
// cancelled rather than completed. Audio output stops within the sink's
// buffer latency, not after the remaining text. It reports whether a
// playback was armed to receive the cancel.
func (p *Player) Cancel() bool {
	p.mu.Lock()
	cancel := p.cancel
	if cancel != nil {
		p.cancelled = true
	}
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	p.sink.Stop()
	return true
}

func (p *Player) wasCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func pcmDuration(totalBytes, sampleRate, channels int) float64 {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := totalBytes / (2 * channels)
	return float64(samples) / float64(sampleRate) * 1000
}
