package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DeviceSink streams PCM to the default output device through oto. One oto
// context is created up front (its sample rate is fixed for the process);
// each utterance gets its own player reading from a pipe so playback starts
// as soon as the first chunk is written.
type DeviceSink struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
	drainWait  time.Duration

	mu     sync.Mutex
	player *oto.Player
	pw     *io.PipeWriter
}

var errStopped = errors.New("playback stopped")

func NewDeviceSink(sampleRate, channels, bufferMS, drainWaitMS int) (*DeviceSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(bufferMS) * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, &DeviceError{Err: err}
	}
	<-ready

	return &DeviceSink{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		drainWait:  time.Duration(drainWaitMS) * time.Millisecond,
	}, nil
}

func (s *DeviceSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sampleRate != s.sampleRate || channels != s.channels {
		return &DeviceError{Err: errors.New("sample rate or channel change requires restart")}
	}
	if s.player != nil {
		s.stopLocked()
	}
	pr, pw := io.Pipe()
	player := s.ctx.NewPlayer(pr)
	player.Play()
	s.player = player
	s.pw = pw
	return nil
}

func (s *DeviceSink) Write(pcm []byte) error {
	s.mu.Lock()
	pw := s.pw
	s.mu.Unlock()
	if pw == nil {
		return &DeviceError{Err: errStopped}
	}
	if _, err := pw.Write(pcm); err != nil {
		return &DeviceError{Err: err}
	}
	return nil
}

// Drain closes the feed and waits for the device buffer to empty, so the
// tail of this utterance is not cut off by the next one.
func (s *DeviceSink) Drain() error {
	s.mu.Lock()
	player := s.player
	pw := s.pw
	s.mu.Unlock()
	if player == nil {
		return nil
	}
	if pw != nil {
		pw.Close()
	}
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(s.drainWait)

	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	return nil
}

// Stop aborts the current utterance immediately, bounded by the device
// buffer, not by remaining audio. Safe to call when nothing is playing.
func (s *DeviceSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *DeviceSink) stopLocked() {
	if s.pw != nil {
		s.pw.CloseWithError(errStopped)
		s.pw = nil
	}
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
}

func (s *DeviceSink) Close() error {
	s.Stop()
	// oto v3 contexts have no Close; the context is released with the process.
	return nil
}
