package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSink writes each utterance to a timestamped WAV file instead of a
// device. Useful on headless hosts and for inspecting what the engine
// actually produced.
type WavSink struct {
	dir string

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	stopped bool
}

func NewWavSink(dir string) (*WavSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &DeviceError{Err: fmt.Errorf("create wav dir: %w", err)}
	}
	return &WavSink{dir: dir}, nil
}

func (s *WavSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	name := fmt.Sprintf("utterance-%d.wav", time.Now().UnixNano())
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return &DeviceError{Err: err}
	}
	s.file = f
	s.enc = wav.NewEncoder(f, sampleRate, 16, channels, 1)
	s.stopped = false
	return nil
}

func (s *WavSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil || s.stopped {
		return &DeviceError{Err: errStopped}
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{SampleRate: s.enc.SampleRate, NumChannels: s.enc.NumChans},
		SourceBitDepth: 16,
		Data:           samples,
	}
	if err := s.enc.Write(buf); err != nil {
		return &DeviceError{Err: err}
	}
	return nil
}

func (s *WavSink) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *WavSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.closeLocked()
}

func (s *WavSink) Close() error {
	s.Stop()
	return nil
}

func (s *WavSink) closeLocked() {
	if s.enc != nil {
		_ = s.enc.Close()
		s.enc = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}
