package audio

import (
	"sync"
)

// MockSink records writes and can be made to block, for exercising
// cancellation paths in tests.
type MockSink struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	writes   [][]byte
	release  chan struct{}
	blocking bool
}

func NewMockSink() *MockSink {
	return &MockSink{release: make(chan struct{})}
}

// BlockWrites makes every Write block until Stop or ReleaseWrites.
func (s *MockSink) BlockWrites() {
	s.mu.Lock()
	s.blocking = true
	s.mu.Unlock()
}

// ReleaseWrites unblocks any blocked writers.
func (s *MockSink) ReleaseWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.release:
	default:
		close(s.release)
	}
}

func (s *MockSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.stopped = false
	select {
	case <-s.release:
		s.release = make(chan struct{})
	default:
	}
	return nil
}

func (s *MockSink) Write(pcm []byte) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return &DeviceError{Err: errStopped}
	}
	blocking := s.blocking
	release := s.release
	s.writes = append(s.writes, append([]byte(nil), pcm...))
	s.mu.Unlock()

	if blocking {
		<-release
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return &DeviceError{Err: errStopped}
		}
	}
	return nil
}

func (s *MockSink) Drain() error { return nil }

func (s *MockSink) Stop() {
	s.mu.Lock()
	s.stopped = true
	select {
	case <-s.release:
	default:
		close(s.release)
	}
	s.mu.Unlock()
}

func (s *MockSink) Close() error {
	s.Stop()
	return nil
}

// Writes returns a copy of everything written so far.
func (s *MockSink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Stopped reports whether Stop has been called since the last Start.
func (s *MockSink) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
