package audio

import "sync/atomic"

// NullSink discards audio. It keeps the daemon usable on hosts with no
// output device at all.
type NullSink struct {
	bytes atomic.Int64
}

func NewNullSink() *NullSink { return &NullSink{} }

func (s *NullSink) Start(sampleRate, channels int) error { return nil }

func (s *NullSink) Write(pcm []byte) error {
	s.bytes.Add(int64(len(pcm)))
	return nil
}

func (s *NullSink) Drain() error { return nil }
func (s *NullSink) Stop()        {}
func (s *NullSink) Close() error { return nil }

// BytesWritten reports the total PCM bytes discarded.
func (s *NullSink) BytesWritten() int64 { return s.bytes.Load() }
