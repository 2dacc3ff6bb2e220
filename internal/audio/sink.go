// Package audio defines the audio-output boundary. A sink accepts PCM chunks
// for immediate playback and exposes an immediate-stop primitive; the
// streaming player exclusively owns the sink for the duration of one
// utterance.
package audio

import "fmt"

// Sink plays one utterance at a time. Start begins an utterance, Write feeds
// it, Drain waits for buffered audio to finish, Stop aborts within the audio
// buffer latency. Stop may be called concurrently with Write/Drain.
type Sink interface {
	Start(sampleRate, channels int) error
	Write(pcm []byte) error
	Drain() error
	Stop()
	Close() error
}

// DeviceError wraps an audio-output failure. It surfaces to the submitter as
// a failed message; the service keeps running.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
