package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to an external engine process per utterance. The
// request goes to stdin as one JSON object; the engine streams NDJSON chunk
// lines on stdout as it synthesizes, so playback can begin before the full
// utterance is generated. The mutex serializes runs: one engine process at a
// time.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text        string  `json:"text"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseScaleW float64 `json:"noise_scale_w"`
	LengthScale float64 `json:"length_scale"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
	Error     string `json:"error,omitempty"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		payload := execRequest{
			Text:        req.Text,
			NoiseScale:  req.Params.NoiseScale,
			NoiseScaleW: req.Params.NoiseScaleW,
			LengthScale: req.Params.LengthScale,
			SampleRate:  e.sampleRate,
			Channels:    e.channels,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			errs <- &SynthesisError{Err: err}
			return
		}

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		cmd := exec.CommandContext(ctx, base, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			errs <- &SynthesisError{Err: err}
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- &SynthesisError{Err: err}
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- &SynthesisError{Err: err}
			return
		}

		if _, err := stdin.Write(data); err != nil {
			errs <- &SynthesisError{Err: err}
			cmd.Wait()
			return
		}
		stdin.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		sequence := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- &SynthesisError{Err: err}
				cmd.Wait()
				return
			}
			if resp.Error != "" {
				errs <- &SynthesisError{Err: fmt.Errorf("engine: %s", resp.Error)}
				cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				errs <- &SynthesisError{Err: err}
				cmd.Wait()
				return
			}
			chunk := Chunk{
				Sequence:   sequence,
				SampleRate: e.sampleRate,
				Channels:   e.channels,
				PCM:        pcm,
				Final:      resp.Final,
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				cmd.Wait()
				return
			}
			sequence++
		}
		if err := cmd.Wait(); err != nil {
			errs <- &SynthesisError{Err: err}
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- &SynthesisError{Err: scanErr}
		}
	}()

	return chunks, errs
}
