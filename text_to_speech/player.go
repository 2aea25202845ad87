package text_to_speech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const playbackFrames = 1024

// outputStream is the part of a portaudio stream the player drives.
type outputStream interface {
	Start() error
	Write() error
	Stop() error
	Close() error
}

type openFunc func(sampleRate float64, out []int16) (outputStream, error)

type speakerPlayer struct {
	open openFunc
}

// NewSpeakerPlayer plays PCM on the default output device. PortAudio must
// already be initialized; the player only opens and closes streams.
func NewSpeakerPlayer() Player {
	return speakerPlayer{open: openDefaultOutput}
}

func openDefaultOutput(sampleRate float64, out []int16) (outputStream, error) {
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, len(out), &out)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (p speakerPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) (err error) {
	samples := decodePCM16(pcm)
	if len(samples) == 0 {
		return nil
	}

	out := make([]int16, playbackFrames)
	stream, err := p.open(float64(sampleRate), out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer func() {
		err = errors.Join(err, stream.Close())
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer func() {
		err = errors.Join(err, stream.Stop())
	}()

	for _, chunk := range chunkFrames(samples, len(out)) {
		if err := ctx.Err(); err != nil {
			return err
		}

		copy(out, chunk)
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}

	return nil
}

func decodePCM16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// chunkFrames splits samples into size-length frames, zero-padding the last.
func chunkFrames(samples []int16, size int) [][]int16 {
	chunks := make([][]int16, 0, len(samples)/size+1)
	for start := 0; start < len(samples); start += size {
		chunk := make([]int16, size)
		copy(chunk, samples[start:min(start+size, len(samples))])
		chunks = append(chunks, chunk)
	}
	return chunks
}
