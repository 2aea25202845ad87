package speech_extraction

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// NewMicrophone opens the default input device through portaudio. The
// device is verified once here; streams are opened per capture.
func NewMicrophone(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio: %w", err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("no input device: %w", err)
	}

	c := *cfg
	applyDefaults(&c)

	v, err := newVoice(c, openMicrophone(c.SampleRate, c.FrameSize))
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	v.closer = portaudio.Terminate
	v.logger.Info().Str("device", device.Name).Int("sampleRate", c.SampleRate).Msg("microphone ready")

	return v, nil
}

type micStream struct {
	stream *portaudio.Stream
	in     []int16
}

func openMicrophone(sampleRate int, frameSize int) streamOpener {
	return func() (frameStream, error) {
		in := make([]int16, frameSize)

		stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
		if err != nil {
			return nil, fmt.Errorf("failed to open input stream: %w", err)
		}

		if err := stream.Start(); err != nil {
			_ = stream.Close()
			return nil, fmt.Errorf("failed to start input stream: %w", err)
		}

		return &micStream{stream: stream, in: in}, nil
	}
}

func (m *micStream) Read() ([]int16, error) {
	err := m.stream.Read()
	// an overflow drops older samples but the buffer is still usable
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}

	frame := make([]int16, len(m.in))
	copy(frame, m.in)

	return frame, nil
}

func (m *micStream) Close() error {
	return errors.Join(m.stream.Stop(), m.stream.Close())
}
