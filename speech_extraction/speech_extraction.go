package speech_extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"sunday-assistant/ring_buffer"
	"sunday-assistant/vad"

	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	defaultSampleRate          = 16000
	defaultFrameSize           = 1024
	defaultPauseThreshold      = time.Second
	defaultPreRoll             = 300 * time.Millisecond
	defaultCalibrationDuration = 3 * time.Second
)

type Config struct {
	SampleRate int
	// FrameSize is the number of samples read from the device at a time.
	FrameSize int
	// PauseThreshold is how much trailing silence ends a phrase.
	PauseThreshold time.Duration
	// PreRoll is how much audio before the detected onset is kept.
	PreRoll             time.Duration
	CalibrationDuration time.Duration
	Detector            vad.Config

	// RecordingsDir, when set, receives a WAV copy of every captured phrase.
	RecordingsDir string
	FileSys       afero.Fs
	Logger        zerolog.Logger
}

// frameStream is an opened input device.
type frameStream interface {
	// Read returns the next frame, or io.EOF when a finite source ends.
	Read() ([]int16, error)
	Close() error
}

type streamOpener func() (frameStream, error)

// voiceImpl runs voice activity detection over whatever stream opener it is
// given. The microphone and replay sources only differ in their opener.
type voiceImpl struct {
	cfg      Config
	open     streamOpener
	detector *vad.Detector
	// preRoll holds the audio heard just before onset; nil when disabled.
	preRoll  *ring_buffer.Buffer
	archive  *archive
	logger   zerolog.Logger
	closer   func() error
}

func applyDefaults(cfg *Config) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = defaultPauseThreshold
	}
	if cfg.PreRoll < 0 {
		cfg.PreRoll = 0
	} else if cfg.PreRoll == 0 {
		cfg.PreRoll = defaultPreRoll
	}
	if cfg.CalibrationDuration <= 0 {
		cfg.CalibrationDuration = defaultCalibrationDuration
	}
}

func newVoice(cfg Config, open streamOpener) (*voiceImpl, error) {
	applyDefaults(&cfg)

	logger := cfg.Logger.With().Str("component", "capture").Logger()

	var arch *archive
	if cfg.RecordingsDir != "" {
		if cfg.FileSys == nil {
			return nil, fmt.Errorf("fileSys is nil")
		}

		var err error
		arch, err = newArchive(cfg.FileSys, cfg.RecordingsDir, cfg.SampleRate)
		if err != nil {
			return nil, err
		}
	}

	v := &voiceImpl{
		cfg:      cfg,
		open:     open,
		detector: vad.New(cfg.Detector),
		archive:  arch,
		logger:   logger,
	}

	// keep a buffer of the first bit of audio before detection
	if n := int(cfg.PreRoll.Seconds() * float64(cfg.SampleRate)); n > 0 {
		v.preRoll = ring_buffer.New(n)
	}

	return v, nil
}

func (v *voiceImpl) Capture(ctx context.Context, timeout time.Duration, phraseLimit time.Duration) (audio.Buffer, error) {
	stream, err := v.open()
	if err != nil {
		return nil, err
	}

	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			v.logger.Warn().Err(closeErr).Msg("error while closing input stream")
		}
	}()

	samples, err := v.listenIntoBuffer(ctx, stream, timeout, phraseLimit)
	if err != nil {
		return nil, err
	}

	if v.archive != nil {
		if name, archErr := v.archive.save(samples); archErr != nil {
			v.logger.Warn().Err(archErr).Msg("failed to archive phrase")
		} else {
			v.logger.Debug().Str("file", name).Msg("archived phrase")
		}
	}

	return v.toBuffer(samples), nil
}

func (v *voiceImpl) Calibrate(ctx context.Context) error {
	stream, err := v.open()
	if err != nil {
		return err
	}

	defer stream.Close()

	var (
		frames  [][]int16
		elapsed time.Duration
	)

	for elapsed < v.cfg.CalibrationDuration {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := stream.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("calibration read failed: %w", err)
		}

		frames = append(frames, frame)
		elapsed += v.frameDuration(len(frame))
	}

	v.detector.Calibrate(frames)

	v.logger.Info().
		Float64("energyThreshold", v.detector.EnergyThreshold()).
		Float64("fluxThreshold", v.detector.FluxThreshold()).
		Int("frames", len(frames)).
		Msg("calibrated ambient noise")

	return nil
}

func (v *voiceImpl) Close() error {
	if v.closer != nil {
		return v.closer()
	}

	return nil
}

// listenIntoBuffer waits for onset, then records until a pause or the phrase
// limit. Time is measured in samples read so finite sources behave the same
// as a live device.
func (v *voiceImpl) listenIntoBuffer(ctx context.Context, stream frameStream, timeout time.Duration, phraseLimit time.Duration) ([]int16, error) {
	var (
		heardSomething bool
		waited         time.Duration
		spoken         time.Duration
		quiet          time.Duration
		samples        []int16
	)

	v.detector.Reset()

	preRoll := v.preRoll
	if preRoll != nil {
		preRoll.Clear()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := stream.Read()
		if errors.Is(err, io.EOF) {
			if heardSomething {
				return samples, nil
			}

			return nil, ErrCaptureTimeout
		}
		if err != nil {
			return nil, fmt.Errorf("input stream read failed: %w", err)
		}

		frameDur := v.frameDuration(len(frame))

		if !heardSomething {
			if v.detector.Onset(frame) {
				heardSomething = true
				if preRoll != nil {
					v.logger.Debug().Int("preRollSamples", preRoll.Len()).Msg("speech onset")
					samples = append(samples, preRoll.Read()...)
				}
				samples = append(samples, frame...)
				spoken = frameDur

				continue
			}

			v.detector.Adapt(frame, frameDur.Seconds())
			if preRoll != nil {
				preRoll.Add(frame)
			}

			waited += frameDur
			if timeout > 0 && waited >= timeout {
				return nil, ErrCaptureTimeout
			}

			continue
		}

		samples = append(samples, frame...)
		spoken += frameDur

		if v.detector.Silent(frame) {
			quiet += frameDur
			if quiet >= v.cfg.PauseThreshold {
				return samples, nil
			}
		} else {
			quiet = 0
		}

		if phraseLimit > 0 && spoken >= phraseLimit {
			return samples, nil
		}
	}
}

func (v *voiceImpl) frameDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(v.cfg.SampleRate)
}

func (v *voiceImpl) toBuffer(samples []int16) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  v.cfg.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
