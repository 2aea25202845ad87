package speech_extraction

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// NewReplay plays back the WAV files in dir, one file per capture, in name
// order. Files must be mono 16-bit PCM at the configured sample rate. After
// the last file every capture fails with ErrSourceExhausted.
func NewReplay(cfg *Config, dir string) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	files, err := afero.ReadDir(cfg.FileSys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dir %q: %w", dir, err)
	}

	var paths []string
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".wav") {
			continue
		}
		paths = append(paths, filepath.Join(dir, f.Name()))
	}
	sort.Strings(paths)

	r := &replay{fileSys: cfg.FileSys, paths: paths}

	c := *cfg
	applyDefaults(&c)
	r.sampleRate = c.SampleRate
	r.frameSize = c.FrameSize

	v, err := newVoice(c, r.next)
	if err != nil {
		return nil, err
	}

	v.logger.Info().Str("dir", dir).Int("files", len(paths)).Msg("replay source ready")

	return &replaySource{voiceImpl: v}, nil
}

// replaySource recorded audio has no ambient noise to measure, so
// calibration keeps the configured thresholds.
type replaySource struct {
	*voiceImpl
}

func (r *replaySource) Calibrate(_ context.Context) error {
	r.logger.Debug().Msg("calibration skipped for replay source")
	return nil
}

type replay struct {
	fileSys    afero.Fs
	paths      []string
	pos        int
	sampleRate int
	frameSize  int
}

func (r *replay) next() (frameStream, error) {
	if r.pos >= len(r.paths) {
		return nil, ErrSourceExhausted
	}

	path := r.paths[r.pos]
	r.pos++

	samples, err := readWAV(r.fileSys, path, r.sampleRate)
	if err != nil {
		return nil, err
	}

	return &sliceStream{samples: samples, frameSize: r.frameSize}, nil
}

func readWAV(fileSys afero.Fs, path string, sampleRate int) ([]int16, error) {
	f, err := fileSys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}

	if int(decoder.SampleRate) != sampleRate || decoder.NumChans != 1 || decoder.BitDepth != 16 {
		return nil, fmt.Errorf("%s: expected mono 16-bit %d Hz, got %d ch %d-bit %d Hz",
			path, sampleRate, decoder.NumChans, decoder.BitDepth, decoder.SampleRate)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}

	return samples, nil
}

// sliceStream serves a fixed recording frame by frame.
type sliceStream struct {
	samples   []int16
	frameSize int
	pos       int
}

func (s *sliceStream) Read() ([]int16, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}

	end := s.pos + s.frameSize
	if end > len(s.samples) {
		end = len(s.samples)
	}

	frame := s.samples[s.pos:end]
	s.pos = end

	return frame, nil
}

func (s *sliceStream) Close() error {
	return nil
}
