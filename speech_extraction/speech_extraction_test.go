package speech_extraction

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"sunday-assistant/vad"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate  = 16000
	testFrame = 1600 // 100ms
)

func silenceFrames(n int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, testFrame)
	}
	return frames
}

func toneFrames(n int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frame := make([]int16, testFrame)
		for j := range frame {
			frame[j] = int16(10000 * math.Sin(2*math.Pi*440*float64(j)/testRate))
		}
		frames[i] = frame
	}
	return frames
}

func concat(parts ...[][]int16) [][]int16 {
	var out [][]int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type fakeStream struct {
	frames [][]int16
	pos    int
	closed bool
	err    error
}

func (f *fakeStream) Read() ([]int16, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.pos >= len(f.frames) {
		return nil, io.EOF
	}
	frame := f.frames[f.pos]
	f.pos++
	return frame, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeDevice struct {
	scripts [][][]int16
	opened  []*fakeStream
	openErr error
}

func (d *fakeDevice) open() (frameStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	var frames [][]int16
	if len(d.scripts) > 0 {
		frames = d.scripts[0]
		d.scripts = d.scripts[1:]
	}
	s := &fakeStream{frames: frames}
	d.opened = append(d.opened, s)
	return s, nil
}

func newTestVoice(t *testing.T, device *fakeDevice, cfg Config) *voiceImpl {
	t.Helper()

	cfg.SampleRate = testRate
	cfg.FrameSize = testFrame
	cfg.Logger = zerolog.Nop()
	if cfg.PauseThreshold == 0 {
		cfg.PauseThreshold = 300 * time.Millisecond
	}
	if cfg.PreRoll == 0 {
		cfg.PreRoll = 200 * time.Millisecond
	}
	if cfg.Detector.MinEnergy == 0 {
		cfg.Detector = vad.Config{InitialEnergy: 1000, MinEnergy: 300}
	}

	v, err := newVoice(cfg, device.open)
	require.NoError(t, err)

	return v
}

func TestCaptureTimesOutOnSilence(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{silenceFrames(100)}}
	v := newTestVoice(t, device, Config{})

	_, err := v.Capture(context.Background(), time.Second, 0)

	assert.ErrorIs(t, err, ErrCaptureTimeout)
	require.Len(t, device.opened, 1)
	assert.True(t, device.opened[0].closed, "stream must be released on timeout")
	assert.Equal(t, 10, device.opened[0].pos, "one second of 100ms frames")
}

func TestCaptureKeepsPreRollAndStopsOnPause(t *testing.T) {
	script := concat(silenceFrames(5), toneFrames(4), silenceFrames(10))
	device := &fakeDevice{scripts: [][][]int16{script}}
	v := newTestVoice(t, device, Config{})

	buf, err := v.Capture(context.Background(), 5*time.Second, 10*time.Second)
	require.NoError(t, err)

	ib, ok := buf.(*audio.IntBuffer)
	require.True(t, ok)
	assert.Equal(t, testRate, ib.Format.SampleRate)
	assert.Equal(t, 1, ib.Format.NumChannels)

	// 2 pre-roll frames + 4 tone frames + 3 silent frames to reach the pause
	assert.Equal(t, 9*testFrame, len(ib.Data))
	assert.True(t, device.opened[0].closed)
}

func TestPreRollDoesNotCarryAcrossCaptures(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{
		silenceFrames(5),
		concat(silenceFrames(1), toneFrames(2), silenceFrames(10)),
	}}
	v := newTestVoice(t, device, Config{})

	_, err := v.Capture(context.Background(), 500*time.Millisecond, 0)
	require.ErrorIs(t, err, ErrCaptureTimeout)

	buf, err := v.Capture(context.Background(), 5*time.Second, 0)
	require.NoError(t, err)

	// 1 pre-roll frame from this capture + 2 tone frames + 3 silent frames
	assert.Equal(t, 6*testFrame, buf.NumFrames())
}

func TestCaptureHonoursPhraseLimit(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{concat(silenceFrames(1), toneFrames(50))}}
	v := newTestVoice(t, device, Config{PreRoll: -1})

	buf, err := v.Capture(context.Background(), time.Second, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5*testFrame, buf.NumFrames())
}

func TestCaptureReturnsPhraseAtEndOfSource(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{concat(silenceFrames(1), toneFrames(2))}}
	v := newTestVoice(t, device, Config{PreRoll: -1})

	buf, err := v.Capture(context.Background(), time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*testFrame, buf.NumFrames())
}

func TestCaptureStopsOnCancellation(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{silenceFrames(100)}}
	v := newTestVoice(t, device, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Capture(ctx, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, device.opened[0].closed)
}

func TestCapturePropagatesDeviceErrors(t *testing.T) {
	boom := errors.New("device unplugged")

	v := newTestVoice(t, &fakeDevice{openErr: boom}, Config{})
	_, err := v.Capture(context.Background(), time.Second, 0)
	assert.ErrorIs(t, err, boom)

	failing := &fakeDevice{}
	v = newTestVoice(t, failing, Config{})
	v.open = func() (frameStream, error) {
		s := &fakeStream{err: boom}
		failing.opened = append(failing.opened, s)
		return s, nil
	}
	_, err = v.Capture(context.Background(), time.Second, 0)
	assert.ErrorIs(t, err, boom)
	assert.True(t, failing.opened[0].closed)
}

func TestCalibrateReacquiresDevice(t *testing.T) {
	device := &fakeDevice{scripts: [][][]int16{silenceFrames(40), silenceFrames(40)}}
	v := newTestVoice(t, device, Config{CalibrationDuration: time.Second})

	require.NoError(t, v.Calibrate(context.Background()))
	require.NoError(t, v.Calibrate(context.Background()))

	require.Len(t, device.opened, 2)
	for _, s := range device.opened {
		assert.True(t, s.closed)
		assert.Equal(t, 10, s.pos)
	}
	assert.Equal(t, 300.0, v.detector.EnergyThreshold())
}

func writeWAV(t *testing.T, fs afero.Fs, path string, frames [][]int16) {
	t.Helper()

	f, err := fs.Create(path)
	require.NoError(t, err)

	var data []int
	for _, frame := range frames {
		for _, s := range frame {
			data = append(data, int(s))
		}
	}

	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestReplayPlaysFilesInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("replay", 0o755))
	writeWAV(t, fs, "replay/02-command.wav", concat(silenceFrames(2), toneFrames(3), silenceFrames(5)))
	writeWAV(t, fs, "replay/01-silence.wav", silenceFrames(3))
	require.NoError(t, afero.WriteFile(fs, "replay/notes.txt", []byte("ignored"), 0o644))

	src, err := NewReplay(&Config{
		FileSys:        fs,
		SampleRate:     testRate,
		FrameSize:      testFrame,
		PauseThreshold: 300 * time.Millisecond,
		PreRoll:        -1,
		Detector:       vad.Config{InitialEnergy: 1000},
		Logger:         zerolog.Nop(),
	}, "replay")
	require.NoError(t, err)

	_, err = src.Capture(context.Background(), 5*time.Second, 0)
	assert.ErrorIs(t, err, ErrCaptureTimeout)

	buf, err := src.Capture(context.Background(), 5*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 6*testFrame, buf.NumFrames())

	_, err = src.Capture(context.Background(), 5*time.Second, 0)
	assert.ErrorIs(t, err, ErrSourceExhausted)

	assert.NoError(t, src.Calibrate(context.Background()))
	assert.NoError(t, src.Close())
}

func TestReplayRejectsWrongFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("replay", 0o755))

	f, err := fs.Create("replay/stereo.wav")
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 44100},
		Data:           make([]int, 2048),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	src, err := NewReplay(&Config{FileSys: fs, SampleRate: testRate, Logger: zerolog.Nop()}, "replay")
	require.NoError(t, err)

	_, err = src.Capture(context.Background(), time.Second, 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCaptureTimeout)
}

func TestCaptureArchivesPhrases(t *testing.T) {
	fs := afero.NewMemMapFs()
	device := &fakeDevice{scripts: [][][]int16{concat(silenceFrames(1), toneFrames(2), silenceFrames(5))}}
	v := newTestVoice(t, device, Config{FileSys: fs, RecordingsDir: "recordings"})

	_, err := v.Capture(context.Background(), time.Second, 0)
	require.NoError(t, err)

	files, err := afero.ReadDir(fs, "recordings")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Greater(t, files[0].Size(), int64(44))
}
