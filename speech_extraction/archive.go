package speech_extraction

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// archive keeps a WAV copy of every captured phrase for later replay or
// inspection.
type archive struct {
	fileSys    afero.Fs
	dir        string
	sampleRate int
	now        func() time.Time
}

func newArchive(fileSys afero.Fs, dir string, sampleRate int) (*archive, error) {
	if err := fileSys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir %q: %w", dir, err)
	}

	return &archive{
		fileSys:    fileSys,
		dir:        dir,
		sampleRate: sampleRate,
		now:        time.Now,
	}, nil
}

func (a *archive) save(samples []int16) (string, error) {
	name := filepath.Join(a.dir, fmt.Sprintf("phrase-%d.wav", a.now().UnixNano()))

	waveFile, err := a.fileSys.Create(name)
	if err != nil {
		return "", err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    a.sampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		_ = waveFile.Close()
		return "", err
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		_ = waveWriter.Close()
		return "", err
	}

	return name, waveWriter.Close()
}
