package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const transcriptTimeFormat = time.RFC3339

type Config struct {
	FileSys        afero.Fs
	StatusPath     string
	TranscriptPath string
	Logger         zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// Reporter writes the status record and the conversation transcript. It is
// safe for concurrent use: the listen loop, the speech worker and the
// navigation start-up task all report through the same instance.
type Reporter struct {
	fileSys        afero.Fs
	statusPath     string
	transcriptPath string
	logger         zerolog.Logger
	now            func() time.Time

	mu   sync.Mutex
	last Record
}

func New(cfg *Config) (*Reporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.StatusPath == "" {
		return nil, fmt.Errorf("statusPath is empty")
	}

	if cfg.TranscriptPath == "" {
		return nil, fmt.Errorf("transcriptPath is empty")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	for _, p := range []string{cfg.StatusPath, cfg.TranscriptPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := cfg.FileSys.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}

	return &Reporter{
		fileSys:        cfg.FileSys,
		statusPath:     cfg.StatusPath,
		transcriptPath: cfg.TranscriptPath,
		logger:         cfg.Logger.With().Str("component", "status").Logger(),
		now:            now,
	}, nil
}

func (r *Reporter) Report(state State, command string, response string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := Record{
		State:        state,
		Timestamp:    float64(r.now().UnixNano()) / float64(time.Second),
		LastCommand:  command,
		LastResponse: response,
	}
	r.last = record

	if err := r.writeStatus(record); err != nil {
		r.logger.Warn().Err(err).Str("state", string(state)).Msg("status write failed")
	}
}

// writeStatus replaces the status file through a rename so pollers never
// observe a half-written record.
func (r *Reporter) writeStatus(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	tmp := r.statusPath + ".tmp"
	if err := afero.WriteFile(r.fileSys, tmp, data, 0o644); err != nil {
		return err
	}

	return r.fileSys.Rename(tmp, r.statusPath)
}

func (r *Reporter) Transcript(speaker Speaker, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("[%s] %s: %s\n", r.now().Format(transcriptTimeFormat), speaker, message)

	r.logger.Info().Str("speaker", string(speaker)).Msg(message)

	f, err := r.fileSys.OpenFile(r.transcriptPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn().Err(err).Msg("transcript open failed")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		r.logger.Warn().Err(err).Msg("transcript write failed")
	}
}

// Last returns the most recent record, whether or not it reached disk.
func (r *Reporter) Last() Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last
}
