package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sunday-assistant/clients/companion"
	"sunday-assistant/config"
	"sunday-assistant/intent"
	"sunday-assistant/listener"
	"sunday-assistant/navigation"
	"sunday-assistant/retry"
	"sunday-assistant/speech_extraction"
	"sunday-assistant/speech_to_text"
	"sunday-assistant/status"
	"sunday-assistant/text_to_speech"
	"sunday-assistant/vad"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	ListeningAnnouncement = "I'm listening for you. Just say 'Sunday' when you need me!"
	Greeting              = "Hello! I'm Sunday, your yoga assistant. I'm here and ready to help you with your wellness journey. Just say 'Sunday' followed by what you'd like to do!"
)

// Options overrides collaborators that would otherwise be built from the
// configuration.
type Options struct {
	Config  *config.Config
	FileSys afero.Fs
	Logger  zerolog.Logger

	Capture     speech_extraction.Interface
	Transcriber speech_to_text.Transcriber
	Synthesizer text_to_speech.Synthesizer
	Connector   navigation.Connector
	Sleep       retry.SleepFunc
}

// Services is the assembled runtime graph.
type Services struct {
	Engine    listener.Interface
	Speaker   *text_to_speech.Speaker
	Reporter  *status.Reporter
	Handle    *navigation.Handle
	Connector navigation.Connector

	capture speech_extraction.Interface
	cfg     *config.Config
	sleep   retry.SleepFunc
	logger  zerolog.Logger
	closers []func() error
}

// Build wires all runtime dependencies. On error everything already opened
// is released.
func Build(opts Options) (s *Services, err error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs := opts.FileSys
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfg := opts.Config
	s = &Services{
		cfg:    cfg,
		sleep:  opts.Sleep,
		logger: opts.Logger,
		Handle: navigation.NewHandle(),
	}
	if s.sleep == nil {
		s.sleep = retry.Sleep
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, s.Close())
			s = nil
		}
	}()

	s.Reporter, err = status.New(&status.Config{
		FileSys:        fs,
		StatusPath:     cfg.Status.Path,
		TranscriptPath: cfg.Status.TranscriptPath,
		Logger:         opts.Logger,
	})
	if err != nil {
		return s, fmt.Errorf("status reporter: %w", err)
	}

	capture, err := buildCapture(opts, fs)
	if err != nil {
		return s, fmt.Errorf("audio capture: %w", err)
	}
	s.closers = append(s.closers, capture.Close)
	s.capture = capture

	transcriber, err := s.buildTranscriber(opts)
	if err != nil {
		return s, fmt.Errorf("speech to text: %w", err)
	}

	recognizer, err := speech_to_text.New(&speech_to_text.Config{
		Transcriber: transcriber,
		Logger:      opts.Logger,
	})
	if err != nil {
		return s, err
	}

	synthesizer, err := s.buildSynthesizer(opts)
	if err != nil {
		return s, fmt.Errorf("text to speech: %w", err)
	}

	s.Speaker, err = text_to_speech.New(&text_to_speech.Config{
		Synthesizer:   synthesizer,
		QueueSize:     cfg.TTS.QueueSize,
		PhraseTimeout: cfg.TTS.PhraseTimeout,
		Reporter:      s.Reporter,
		Logger:        opts.Logger,
	})
	if err != nil {
		return s, err
	}

	rules := append([]string{}, cfg.Normalization.Rules...)
	fileRules, err := intent.LoadRules(fs, cfg.Normalization.RulesFile)
	if err != nil {
		return s, err
	}
	normalizer, err := intent.NewNormalizer(append(rules, fileRules...), cfg.Normalization.LoopLimit)
	if err != nil {
		return s, fmt.Errorf("normalization rules: %w", err)
	}

	table, err := cfg.IntentTable()
	if err != nil {
		return s, fmt.Errorf("intents: %w", err)
	}

	s.Connector, err = s.buildConnector(opts)
	if err != nil {
		return s, fmt.Errorf("navigation: %w", err)
	}

	dispatcher, err := intent.NewDispatcher(&intent.Config{
		Table:     table,
		Navigator: s.Handle,
		Speaker:   s.Speaker,
		Logger:    opts.Logger,
	})
	if err != nil {
		return s, err
	}

	s.Engine, err = listener.New(&listener.Config{
		Capture:            capture,
		Recognizer:         recognizer,
		Dispatcher:         dispatcher,
		Normalizer:         normalizer,
		Speaker:            s.Speaker,
		Reporter:           s.Reporter,
		WakeWord:           cfg.Wake.Word,
		NearMisses:         cfg.Wake.NearMisses,
		InlineCommands:     cfg.Wake.InlineCommands,
		IdleTimeout:        cfg.Wake.IdleTimeout,
		IdlePhraseLimit:    cfg.Wake.IdlePhraseLimit,
		CommandTimeout:     cfg.Wake.CommandTimeout,
		CommandPhraseLimit: cfg.Wake.CommandPhraseLimit,
		MaxFailures:        cfg.Wake.MaxFailures,
		ShutdownDelay:      cfg.Wake.ShutdownDelay,
		ErrorBackoff:       cfg.Wake.ErrorBackoff,
		Sleep:              s.sleep,
		Logger:             opts.Logger,
	})
	if err != nil {
		return s, err
	}

	return s, nil
}

func buildCapture(opts Options, fs afero.Fs) (speech_extraction.Interface, error) {
	if opts.Capture != nil {
		return opts.Capture, nil
	}

	audioCfg := opts.Config.Audio
	captureCfg := &speech_extraction.Config{
		SampleRate:          audioCfg.SampleRate,
		FrameSize:           audioCfg.FrameSize,
		PauseThreshold:      audioCfg.PauseThreshold,
		PreRoll:             audioCfg.PreRoll,
		CalibrationDuration: audioCfg.CalibrationDuration,
		Detector: vad.Config{
			InitialEnergy: audioCfg.EnergyThreshold,
			MinEnergy:     audioCfg.MinEnergy,
			EnergyRatio:   audioCfg.EnergyRatio,
			FluxRatio:     audioCfg.FluxRatio,
			Dynamic:       audioCfg.DynamicEnergy,
			Damping:       audioCfg.DynamicDamping,
		},
		RecordingsDir: audioCfg.RecordingsDir,
		FileSys:       fs,
		Logger:        opts.Logger,
	}

	if audioCfg.ReplayDir != "" {
		return speech_extraction.NewReplay(captureCfg, audioCfg.ReplayDir)
	}

	return speech_extraction.NewMicrophone(captureCfg)
}

func (s *Services) buildTranscriber(opts Options) (speech_to_text.Transcriber, error) {
	if opts.Transcriber != nil {
		return opts.Transcriber, nil
	}

	if opts.Config.STT.ModelPath == "" {
		return nil, fmt.Errorf("model file not specified")
	}

	model, err := whisper.New(opts.Config.STT.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}
	s.closers = append(s.closers, model.Close)

	return speech_to_text.NewWhisper(&speech_to_text.WhisperConfig{
		Model:    model,
		Language: opts.Config.STT.Language,
	})
}

func (s *Services) buildSynthesizer(opts Options) (text_to_speech.Synthesizer, error) {
	if opts.Synthesizer != nil {
		return opts.Synthesizer, nil
	}

	ttsCfg := opts.Config.TTS
	switch ttsCfg.Provider {
	case config.TTSCommand:
		return text_to_speech.NewCommand(&text_to_speech.CommandConfig{
			Binary: ttsCfg.Command,
			Args:   ttsCfg.Args,
			Logger: opts.Logger,
		})
	case config.TTSElevenLabs:
		// playback streams are opened per phrase on the speech worker
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
		}
		s.closers = append(s.closers, portaudio.Terminate)

		return text_to_speech.NewElevenLabs(&text_to_speech.ElevenLabsConfig{
			APIKey:  ttsCfg.APIKey,
			VoiceID: ttsCfg.VoiceID,
			Model:   ttsCfg.Model,
			Logger:  opts.Logger,
		})
	default:
		return text_to_speech.NewConsole(&text_to_speech.ConsoleConfig{Logger: opts.Logger}), nil
	}
}

func (s *Services) buildConnector(opts Options) (navigation.Connector, error) {
	if opts.Connector != nil {
		return opts.Connector, nil
	}

	navCfg := opts.Config.Navigation
	switch navCfg.Mode {
	case config.NavigationBrowser:
		browser, err := navigation.NewBrowser(&navigation.BrowserConfig{
			URL:           navCfg.URL,
			Headless:      navCfg.Headless,
			WindowWidth:   navCfg.WindowWidth,
			WindowHeight:  navCfg.WindowHeight,
			LoadTimeout:   navCfg.LoadTimeout,
			ActionTimeout: navCfg.ActionTimeout,
			SettleDelay:   navCfg.SettleDelay,
			ClickDelay:    navCfg.ClickDelay,
			Sleep:         s.sleep,
			Logger:        opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, browser.Close)
		return browser, nil
	case config.NavigationHTTP:
		return companion.NewClient(&companion.Config{ApiHost: navCfg.URL})
	default:
		return nil, nil
	}
}

// Run announces readiness, connects the companion in the background and
// runs the listen loop until it stops.
func (s *Services) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Reporter.Transcript(status.SpeakerSystem, "Sunday AI starting")
	s.Reporter.Report(status.StateIdle, "", "")

	s.calibrate(ctx)

	var wg sync.WaitGroup
	if s.Connector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			navigation.Establish(ctx, &navigation.EstablishConfig{
				Connector: s.Connector,
				Handle:    s.Handle,
				Policy: retry.Policy{
					MaxAttempts:  s.cfg.Navigation.Attempts,
					InitialDelay: s.cfg.Navigation.RetryDelay,
					Sleep:        s.sleep,
				},
				Speaker:  s.Speaker,
				Reporter: s.Reporter,
				Logger:   s.logger,
				Target:   s.cfg.Navigation.URL,
			})
		}()
	}

	s.Speaker.Speak(ListeningAnnouncement)
	s.Speaker.Speak(Greeting)

	err := s.Engine.ListenLoop(ctx)

	cancel()
	wg.Wait()

	last := s.Reporter.Last()
	s.logger.Info().
		Str("state", string(last.State)).
		Str("lastCommand", last.LastCommand).
		Msg("listen loop finished")

	return err
}

// calibrate measures ambient noise once before listening. A failure is
// logged and listening continues with the initial thresholds.
func (s *Services) calibrate(ctx context.Context) {
	s.Reporter.Transcript(status.SpeakerSystem, "Calibrating microphone... Please wait.")

	if err := s.capture.Calibrate(ctx); err != nil {
		s.logger.Error().Err(err).Msg("start-up calibration failed")
		s.Reporter.Transcript(status.SpeakerSystem, fmt.Sprintf("Microphone calibration failed: %v", err))
		return
	}

	s.Reporter.Transcript(status.SpeakerSystem, "Microphone calibrated successfully")
}

// Close drains queued speech and releases devices, in reverse build order.
func (s *Services) Close() error {
	var errs []error

	if s.Speaker != nil {
		errs = append(errs, s.Speaker.Close())
		s.Speaker = nil
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil

	return errors.Join(errs...)
}
