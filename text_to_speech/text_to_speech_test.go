package text_to_speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sunday-assistant/status"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSynth struct {
	mu      sync.Mutex
	phrases []string
	err     error
	block   chan struct{}
}

func (r *recordingSynth) Synthesize(ctx context.Context, text string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phrases = append(r.phrases, text)
	return r.err
}

func (r *recordingSynth) spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.phrases...)
}

type transcriptSink struct {
	mu    sync.Mutex
	lines []string
}

func (t *transcriptSink) Report(state status.State, command, response string) {}

func (t *transcriptSink) Transcript(speaker status.Speaker, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, string(speaker)+": "+message)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestSpeakerSerializesInOrder(t *testing.T) {
	synth := &recordingSynth{}
	sink := &transcriptSink{}

	s, err := New(&Config{Synthesizer: synth, Reporter: sink, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Speak("Sure thing!")
	s.Speak("  ")
	s.Speak("Opening the yoga pose library.")
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"Sure thing!", "Opening the yoga pose library."}, synth.spoken())
	assert.Equal(t, []string{"AI: Sure thing!", "AI: Opening the yoga pose library."}, sink.lines)
}

func TestSpeakDropsWhenQueueFull(t *testing.T) {
	synth := &recordingSynth{block: make(chan struct{})}

	s, err := New(&Config{Synthesizer: synth, QueueSize: 1, Logger: zerolog.Nop()})
	require.NoError(t, err)

	// the worker may already hold the first phrase; at most two can be accepted
	for i := 0; i < 5; i++ {
		s.Speak("phrase")
	}

	close(synth.block)
	require.NoError(t, s.Close())

	assert.LessOrEqual(t, len(synth.spoken()), 2)
	assert.NotEmpty(t, synth.spoken())
}

// gatedSynth reports each phrase it starts and blocks until release closes.
type gatedSynth struct {
	recordingSynth
	started chan struct{}
	release chan struct{}
}

func (g *gatedSynth) Synthesize(ctx context.Context, text string) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return g.recordingSynth.Synthesize(ctx, text)
}

func newGated() *gatedSynth {
	return &gatedSynth{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func TestEnqueueWaitsForQueueSpace(t *testing.T) {
	synth := newGated()
	sink := &transcriptSink{}

	s, err := New(&Config{Synthesizer: synth, QueueSize: 1, Reporter: sink, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Speak("first")
	<-synth.started
	s.Speak("second")
	s.Speak("dropped")

	done := make(chan error, 1)
	go func() { done <- s.Enqueue(context.Background(), "farewell") }()

	time.Sleep(20 * time.Millisecond)
	close(synth.release)

	require.NoError(t, <-done)
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"first", "second", "farewell"}, synth.spoken())
	assert.Equal(t, []string{"AI: first", "AI: second", "AI: farewell"}, sink.lines)
}

func TestEnqueueGivesUp(t *testing.T) {
	synth := newGated()

	s, err := New(&Config{
		Synthesizer:   synth,
		QueueSize:     1,
		PhraseTimeout: 10 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	s.Speak("first")
	<-synth.started
	s.Speak("second")

	assert.ErrorIs(t, s.Enqueue(context.Background(), "farewell"), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Enqueue(ctx, "farewell"), context.Canceled)

	close(synth.release)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Enqueue(context.Background(), "farewell"), ErrSpeakerClosed)
	assert.Equal(t, []string{"first", "second"}, synth.spoken())
}

func TestSpeakAfterCloseIsDropped(t *testing.T) {
	synth := &recordingSynth{}

	s, err := New(&Config{Synthesizer: synth, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Speak("too late")
	assert.Empty(t, synth.spoken())
}

func TestSynthesisFailureFallsBack(t *testing.T) {
	primary := &recordingSynth{err: errors.New("engine busy")}
	fallback := &recordingSynth{}

	s, err := New(&Config{Synthesizer: primary, Fallback: fallback, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Speak("Namaste")
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"Namaste"}, fallback.spoken())
}

type panicSynth struct{}

func (panicSynth) Synthesize(ctx context.Context, text string) error { panic("driver crashed") }

func TestSynthesisPanicFallsBack(t *testing.T) {
	fallback := &recordingSynth{}

	s, err := New(&Config{Synthesizer: panicSynth{}, Fallback: fallback, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Speak("Got it!")
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"Got it!"}, fallback.spoken())
}

func TestConsoleWritesPhrase(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&ConsoleConfig{Out: &out, Logger: zerolog.Nop()})

	require.NoError(t, c.Synthesize(context.Background(), "Hello!"))
	assert.Equal(t, "Sunday: Hello!\n", out.String())
}

func TestCommandRequiresBinary(t *testing.T) {
	_, err := NewCommand(&CommandConfig{})
	assert.Error(t, err)

	_, err = NewCommand(&CommandConfig{Binary: "definitely-not-a-real-tts-binary"})
	assert.Error(t, err)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "line one line two", sanitizeText("line one\nline\ttwo"))
	assert.Len(t, []rune(sanitizeText(string(bytes.Repeat([]byte("a"), 900)))), maxCommandText)
}

type fakePlayer struct {
	pcm  []byte
	rate int
}

func (f *fakePlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	f.pcm = pcm
	f.rate = sampleRate
	return nil
}

func TestElevenLabsPlaysReturnedPCM(t *testing.T) {
	var got ttsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, elevenLabsFormat, r.URL.Query().Get("output_format"))
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		_, _ = w.Write([]byte{1, 0, 2, 0})
	}))
	defer server.Close()

	player := &fakePlayer{}
	synth, err := NewElevenLabs(&ElevenLabsConfig{
		APIKey:  "secret",
		VoiceID: "voice-1",
		BaseURL: server.URL,
		Player:  player,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, synth.Synthesize(context.Background(), "Right away!"))

	assert.Equal(t, "Right away!", got.Text)
	assert.Equal(t, elevenLabsDefaultModel, got.ModelID)
	assert.Equal(t, []byte{1, 0, 2, 0}, player.pcm)
	assert.Equal(t, elevenLabsSampleRate, player.rate)
}

func TestElevenLabsReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	player := &fakePlayer{}
	synth, err := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", BaseURL: server.URL, Player: player})
	require.NoError(t, err)

	err = synth.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Nil(t, player.pcm)
}

func TestDecodeAndChunkPCM(t *testing.T) {
	samples := decodePCM16([]byte{0x01, 0x00, 0xff, 0xff, 0x09})
	assert.Equal(t, []int16{1, -1}, samples)

	chunks := chunkFrames([]int16{1, 2, 3, 4, 5}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int16{5, 0}, chunks[2])
}

type fakeStream struct {
	out    []int16
	frames [][]int16
	calls  []string
}

func (f *fakeStream) Start() error { f.calls = append(f.calls, "start"); return nil }
func (f *fakeStream) Stop() error  { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeStream) Close() error { f.calls = append(f.calls, "close"); return nil }

func (f *fakeStream) Write() error {
	f.frames = append(f.frames, append([]int16(nil), f.out...))
	return nil
}

func TestSpeakerPlayerOnlyOpensAndClosesStreams(t *testing.T) {
	stream := &fakeStream{}
	var rate float64
	player := speakerPlayer{open: func(sampleRate float64, out []int16) (outputStream, error) {
		rate = sampleRate
		stream.out = out
		return stream, nil
	}}

	pcm := make([]byte, 2*(playbackFrames+1))
	pcm[0] = 0x07

	require.NoError(t, player.Play(context.Background(), pcm, 22050))

	assert.Equal(t, 22050.0, rate)
	assert.Equal(t, []string{"start", "stop", "close"}, stream.calls)
	require.Len(t, stream.frames, 2)
	assert.Equal(t, int16(7), stream.frames[0][0])
}

func TestSpeakerPlayerOpenFailure(t *testing.T) {
	player := speakerPlayer{open: func(float64, []int16) (outputStream, error) {
		return nil, errors.New("no output device")
	}}

	err := player.Play(context.Background(), []byte{1, 0}, 22050)
	assert.ErrorContains(t, err, "no output device")
	assert.NoError(t, player.Play(context.Background(), nil, 22050))
}
