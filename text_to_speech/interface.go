package text_to_speech

import "context"

// Synthesizer renders one phrase audibly. Calls are serialized by the Speaker.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) error
}

// Interface is the fire-and-forget speech output used by the engine.
type Interface interface {
	// Speak queues text and returns immediately.
	Speak(text string)
	// Enqueue queues text, waiting for space rather than dropping it.
	Enqueue(ctx context.Context, text string) error
	// Close drains queued phrases and stops the worker.
	Close() error
}
