package ring_buffer

// Buffer keeps the most recent samples seen before speech onset so the
// start of an utterance is not clipped.
type Buffer struct {
	buffer []int16
	head   int
	filled int
}

func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}

	return &Buffer{
		buffer: make([]int16, size),
	}
}

func (r *Buffer) Add(samples []int16) {
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)

		if r.filled < len(r.buffer) {
			r.filled++
		}
	}
}

// Read returns the buffered samples oldest first. Only samples that were
// actually written are returned.
func (r *Buffer) Read() []int16 {
	samples := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buffer)) % len(r.buffer)

	for i := 0; i < r.filled; i++ {
		samples[i] = r.buffer[(start+i)%len(r.buffer)]
	}

	return samples
}

func (r *Buffer) Len() int {
	return r.filled
}

func (r *Buffer) Clear() {
	for i := range r.buffer {
		r.buffer[i] = 0
	}

	r.head = 0
	r.filled = 0
}
