package capture

import "github.com/koscakluka/ema-live/core/audio"

// framer re-blocks an arbitrary chunked sample stream into frames of a fixed
// size. Each emitted frame is a fresh slice.
type framer struct {
	size    int
	pending []float32
}

func newFramer(size int) *framer {
	return &framer{size: size, pending: make([]float32, 0, size)}
}

func (f *framer) push(samples []float32, emit func(audio.Frame)) {
	for len(samples) > 0 {
		n := min(f.size-len(f.pending), len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]

		if len(f.pending) == f.size {
			emit(audio.Frame(f.pending))
			f.pending = make([]float32, 0, f.size)
		}
	}
}
