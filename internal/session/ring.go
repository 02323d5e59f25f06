package session

import "sync"

// audioRing is a fixed-size ring holding the most recent raw audio while
// the transcription stream is down. When full it overwrites the oldest
// bytes, so a long outage costs the oldest speech, never memory.
type audioRing struct {
	mu   sync.Mutex
	buf  []byte
	size int
	head int // next write position
	tail int // oldest byte
	full bool
}

func newAudioRing(size int) *audioRing {
	if size <= 0 {
		size = 256 * 1024
	}
	return &audioRing{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write appends audio, overwriting the oldest bytes when full.
func (r *audioRing) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A chunk larger than the ring reduces to its tail.
	if len(p) > r.size {
		p = p[len(p)-r.size:]
	}

	for _, b := range p {
		if r.full {
			r.tail = (r.tail + 1) % r.size
		}
		r.buf[r.head] = b
		r.head = (r.head + 1) % r.size
		if r.head == r.tail {
			r.full = true
		}
	}
}

// Bytes returns the buffered audio oldest-first.
func (r *audioRing) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.full && r.head == r.tail:
		return nil
	case r.full && r.head == r.tail:
		out := make([]byte, r.size)
		copy(out, r.buf[r.tail:])
		copy(out[r.size-r.tail:], r.buf[:r.head])
		return out
	case r.head > r.tail:
		out := make([]byte, r.head-r.tail)
		copy(out, r.buf[r.tail:r.head])
		return out
	default:
		out := make([]byte, (r.size-r.tail)+r.head)
		copy(out, r.buf[r.tail:])
		copy(out[r.size-r.tail:], r.buf[:r.head])
		return out
	}
}

// Len reports how many bytes are buffered.
func (r *audioRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.full:
		return r.size
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return (r.size - r.tail) + r.head
	}
}

// Reset drops all buffered audio.
func (r *audioRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
	r.full = false
}

// Capacity returns the ring size in bytes.
func (r *audioRing) Capacity() int {
	return r.size
}
