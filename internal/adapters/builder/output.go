package builder

import "sync"

// tailBuffer keeps the last limit bytes written to it. The backing slice
// grows to twice the limit before it is compacted, so heavy output costs
// amortised constant time per byte.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if len(p) > b.limit {
		p = p[len(p)-b.limit:]
		b.buf = b.buf[:0]
		b.truncated = true
	}
	if len(b.buf)+len(p) > 2*b.limit {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.limit:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	if over := len(out) - b.limit; over > 0 {
		out = out[over:]
		b.truncated = true
	}
	if b.truncated {
		return "[output truncated]\n" + string(out)
	}
	return string(out)
}
