package audio

import (
	"sync"
	"time"
)

// DefaultQueueLimit bounds how much assistant speech a device keeps queued.
// The realtime endpoint streams faster than real time, so a full response is
// usually buffered before it finishes playing.
const DefaultQueueLimit = 2 * time.Minute

// Queue holds audio between the network and a device callback. When the
// limit is reached the oldest audio is dropped, whole frames at a time.
type Queue struct {
	mu       sync.Mutex
	buf      []byte
	encoding EncodingInfo
	limit    int
	frame    int
}

// NewQueue creates a queue for audio in encoding holding at most limit worth
// of it. A zero limit means unbounded.
func NewQueue(encoding EncodingInfo, limit time.Duration) *Queue {
	if encoding.IsZero() {
		encoding = GetDefaultEncodingInfo()
	}
	frame := max(encoding.Format.ByteSize(), 1)
	return &Queue{
		encoding: encoding,
		limit:    int(limit.Milliseconds()) * encoding.BytesPerMillisecond(),
		frame:    frame,
	}
}

// Push appends audio and reports how many bytes were dropped to stay within
// the limit.
func (q *Queue) Push(audio []byte) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.buf = append(q.buf, audio...)
	if q.limit <= 0 || len(q.buf) <= q.limit {
		return 0
	}

	dropped = len(q.buf) - q.limit
	if rem := dropped % q.frame; rem != 0 {
		dropped += q.frame - rem
	}
	dropped = min(dropped, len(q.buf))
	q.buf = q.buf[dropped:]
	return dropped
}

// Read fills p with queued audio followed by silence and returns how many
// bytes of audio it used.
func (q *Queue) Read(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(p, q.buf)
	clear(p[n:])
	q.consumeLocked(n)
	return n
}

// ReadFull fills p only when enough audio is queued to fill it completely.
func (q *Queue) ReadFull(p []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) < len(p) {
		return false
	}
	q.consumeLocked(copy(p, q.buf))
	return true
}

func (q *Queue) consumeLocked(n int) {
	q.buf = q.buf[n:]
	if len(q.buf) == 0 {
		q.buf = nil
	}
}

// Clear drops everything queued.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Buffered is the playing time of the queued audio.
func (q *Queue) Buffered() time.Duration {
	perMillisecond := q.encoding.BytesPerMillisecond()
	if perMillisecond <= 0 {
		return 0
	}
	return time.Duration(q.Len()/perMillisecond) * time.Millisecond
}
