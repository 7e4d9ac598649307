package mqtt

import (
	"log"
	"sync"
)

// message is a serialized MQTT publish, kept for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; the outbox holds its lock.
type ringBuffer struct {
	buf      []message
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]message, capacity)}
}

func (r *ringBuffer) push(msg message) {
	if len(r.buf) == 0 {
		return
	}
	if r.count == len(r.buf) {
		if !r.overflow {
			log.Printf("mqtt buffer full (%d messages), dropping oldest", len(r.buf))
			r.overflow = true
		}
		// head already points at the oldest message
		r.buf[r.head] = msg
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	r.count++
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []message {
	if r.count == 0 {
		return nil
	}
	out := make([]message, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count, r.head, r.overflow = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}

// outbox sends messages while connected and buffers them otherwise.
// A failed send is buffered too.
type outbox struct {
	mu        sync.Mutex
	buf       *ringBuffer
	send      func(message) error
	connected func() bool
}

func newOutbox(capacity int, send func(message) error, connected func() bool) *outbox {
	return &outbox{buf: newRingBuffer(capacity), send: send, connected: connected}
}

// publish sends msg, or buffers it if the broker is unreachable. While
// connected, any backlog is replayed first so order is kept. The returned
// error is the send failure, if any; the message is kept either way.
func (o *outbox) publish(msg message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.connected() {
		o.buf.push(msg)
		return nil
	}
	if o.buf.len() > 0 {
		if _, err := o.flushLocked(); err != nil {
			o.buf.push(msg)
			return err
		}
	}
	if err := o.send(msg); err != nil {
		o.buf.push(msg)
		return err
	}
	return nil
}

// flush replays buffered messages in order. Messages that fail to send are
// put back, along with everything after them.
func (o *outbox) flush() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.flushLocked()
	if err != nil {
		log.Printf("mqtt replay error: %v", err)
	}
	return n
}

func (o *outbox) flushLocked() (int, error) {
	pending := o.buf.drain()
	for i, msg := range pending {
		if err := o.send(msg); err != nil {
			for _, rest := range pending[i:] {
				o.buf.push(rest)
			}
			return i, err
		}
	}
	return len(pending), nil
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}
