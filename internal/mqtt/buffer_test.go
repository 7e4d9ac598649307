package mqtt

import (
	"errors"
	"testing"
)

func msg(i int) message {
	return message{topic: "t", payload: []byte{byte(i)}}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(msg(i))
	}

	got := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if rb.drain() != nil {
		t.Error("expected second drain to be empty")
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)
	for i := 0; i < 8; i++ {
		rb.push(msg(i))
	}
	if rb.len() != 5 {
		t.Fatalf("len: got %d, want 5", rb.len())
	}

	got := rb.drain()
	for i, m := range got {
		if want := byte(i + 3); m.payload[0] != want {
			t.Errorf("item %d: got %d, want %d", i, m.payload[0], want)
		}
	}
}

func TestRingBufferWrapAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	rb.push(msg(0))
	rb.push(msg(1))
	rb.drain()
	for i := 10; i < 14; i++ {
		rb.push(msg(i))
	}
	got := rb.drain()
	if len(got) != 3 || got[0].payload[0] != 11 || got[2].payload[0] != 13 {
		t.Errorf("unexpected drain after wrap: %v", got)
	}
}

func TestRingBufferZeroCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	rb.push(msg(1))
	if rb.len() != 0 {
		t.Error("zero-capacity buffer should drop everything")
	}
}

type fakeLink struct {
	up   bool
	fail error
	sent []byte
}

func (l *fakeLink) send(m message) error {
	if l.fail != nil {
		return l.fail
	}
	l.sent = append(l.sent, m.payload[0])
	return nil
}

func (l *fakeLink) connected() bool { return l.up }

func TestOutboxSendsWhenConnected(t *testing.T) {
	link := &fakeLink{up: true}
	o := newOutbox(10, link.send, link.connected)

	if err := o.publish(msg(1)); err != nil {
		t.Fatal(err)
	}
	if string(link.sent) != "\x01" {
		t.Errorf("sent: %v", link.sent)
	}
	if o.pending() != 0 {
		t.Error("nothing should be buffered")
	}
}

func TestOutboxBuffersWhileOfflineAndReplaysInOrder(t *testing.T) {
	link := &fakeLink{}
	o := newOutbox(10, link.send, link.connected)

	for i := 1; i <= 3; i++ {
		if err := o.publish(msg(i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(link.sent) != 0 || o.pending() != 3 {
		t.Fatalf("expected 3 buffered, got sent=%d pending=%d", len(link.sent), o.pending())
	}

	link.up = true
	if n := o.flush(); n != 3 {
		t.Errorf("flush: got %d, want 3", n)
	}
	o.publish(msg(4))
	if string(link.sent) != "\x01\x02\x03\x04" {
		t.Errorf("order: got %v", link.sent)
	}
}

func TestOutboxKeepsOrderWhileBacklogged(t *testing.T) {
	link := &fakeLink{}
	o := newOutbox(10, link.send, link.connected)
	o.publish(msg(1))

	// Reconnected but not yet flushed: the backlog goes out first
	link.up = true
	if err := o.publish(msg(2)); err != nil {
		t.Fatal(err)
	}
	if string(link.sent) != "\x01\x02" {
		t.Errorf("order: got %v", link.sent)
	}
	if o.pending() != 0 {
		t.Errorf("pending: got %d, want 0", o.pending())
	}
}

func TestOutboxDrainsAfterFailedSendWithoutReconnect(t *testing.T) {
	link := &fakeLink{up: true, fail: errors.New("publish timeout")}
	o := newOutbox(10, link.send, link.connected)

	if err := o.publish(msg(1)); err == nil {
		t.Fatal("expected send error")
	}

	// The link stays up and recovers; no reconnect handler runs
	link.fail = nil
	for i := 2; i <= 5; i++ {
		if err := o.publish(msg(i)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if string(link.sent) != "\x01\x02\x03\x04\x05" {
		t.Errorf("sent: got %v", link.sent)
	}
	if o.pending() != 0 {
		t.Errorf("pending: got %d, want 0", o.pending())
	}
}

func TestOutboxBacklogReplayFailureKeepsNewMessage(t *testing.T) {
	link := &fakeLink{up: true, fail: errors.New("publish timeout")}
	o := newOutbox(10, link.send, link.connected)
	o.publish(msg(1))

	if err := o.publish(msg(2)); err == nil {
		t.Error("expected replay error")
	}
	if o.pending() != 2 {
		t.Fatalf("pending: got %d, want 2", o.pending())
	}

	link.fail = nil
	o.publish(msg(3))
	if string(link.sent) != "\x01\x02\x03" {
		t.Errorf("order: got %v", link.sent)
	}
}

func TestOutboxBuffersFailedSend(t *testing.T) {
	link := &fakeLink{up: true, fail: errors.New("broken pipe")}
	o := newOutbox(10, link.send, link.connected)

	if err := o.publish(msg(1)); err == nil {
		t.Error("expected send error")
	}
	if o.pending() != 1 {
		t.Errorf("pending: got %d, want 1", o.pending())
	}

	if n := o.flush(); n != 0 {
		t.Errorf("flush with failing link: got %d, want 0", n)
	}
	if o.pending() != 1 {
		t.Error("failed replay must keep the message")
	}

	link.fail = nil
	o.flush()
	if string(link.sent) != "\x01" {
		t.Errorf("sent: %v", link.sent)
	}
}
