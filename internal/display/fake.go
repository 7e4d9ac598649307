package display

import "sync"

// FakeDisplay is a test double that records every frame shown.
type FakeDisplay struct {
	mu sync.Mutex

	// Frames holds every frame passed to Show, in order.
	Frames [][2]string

	// Clears counts Clear calls.
	Clears int

	// Closed is set after Close is called.
	Closed bool

	// Err, if set, is returned by Show and Clear.
	Err error
}

// Show records lines.
func (f *FakeDisplay) Show(lines [2]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Frames = append(f.Frames, lines)
	return nil
}

// Clear records a clear.
func (f *FakeDisplay) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Clears++
	return nil
}

// Close marks the display closed.
func (f *FakeDisplay) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Shown returns a copy of the recorded frames.
func (f *FakeDisplay) Shown() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.Frames...)
}

// ClearCount returns how many times Clear succeeded.
func (f *FakeDisplay) ClearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Clears
}

// SetErr changes the error returned by Show and Clear.
func (f *FakeDisplay) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}
