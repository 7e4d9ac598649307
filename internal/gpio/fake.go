package gpio

import (
	"errors"
	"sync"
)

// FakeInputs is a test double that returns scripted input levels.
type FakeInputs struct {
	mu sync.Mutex

	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []Levels

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInputs creates a FakeInputs with the given samples.
func NewFakeInputs(samples ...Levels) *FakeInputs {
	return &FakeInputs{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInputs) Read() (Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Levels{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return Levels{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Set replaces the script with a single level held indefinitely.
func (f *FakeInputs) Set(l Levels) {
	f.mu.Lock()
	f.Samples = []Levels{l}
	f.index = 0
	f.mu.Unlock()
}

// Close marks the reader as closed.
func (f *FakeInputs) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutputs records LED writes for test assertions.
type FakeOutputs struct {
	mu sync.Mutex

	// Writes contains every successful write, in order.
	Writes []Outputs

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutputs creates a FakeOutputs for testing.
func NewFakeOutputs() *FakeOutputs {
	return &FakeOutputs{}
}

// Write records the LED states.
func (f *FakeOutputs) Write(o Outputs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, o)
	return nil
}

// Last returns the most recent write and whether there was one.
func (f *FakeOutputs) Last() (Outputs, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Writes) == 0 {
		return Outputs{}, false
	}
	return f.Writes[len(f.Writes)-1], true
}

// SetWriteError changes the error returned by Write.
func (f *FakeOutputs) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Close switches everything off and marks the writer as closed.
func (f *FakeOutputs) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, Outputs{})
	f.Closed = true
	return nil
}
