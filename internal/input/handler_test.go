package input

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/home-bms/internal/gpio"
	"github.com/sweeney/home-bms/internal/logic"
)

// stepClock returns start, start+step, ... on successive calls.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newHandler(samples ...gpio.Levels) (*Handler, *gpio.FakeInputs) {
	in := gpio.NewFakeInputs(samples...)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewHandler(in, 30*time.Millisecond, stepClock(start, 10*time.Millisecond)), in
}

func sampleN(t *testing.T, h *Handler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.Sample())
	}
}

func TestNoPressesDuringBaseline(t *testing.T) {
	// A button held at boot is not a press
	h, _ := newHandler(gpio.Levels{TempUp: true})
	assert.False(t, h.Ready())
	sampleN(t, h, 10)
	assert.True(t, h.Ready())

	presses, motion := h.PollEvents()
	assert.Empty(t, presses)
	assert.False(t, motion)
}

func TestPressIsQueuedOnce(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)

	in.Set(gpio.Levels{Door: true})
	sampleN(t, h, 10)

	presses, _ := h.PollEvents()
	assert.Equal(t, []logic.Button{logic.ButtonDoorToggle}, presses)

	presses, _ = h.PollEvents()
	assert.Empty(t, presses, "PollEvents drains the queue")
}

func TestPressesReturnedInPriorityOrder(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)

	in.Set(gpio.Levels{Door: true})
	sampleN(t, h, 5)
	in.Set(gpio.Levels{})
	sampleN(t, h, 5)
	in.Set(gpio.Levels{TempDown: true, TempUp: true})
	sampleN(t, h, 5)

	presses, _ := h.PollEvents()
	assert.Equal(t, []logic.Button{logic.ButtonTempUp, logic.ButtonTempDown, logic.ButtonDoorToggle}, presses)
}

func TestBounceIsNotAPress(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)

	in.Set(gpio.Levels{TempUp: true})
	sampleN(t, h, 1)
	in.Set(gpio.Levels{})
	sampleN(t, h, 5)

	presses, _ := h.PollEvents()
	assert.Empty(t, presses)
}

func TestMotionLevel(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)

	in.Set(gpio.Levels{Motion: true})
	sampleN(t, h, 5)
	_, motion := h.PollEvents()
	assert.True(t, motion)

	in.Set(gpio.Levels{})
	sampleN(t, h, 5)
	_, motion = h.PollEvents()
	assert.False(t, motion)
}

func TestReadErrorKeepsQueue(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)
	in.Set(gpio.Levels{TempUp: true})
	sampleN(t, h, 5)

	in.ReadError = errors.New("gpio fault")
	assert.Error(t, h.Sample())
	assert.Error(t, h.Sample())

	presses, _ := h.PollEvents()
	assert.Equal(t, []logic.Button{logic.ButtonTempUp}, presses)
}

func TestRequeue(t *testing.T) {
	h, in := newHandler(gpio.Levels{})
	sampleN(t, h, 5)
	in.Set(gpio.Levels{TempDown: true})
	sampleN(t, h, 5)

	h.Requeue([]logic.Button{logic.ButtonDoorToggle})
	presses, _ := h.PollEvents()
	assert.Equal(t, []logic.Button{logic.ButtonTempDown, logic.ButtonDoorToggle}, presses)
}

func TestRunStopsOnCancel(t *testing.T) {
	h, _ := newHandler(gpio.Levels{})
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		h.Run(ctx, tick)
		close(done)
	}()

	tick <- time.Time{}
	tick <- time.Time{}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
