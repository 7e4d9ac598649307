// Package input samples the buttons and motion sensor, debounces them and
// queues button presses until the control loop collects them.
package input

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/home-bms/internal/gpio"
	"github.com/sweeney/home-bms/internal/logic"
)

// Handler turns raw GPIO levels into debounced, edge-triggered presses.
// Sample/Run must be driven from a single goroutine; PollEvents may be
// called concurrently from another.
type Handler struct {
	reader   gpio.InputReader
	detector *logic.Detector
	now      func() time.Time

	mu      sync.Mutex
	pending []logic.Button
	motion  bool
	ready   bool
	failing bool
}

// NewHandler creates a handler reading from reader with the given debounce.
func NewHandler(reader gpio.InputReader, debounce time.Duration, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		reader:   reader,
		detector: logic.NewDetector(debounce),
		now:      now,
	}
}

// Sample reads the input lines once and feeds the debouncer.
func (h *Handler) Sample() error {
	lv, err := h.reader.Read()
	if err != nil {
		h.mu.Lock()
		first := !h.failing
		h.failing = true
		h.mu.Unlock()
		if first {
			log.Printf("input read error: %v", err)
		}
		return err
	}

	edges := h.detector.Process(logic.Input{
		Levels: [logic.NumLines]bool{lv.TempUp, lv.TempDown, lv.Door, lv.Motion},
		Time:   h.now(),
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failing {
		log.Printf("input read recovered")
		h.failing = false
	}
	for _, e := range edges {
		if !e.Pressed() {
			continue
		}
		h.pending = append(h.pending, buttonFor(e.Line))
	}
	if h.detector.IsBaselined() {
		h.ready = true
		h.motion = h.detector.Stable(logic.LineMotion) == logic.StateOn
	}
	return nil
}

// Run samples on every tick until ctx is done.
func (h *Handler) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			h.Sample()
		}
	}
}

// PollEvents drains the queued presses in priority order and returns the
// debounced motion level.
func (h *Handler) PollEvents() ([]logic.Button, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	presses := h.pending
	h.pending = nil
	sort.SliceStable(presses, func(i, j int) bool { return presses[i] < presses[j] })
	return presses, h.motion
}

// Ready reports whether every input line has a debounced baseline.
func (h *Handler) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// Requeue puts presses back at the front of the queue, used when a
// cycle could not apply them.
func (h *Handler) Requeue(presses []logic.Button) {
	if len(presses) == 0 {
		return
	}
	h.mu.Lock()
	h.pending = append(append([]logic.Button(nil), presses...), h.pending...)
	h.mu.Unlock()
}

func buttonFor(l logic.Line) logic.Button {
	switch l {
	case logic.LineTempDown:
		return logic.ButtonTempDown
	case logic.LineDoor:
		return logic.ButtonDoorToggle
	default:
		return logic.ButtonTempUp
	}
}
