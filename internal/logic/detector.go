package logic

import "time"

// Line identifies a debounced input line.
type Line int

const (
	LineTempUp Line = iota
	LineTempDown
	LineDoor
	LineMotion
	NumLines
)

func (l Line) String() string {
	switch l {
	case LineTempUp:
		return "TEMP_UP"
	case LineTempDown:
		return "TEMP_DOWN"
	case LineDoor:
		return "DOOR"
	case LineMotion:
		return "MOTION"
	default:
		return "UNKNOWN"
	}
}

// ChannelState tracks debounce state for a single line.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input is a single sample of all input lines, already in logical form
// (true = pressed / motion present).
type Input struct {
	Levels [NumLines]bool
	Time   time.Time
}

// Edge is a debounced transition of one line.
type Edge struct {
	Timestamp time.Time
	Line      Line
	State     State
}

// Pressed reports whether the edge is a button going down.
func (e Edge) Pressed() bool {
	return e.Line != LineMotion && e.State == StateOn
}

// Detector tracks line state and detects debounced transitions.
type Detector struct {
	debounceDuration time.Duration
	lines            [NumLines]ChannelState
	baselined        bool
}

// NewDetector creates a new transition detector with the given debounce duration.
func NewDetector(debounceDuration time.Duration) *Detector {
	return &Detector{debounceDuration: debounceDuration}
}

// Process takes a new input sample and returns any edges that should be emitted.
// Edges are only returned after every line has a baseline, and are ordered by line.
func (d *Detector) Process(input Input) []Edge {
	var edges []Edge
	for i := range d.lines {
		if st, ok := d.processChannel(&d.lines[i], boolToState(input.Levels[i]), input.Time); ok {
			edges = append(edges, Edge{Timestamp: input.Time, Line: Line(i), State: st})
		}
	}

	if !d.baselined {
		for i := range d.lines {
			if !d.lines[i].Baselined {
				return nil
			}
		}
		d.baselined = true
		return nil // No edges until baseline established
	}

	return edges
}

// processChannel handles debounce logic for a single line.
// Returns the new stable state if a transition occurred.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) (State, bool) {
	if !ch.Baselined {
		if ch.Pending == "" || ch.Pending != newState {
			// Start observing, or restart after a change during baseline
			ch.Pending = newState
			ch.PendingSince = now
			if d.debounceDuration > 0 {
				return "", false
			}
		}

		if now.Sub(ch.PendingSince) >= d.debounceDuration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return "", false
	}

	if newState == ch.Stable {
		// Bounce back to stable, drop the pending state
		ch.Pending = ""
		return "", false
	}

	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		if d.debounceDuration > 0 {
			return "", false
		}
	}

	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Pending = ""
		return newState, true
	}

	return "", false
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// Stable returns the current debounced state of a line.
func (d *Detector) Stable(l Line) State {
	return d.lines[l].Stable
}
