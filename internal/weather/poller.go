package weather

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
)

// Fetcher returns the current humidity.
type Fetcher interface {
	Humidity(ctx context.Context) (float64, error)
}

// Recorder receives outage and recovery entries.
type Recorder interface {
	Record(logic.LogEntry)
}

// Poller refreshes the humidity in the background and serves the last
// known value without blocking.
type Poller struct {
	fetcher  Fetcher
	recorder Recorder
	now      func() time.Time

	mu      sync.Mutex
	value   float64
	ok      bool
	failing bool
}

// NewPoller creates a poller. recorder may be nil.
func NewPoller(fetcher Fetcher, recorder Recorder, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	return &Poller{fetcher: fetcher, recorder: recorder, now: now}
}

// Humidity returns the last known humidity; ok is false until the first
// successful fetch.
func (p *Poller) Humidity() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.ok
}

// Refresh fetches once. An outage is recorded on its first failure and
// again when it ends; the last known value is kept throughout.
func (p *Poller) Refresh(ctx context.Context) error {
	h, err := p.fetcher.Humidity(ctx)
	now := p.now()

	p.mu.Lock()
	wasFailing := p.failing
	if err != nil {
		p.failing = true
	} else {
		p.value, p.ok, p.failing = h, true, false
	}
	p.mu.Unlock()

	switch {
	case err != nil && !wasFailing:
		log.Printf("weather fetch error: %v", err)
		p.record(now, logic.LevelWarn, fmt.Sprintf("WEATHER API UNAVAILABLE: %v", err))
	case err == nil && wasFailing:
		log.Printf("weather fetch recovered: humidity=%.0f%%", h)
		p.record(now, logic.LevelInfo, "WEATHER API RECOVERED")
	}
	return err
}

func (p *Poller) record(now time.Time, level logic.Level, msg string) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(logic.LogEntry{Timestamp: now, Level: level, Kind: logic.KindNetwork, Message: msg})
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context, tick <-chan time.Time) {
	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			p.Refresh(ctx)
		}
	}
}
