// Package playback replays a finished trajectory to listeners, either paced
// against the wall clock or as fast as possible.
package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

// Clock exposes the simulated time of the sample currently being replayed.
type Clock interface {
	// Now returns the simulated time in seconds.
	Now() float64
}

// Mode describes how the Player advances through the records.
type Mode int

const (
	// RealTime spaces samples by their simulated time difference.
	RealTime Mode = iota
	// Accelerated delivers samples as quickly as listeners accept them.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "realtime", "real-time":
		return RealTime, nil
	case "accelerated", "fast":
		return Accelerated, nil
	default:
		return 0, fmt.Errorf("unknown playback mode %q", s)
	}
}

// Player drives replay and notifies registered listeners. It implements
// Clock.
type Player struct {
	mu   sync.RWMutex
	Mode Mode
	// Speedup divides the wall-clock spacing in RealTime mode; values <= 0
	// are treated as 1.
	Speedup float64

	current core.Record
	started bool

	listeners []func(core.Record)
}

// NewPlayer constructs a player.
func NewPlayer(mode Mode) *Player {
	return &Player{Mode: mode, Speedup: 1}
}

// Now returns the simulated time of the last replayed record. Implements
// Clock.
func (p *Player) Now() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.T
}

// Current returns the last replayed record, if any.
func (p *Player) Current() (core.Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.started
}

// AddListener registers a callback invoked for every replayed record.
// Listeners must be added before replay starts.
func (p *Player) AddListener(fn func(core.Record)) {
	p.listeners = append(p.listeners, fn)
}

// Replay delivers records in order and blocks until every record has been
// delivered or ctx ends.
func (p *Player) Replay(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}

	var tick <-chan time.Time
	if p.Mode == RealTime && len(records) > 1 {
		if interval := p.interval(records[1].T - records[0].T); interval > 0 {
			// Trajectory samples are evenly spaced, so a ticker suffices.
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}
	}

	for i, rec := range records {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		p.mu.Lock()
		p.current = rec
		p.started = true
		p.mu.Unlock()

		for _, fn := range p.listeners {
			fn(rec)
		}
	}
	return nil
}

// Start runs Replay in a separate goroutine. The returned channel yields
// Replay's result and is then closed.
func (p *Player) Start(ctx context.Context, records []core.Record) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- p.Replay(ctx, records)
	}()
	return done
}

func (p *Player) interval(dt float64) time.Duration {
	speedup := p.Speedup
	if speedup <= 0 {
		speedup = 1
	}
	return time.Duration(dt / speedup * float64(time.Second))
}
