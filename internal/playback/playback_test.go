package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/trajectory-simulator/core"
)

func evenRecords(n int, dt float64) []core.Record {
	records := make([]core.Record, n)
	for i := range records {
		records[i] = core.Record{State: core.State{
			T:        float64(i) * dt,
			Position: core.Vec3{Z: 100 - float64(i)},
		}}
	}
	return records
}

func TestPlayerAcceleratedDeliversInOrder(t *testing.T) {
	p := NewPlayer(Accelerated)
	var got []float64
	p.AddListener(func(r core.Record) { got = append(got, r.T) })

	records := evenRecords(50, 0.01)
	if err := p.Replay(context.Background(), records); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("delivered %d records, want %d", len(got), len(records))
	}
	for i := range got {
		if got[i] != records[i].T {
			t.Fatalf("record %d at t=%v, want %v", i, got[i], records[i].T)
		}
	}
	if now := p.Now(); now != records[len(records)-1].T {
		t.Fatalf("Now() = %v, want %v", now, records[len(records)-1].T)
	}
}

func TestPlayerRealTimeHonoursSpacing(t *testing.T) {
	p := NewPlayer(RealTime)
	records := evenRecords(4, 0.005)

	start := time.Now()
	if err := p.Replay(context.Background(), records); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("real-time replay took %v, want at least 15ms", elapsed)
	}
}

func TestPlayerSpeedupShortensReplay(t *testing.T) {
	p := NewPlayer(RealTime)
	p.Speedup = 1000
	records := evenRecords(5, 1)

	start := time.Now()
	if err := p.Replay(context.Background(), records); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("sped-up replay took %v", elapsed)
	}
}

func TestPlayerStopsOnCancel(t *testing.T) {
	p := NewPlayer(RealTime)
	delivered := 0
	p.AddListener(func(core.Record) { delivered++ })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := <-p.Start(ctx, evenRecords(100, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("replay error = %v, want context.DeadlineExceeded", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want only the first record", delivered)
	}
	if rec, ok := p.Current(); !ok || rec.T != 0 {
		t.Fatalf("Current() = %+v, %v", rec, ok)
	}
}

func TestPlayerEmptyReplay(t *testing.T) {
	p := NewPlayer(RealTime)
	if err := p.Replay(context.Background(), nil); err != nil {
		t.Fatalf("Replay(nil): %v", err)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("Current() should report no record before replay")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"realtime": RealTime, "Accelerated": Accelerated, "fast": Accelerated}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("slow-motion"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
