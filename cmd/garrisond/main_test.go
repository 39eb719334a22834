package main

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"rtsgarrison.dev/internal/sim/world"
)

type fakeTickSink struct {
	n   int
	err error
}

func (f *fakeTickSink) WriteTick(world.TickLogEntry) error {
	f.n++
	return f.err
}

func TestMultiTickLogger_WritesEverySink(t *testing.T) {
	boom := errors.New("disk full")
	a := &fakeTickSink{err: boom}
	b := &fakeTickSink{}
	err := multiTickLogger{a, b}.WriteTick(world.TickLogEntry{Tick: 3})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want first sink error", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes a=%d b=%d", a.n, b.n)
	}
}

func TestWriteMetrics_Exposition(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMetrics(rec, "w1", world.WorldMetrics{Tick: 12, Containers: 2, Occupants: 5, StepMS: 0.25}, nil)
	body := rec.Body.String()
	for _, want := range []string{
		`garrison_world_tick{world="w1"} 12`,
		`garrison_world_occupants{world="w1"} 5`,
		`garrison_world_step_ms{world="w1"} 0.250`,
		"# TYPE garrison_world_containers gauge",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "garrison_index_dropped_total") {
		t.Fatalf("index metric without index")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:1") || isLoopbackRemote("192.168.1.1:1") {
		t.Fatalf("loopback detection wrong")
	}
}
