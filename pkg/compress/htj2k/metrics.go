package htj2k

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the wall time of one pipeline phase.
type Stage struct {
	Name    string
	Elapsed time.Duration
}

// Metrics reports what one encode or decode call did.
type Metrics struct {
	RunID uuid.UUID
	// ConfigID fingerprints the encoding options
	ConfigID   string
	Elapsed    time.Duration
	Stages     []Stage
	Tiles      int
	CodeBlocks int
	Passes     int // coding passes written or decoded
	Packets    int
	Bytes      int // codestream size
	// Iterations counts rate control rounds
	Iterations int
	Events     map[string]int
}

// stopwatch accumulates Stages.
type stopwatch struct {
	m     *Metrics
	start time.Time
	last  time.Time
}

func newStopwatch(m *Metrics) *stopwatch {
	now := time.Now()
	m.RunID = uuid.New()
	return &stopwatch{m: m, start: now, last: now}
}

func (s *stopwatch) lap(name string) {
	now := time.Now()
	s.m.Stages = append(s.m.Stages, Stage{Name: name, Elapsed: now.Sub(s.last)})
	s.last = now
}

func (s *stopwatch) stop() {
	s.m.Elapsed = time.Since(s.start)
}
