package stats

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

type Type int

const (
	Discovered Type = iota
	Formatted
	Failed
	Changed
)

type Stats struct {
	start    time.Time
	counters map[Type]*atomic.Int32
}

func (s *Stats) Add(t Type, delta int) int32 {
	return s.counters[t].Add(int32(delta)) //nolint:gosec
}

func (s *Stats) Value(t Type) int32 {
	return s.counters[t].Load()
}

func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Print writes a summary of the run to w.
func (s *Stats) Print(w io.Writer) {
	components := []string{
		"discovered %d files",
		"formatted %d files (%d changed)",
		"failed %d files",
		"done in %v",
		"",
	}

	_, _ = fmt.Fprintf(
		w,
		strings.Join(components, "\n"),
		s.Value(Discovered),
		s.Value(Formatted),
		s.Value(Changed),
		s.Value(Failed),
		s.Elapsed().Round(time.Millisecond),
	)
}

func New() Stats {
	counters := make(map[Type]*atomic.Int32)
	counters[Discovered] = &atomic.Int32{}
	counters[Formatted] = &atomic.Int32{}
	counters[Failed] = &atomic.Int32{}
	counters[Changed] = &atomic.Int32{}

	return Stats{
		start:    time.Now(),
		counters: counters,
	}
}
