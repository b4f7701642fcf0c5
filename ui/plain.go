package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franksops/skycp/engine"
)

// Line renders one progress line for headless runs.
func Line(s engine.Snapshot, bytesPerSec float64) string {
	line := fmt.Sprintf("%s/%s units, %s / %s (%.0f%%), %s, ETA %s",
		humanize.Comma(int64(s.UnitsCompleted)), humanize.Comma(int64(s.TotalUnits)),
		humanize.IBytes(uint64(s.BytesCompleted)), humanize.IBytes(uint64(s.TotalBytes)),
		s.Fraction()*100,
		formatSpeed(bytesPerSec),
		formatETA(s.TotalBytes-s.BytesCompleted, bytesPerSec))
	if s.UnitsFailed > 0 {
		line += fmt.Sprintf(", %d failed", s.UnitsFailed)
	}
	return line
}

// Report writes a progress line to w every interval until ctx is done,
// then writes a final line.
func Report(ctx context.Context, w io.Writer, interval time.Duration, snapshot func() engine.Snapshot) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var rate rateMeter
	rate.observe(snapshot().BytesCompleted, time.Now())
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, Line(snapshot(), rate.bytesPerSec))
			return
		case now := <-ticker.C:
			s := snapshot()
			rate.observe(s.BytesCompleted, now)
			fmt.Fprintln(w, Line(s, rate.bytesPerSec))
		}
	}
}
