package htj2k

import (
	"context"
	"log/slog"
	"maps"
	"sync"
)

// Event kinds counted by Diagnostics
const (
	EventClipped       = "clipped"        // samples clipped to the declared precision
	EventCoeffClamped  = "coeff_clamped"  // quantization indices clamped to the band range
	EventCorruptBlock  = "corrupt_block"  // code-block zero-filled
	EventCorruptPacket = "corrupt_packet" // packet parsing abandoned for the rest of a tile
	EventMissingTile   = "missing_tile"   // tile without any tile-part
	EventRateOvershoot = "rate_overshoot" // rate target missed after every iteration
)

// Diagnostics collects the events of one encode or decode call. Each call
// owns its instance; a nil *Diagnostics discards everything.
type Diagnostics struct {
	Logger *slog.Logger

	mu     sync.Mutex
	counts map[string]int
	warned map[string]bool
}

// NewDiagnostics returns a sink logging to l, which may be nil.
func NewDiagnostics(l *slog.Logger) *Diagnostics {
	return &Diagnostics{Logger: l}
}

// Count records n occurrences of an event.
func (d *Diagnostics) Count(kind string, n int) {
	if d == nil || n == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = map[string]int{}
	}
	d.counts[kind] += n
}

// Counts returns a copy of the event counters.
func (d *Diagnostics) Counts() map[string]int {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.counts)
}

// WarnOnce logs msg the first time kind is warned about in this call.
func (d *Diagnostics) WarnOnce(ctx context.Context, kind, msg string, args ...any) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.warned == nil {
		d.warned = map[string]bool{}
	}
	seen := d.warned[kind]
	d.warned[kind] = true
	d.mu.Unlock()
	if !seen && d.Logger != nil {
		d.Logger.WarnContext(ctx, msg, append(args, "kind", kind)...)
	}
}

// Debug logs through the sink's logger.
func (d *Diagnostics) Debug(ctx context.Context, msg string, args ...any) {
	if d == nil || d.Logger == nil {
		return
	}
	d.Logger.DebugContext(ctx, msg, args...)
}

// corruption counts a recovered corruption event and logs its cause.
func (d *Diagnostics) corruption(ctx context.Context, kind string, err error, args ...any) {
	d.Count(kind, 1)
	if d == nil || d.Logger == nil {
		return
	}
	d.Logger.WarnContext(ctx, "recovered from corrupt data", append(args, "kind", kind, "error", err)...)
}
