package service

import (
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"
)

type FusionEdge int

const (
	EDGE_NONE FusionEdge = iota
	EDGE_RISING
	EDGE_FALLING
)

// Debouncer holds a channel's reported state steady until the raw signal has
// kept its new value for the whole debounce window. Absorbs contact bounce.
type Debouncer struct {
	window    time.Duration
	reported  bool
	pending   bool
	candidate bool
	since     time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Observe feeds one raw sample and returns the debounced state as of `at`.
func (d *Debouncer) Observe(raw bool, at time.Time) bool {
	if raw == d.reported {
		d.pending = false
		return d.reported
	}
	if !d.pending || d.candidate != raw {
		d.pending = true
		d.candidate = raw
		d.since = at
	}
	if at.Sub(d.since) >= d.window {
		d.reported = d.candidate
		d.pending = false
	}
	return d.reported
}

func (d *Debouncer) Reported() bool {
	return d.reported
}

// FusionEngine combines up to two debounced motion channels into one
// occupancy boolean, per the configured mode and fusion logic.
type FusionEngine struct {
	cfg       domain.MotionSensorConfig
	primary   *Debouncer
	secondary *Debouncer
	fused     bool
}

func NewFusionEngine(cfg domain.MotionSensorConfig) *FusionEngine {
	return &FusionEngine{
		cfg:       cfg,
		primary:   NewDebouncer(time.Duration(cfg.Primary.DebounceMillis) * time.Millisecond),
		secondary: NewDebouncer(time.Duration(cfg.Secondary.DebounceMillis) * time.Millisecond),
	}
}

// Observe feeds a raw read on one channel and reports whether the fused
// occupancy state produced an edge.
func (f *FusionEngine) Observe(channel domain.SensorChannel, raw bool, at time.Time) FusionEdge {
	switch channel {
	case domain.CHANNEL_PRIMARY:
		f.primary.Observe(raw, at)
	case domain.CHANNEL_SECONDARY:
		f.secondary.Observe(raw, at)
	default:
		return EDGE_NONE
	}

	next := f.fuse()
	if next == f.fused {
		return EDGE_NONE
	}
	f.fused = next
	if next {
		return EDGE_RISING
	}
	return EDGE_FALLING
}

func (f *FusionEngine) Occupied() bool {
	return f.fused
}

func (f *FusionEngine) fuse() bool {
	p := f.primary.Reported()
	s := f.secondary.Reported()

	switch f.cfg.Mode {
	case domain.MODE_SINGLE_PRIMARY:
		return p
	case domain.MODE_SINGLE_SECONDARY:
		return s
	}

	switch f.cfg.Logic {
	case domain.FUSION_OR:
		return p || s
	case domain.FUSION_WEIGHTED:
		// both agreeing always wins; otherwise a single confident channel
		// is enough, which tolerates one sensor failing open
		if p && s {
			return true
		}
		if p && f.cfg.Primary.Weight >= f.cfg.WeightThreshold {
			return true
		}
		if s && f.cfg.Secondary.Weight >= f.cfg.WeightThreshold {
			return true
		}
		return false
	default:
		// FUSION_AND: lowest false-positive rate, the default
		return p && s
	}
}
