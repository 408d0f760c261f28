package service

import (
	"testing"
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerAbsorbsBounce(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond)
	t0 := time.Now()

	assert.False(t, d.Observe(true, t0), "flip not yet stable")
	// bounce back before the window elapses
	assert.False(t, d.Observe(false, t0.Add(50*time.Millisecond)))
	// rises again, window restarts
	assert.False(t, d.Observe(true, t0.Add(100*time.Millisecond)))
	assert.False(t, d.Observe(true, t0.Add(250*time.Millisecond)))
	// stable for the full window now
	assert.True(t, d.Observe(true, t0.Add(300*time.Millisecond)))
}

func dualConfig(logic domain.FusionLogic) domain.MotionSensorConfig {
	return domain.MotionSensorConfig{
		Mode:            domain.MODE_DUAL,
		Logic:           logic,
		Primary:         domain.ChannelConfig{Weight: 0.8, DebounceMillis: 100},
		Secondary:       domain.ChannelConfig{Weight: 0.5, DebounceMillis: 100},
		WeightThreshold: 0.7,
	}
}

func feed(f *FusionEngine, ch domain.SensorChannel, raw bool, at time.Time) FusionEdge {
	// two samples a window apart so the debouncer settles
	f.Observe(ch, raw, at)
	return f.Observe(ch, raw, at.Add(150*time.Millisecond))
}

func TestFusionAndRequiresBothChannels(t *testing.T) {
	f := NewFusionEngine(dualConfig(domain.FUSION_AND))
	t0 := time.Now()

	assert.Equal(t, EDGE_NONE, feed(f, domain.CHANNEL_PRIMARY, true, t0))
	assert.False(t, f.Occupied())

	assert.Equal(t, EDGE_RISING, feed(f, domain.CHANNEL_SECONDARY, true, t0.Add(time.Second)))
	assert.True(t, f.Occupied())

	// one channel dropping is enough to clear under AND
	assert.Equal(t, EDGE_FALLING, feed(f, domain.CHANNEL_PRIMARY, false, t0.Add(2*time.Second)))
	assert.False(t, f.Occupied())
}

func TestFusionOrSingleChannelSuffices(t *testing.T) {
	f := NewFusionEngine(dualConfig(domain.FUSION_OR))
	t0 := time.Now()

	assert.Equal(t, EDGE_RISING, feed(f, domain.CHANNEL_SECONDARY, true, t0))
	assert.True(t, f.Occupied())

	assert.Equal(t, EDGE_FALLING, feed(f, domain.CHANNEL_SECONDARY, false, t0.Add(time.Second)))
}

func TestFusionWeighted(t *testing.T) {
	f := NewFusionEngine(dualConfig(domain.FUSION_WEIGHTED))
	t0 := time.Now()

	// primary alone carries weight 0.8 >= threshold 0.7
	assert.Equal(t, EDGE_RISING, feed(f, domain.CHANNEL_PRIMARY, true, t0))
	assert.Equal(t, EDGE_FALLING, feed(f, domain.CHANNEL_PRIMARY, false, t0.Add(time.Second)))

	// secondary alone carries weight 0.5 < threshold, no edge
	assert.Equal(t, EDGE_NONE, feed(f, domain.CHANNEL_SECONDARY, true, t0.Add(2*time.Second)))
	assert.False(t, f.Occupied())

	// but both channels agreeing always wins
	assert.Equal(t, EDGE_RISING, feed(f, domain.CHANNEL_PRIMARY, true, t0.Add(3*time.Second)))
}

func TestSinglePrimaryModeIgnoresSecondary(t *testing.T) {
	cfg := dualConfig(domain.FUSION_AND)
	cfg.Mode = domain.MODE_SINGLE_PRIMARY
	f := NewFusionEngine(cfg)
	t0 := time.Now()

	assert.Equal(t, EDGE_NONE, feed(f, domain.CHANNEL_SECONDARY, true, t0))
	assert.Equal(t, EDGE_RISING, feed(f, domain.CHANNEL_PRIMARY, true, t0.Add(time.Second)))
}
