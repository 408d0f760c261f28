package service

import (
	"testing"
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func testCalc() SettlementCalc {
	return SettlementCalc{
		RatePerKwh: 8,
		Wattage: map[domain.SwitchCategory]float64{
			domain.CATEGORY_FAN: 75,
		},
		DefaultWatts: 40,
	}
}

func TestSettleOneHourLight(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := domain.ActiveTrackingEntry{
		DeviceId:  "room101",
		SwitchId:  "sw1",
		Category:  domain.CATEGORY_LIGHT,
		Watts:     20,
		StartedAt: start,
	}

	s := testCalc().Settle(entry, start.Add(time.Hour))

	assert.InDelta(t, 1.0, s.RuntimeHours, 1e-9)
	assert.InDelta(t, 0.02, s.EnergyKwh, 1e-9)
	assert.InDelta(t, 0.16, s.Cost, 1e-9)
	assert.False(t, s.Estimated)
}

func TestWattsFallbackOrder(t *testing.T) {
	calc := testCalc()

	// snapshot wattage wins
	w, estimated := calc.WattsFor(domain.ActiveTrackingEntry{Category: domain.CATEGORY_FAN, Watts: 60})
	assert.Equal(t, 60.0, w)
	assert.False(t, estimated)

	// then the category table
	w, estimated = calc.WattsFor(domain.ActiveTrackingEntry{Category: domain.CATEGORY_FAN})
	assert.Equal(t, 75.0, w)
	assert.False(t, estimated)

	// then the default, flagged as estimated
	w, estimated = calc.WattsFor(domain.ActiveTrackingEntry{Category: domain.CATEGORY_OTHER})
	assert.Equal(t, 40.0, w)
	assert.True(t, estimated)
}

func TestSettleClampsNegativeRuntime(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := domain.ActiveTrackingEntry{Category: domain.CATEGORY_LIGHT, Watts: 20, StartedAt: start}

	s := testCalc().Settle(entry, start.Add(-time.Minute))

	assert.Equal(t, 0.0, s.RuntimeHours)
	assert.Equal(t, 0.0, s.EnergyKwh)
	assert.Equal(t, 0.0, s.Cost)
}

func TestRunningCost(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := domain.ActiveTrackingEntry{Category: domain.CATEGORY_LIGHT, Watts: 20, StartedAt: start}

	elapsed, cost := testCalc().RunningCost(entry, start.Add(30*time.Minute))
	assert.InDelta(t, 0.5, elapsed, 1e-9)
	assert.InDelta(t, 0.08, cost, 1e-9)
}
