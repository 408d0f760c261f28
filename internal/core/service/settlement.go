package service

import (
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"
)

// SettlementCalc computes energy and cost for completed ON periods. This is
// estimation from control state and rated wattage, not metered current.
type SettlementCalc struct {
	RatePerKwh   float64
	Wattage      map[domain.SwitchCategory]float64
	DefaultWatts float64
}

// WattsFor resolves the wattage to charge for a tracking entry. A snapshot
// taken at start time wins; otherwise the category table; otherwise the
// configured default, in which case the settlement is flagged as estimated.
func (c SettlementCalc) WattsFor(entry domain.ActiveTrackingEntry) (float64, bool) {
	if entry.Watts > 0 {
		return entry.Watts, false
	}
	if w, ok := c.Wattage[entry.Category]; ok && w > 0 {
		return w, false
	}
	return c.DefaultWatts, true
}

func (c SettlementCalc) Settle(entry domain.ActiveTrackingEntry, stoppedAt time.Time) domain.Settlement {
	watts, estimated := c.WattsFor(entry)
	runtimeHours := stoppedAt.Sub(entry.StartedAt).Hours()
	if runtimeHours < 0 {
		runtimeHours = 0
	}
	energyKwh := watts * runtimeHours / 1000
	return domain.Settlement{
		DeviceId:     entry.DeviceId,
		SwitchId:     entry.SwitchId,
		Category:     entry.Category,
		EnergyKwh:    energyKwh,
		RuntimeHours: runtimeHours,
		Cost:         energyKwh * c.RatePerKwh,
		Estimated:    estimated,
		StartedAt:    entry.StartedAt,
		StoppedAt:    stoppedAt,
	}
}

// RunningCost estimates the accrued cost of a still-open entry.
func (c SettlementCalc) RunningCost(entry domain.ActiveTrackingEntry, now time.Time) (elapsedHours, cost float64) {
	watts, _ := c.WattsFor(entry)
	elapsedHours = now.Sub(entry.StartedAt).Hours()
	if elapsedHours < 0 {
		elapsedHours = 0
	}
	cost = watts * elapsedHours / 1000 * c.RatePerKwh
	return elapsedHours, cost
}
