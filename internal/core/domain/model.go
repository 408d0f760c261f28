package domain

import "time"

type SwitchCategory string

const (
	CATEGORY_LIGHT     SwitchCategory = "light"
	CATEGORY_FAN       SwitchCategory = "fan"
	CATEGORY_AC        SwitchCategory = "ac"
	CATEGORY_PROJECTOR SwitchCategory = "projector"
	CATEGORY_OUTLET    SwitchCategory = "outlet"
	CATEGORY_OTHER     SwitchCategory = "other"
)

type Trigger string

const (
	TRIGGER_MANUAL    Trigger = "manual"
	TRIGGER_MOTION    Trigger = "motion"
	TRIGGER_SCHEDULE  Trigger = "schedule"
	TRIGGER_REMOTE    Trigger = "remote"
	TRIGGER_RECONNECT Trigger = "reconnect"
)

type SensorChannel string

const (
	CHANNEL_PRIMARY   SensorChannel = "primary"
	CHANNEL_SECONDARY SensorChannel = "secondary"
)

type SensorMode string

const (
	MODE_SINGLE_PRIMARY   SensorMode = "single-primary"
	MODE_SINGLE_SECONDARY SensorMode = "single-secondary"
	MODE_DUAL             SensorMode = "dual"
)

type FusionLogic string

const (
	FUSION_AND      FusionLogic = "and"
	FUSION_OR       FusionLogic = "or"
	FUSION_WEIGHTED FusionLogic = "weighted"
)

type Switch struct {
	Id                   string
	Name                 string
	Category             SwitchCategory
	RatedWatts           float64
	On                   bool
	ManualOverrideActive bool
	RespondsToMotion     bool
	SuppressAutoOff      bool
}

// ChannelConfig tunes one motion sensor channel. Weight is the confidence
// used by the weighted fusion logic, in [0, 1].
type ChannelConfig struct {
	Weight         float64
	DebounceMillis uint32
}

type MotionSensorConfig struct {
	Mode                SensorMode
	Logic               FusionLogic
	Primary             ChannelConfig
	Secondary           ChannelConfig
	WeightThreshold     float64
	AutoOffDelaySeconds uint32
}

type Device struct {
	Id            string
	Name          string
	Room          string
	Address       string
	Switches      []Switch
	Motion        MotionSensorConfig
	Online        bool
	LastHeartbeat time.Time
}

// ActiveTrackingEntry is the ephemeral per-switch metering record. At most
// one entry exists per (DeviceId, SwitchId) at any time.
type ActiveTrackingEntry struct {
	DeviceId  string         `json:"deviceId"`
	SwitchId  string         `json:"switchId"`
	Category  SwitchCategory `json:"category"`
	Watts     float64        `json:"watts"`
	StartedAt time.Time      `json:"startedAt"`
}

type CategoryUsage struct {
	EnergyKwh       float64 `json:"energyKwh"`
	RuntimeHours    float64 `json:"runtimeHours"`
	Cost            float64 `json:"cost"`
	ActivationCount uint32  `json:"activationCount"`
}

// UsageDelta is the additive payload of a single settlement.
type UsageDelta struct {
	EnergyKwh    float64
	RuntimeHours float64
	Cost         float64
	Activations  uint32
}

// LedgerRecord accumulates usage for one device on one calendar date
// (YYYY-MM-DD). Mutated only through atomic increments, never overwritten.
type LedgerRecord struct {
	DeviceId   string                           `json:"deviceId"`
	Date       string                           `json:"date"`
	Categories map[SwitchCategory]CategoryUsage `json:"categories"`
	Total      CategoryUsage                    `json:"total"`
}

// DeviceUsage is a range-query result for one device. Devices without any
// ledger rows still yield a DeviceUsage with zero totals, so callers can
// tell "no data" apart from a device that was simply dropped.
type DeviceUsage struct {
	DeviceId string         `json:"deviceId"`
	Room     string         `json:"room,omitempty"`
	Records  []LedgerRecord `json:"records"`
	Total    CategoryUsage  `json:"total"`
}

type EventLogKind string

const (
	EVENTLOG_TRANSITION EventLogKind = "transition"
	EVENTLOG_SETTLEMENT EventLogKind = "settlement"
	EVENTLOG_SKIP       EventLogKind = "skip"
	EVENTLOG_REJECT     EventLogKind = "reject"
)

// EventLogEntry is an append-only audit record. Never mutated after creation.
type EventLogEntry struct {
	Id        string         `json:"id"`
	Kind      EventLogKind   `json:"kind"`
	DeviceId  string         `json:"deviceId"`
	SwitchId  string         `json:"switchId,omitempty"`
	Trigger   Trigger        `json:"trigger,omitempty"`
	NewState  bool           `json:"newState,omitempty"`
	Note      string         `json:"note,omitempty"`
	Category  SwitchCategory `json:"category,omitempty"`
	Delta     *UsageDelta    `json:"delta,omitempty"`
	Estimated bool           `json:"estimated,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Settlement is the computed energy/cost for one completed ON period.
type Settlement struct {
	DeviceId     string         `json:"deviceId"`
	SwitchId     string         `json:"switchId"`
	Category     SwitchCategory `json:"category"`
	EnergyKwh    float64        `json:"energyKwh"`
	RuntimeHours float64        `json:"runtimeHours"`
	Cost         float64        `json:"cost"`
	Estimated    bool           `json:"estimated"`
	StartedAt    time.Time      `json:"startedAt"`
	StoppedAt    time.Time      `json:"stoppedAt"`
}

func (s Settlement) Delta() UsageDelta {
	return UsageDelta{
		EnergyKwh:    s.EnergyKwh,
		RuntimeHours: s.RuntimeHours,
		Cost:         s.Cost,
		Activations:  1,
	}
}

// LedgerDate formats a timestamp as the calendar date key used by the ledger.
func LedgerDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func (d *Device) SwitchById(id string) *Switch {
	for i := range d.Switches {
		if d.Switches[i].Id == id {
			return &d.Switches[i]
		}
	}
	return nil
}
