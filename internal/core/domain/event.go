package domain

import (
	"fmt"
	"time"
)

// Events published on the engine event stream. Flow is one directional:
// controllers and the liveness monitor publish, the accounting engine and
// the MQTT bridge subscribe. Nothing downstream calls back into a publisher.

type EngineEventMixIn struct {
	Timestamp time.Time `json:"timestamp"`
}

type EngineEvent interface {
	EngineEvent() string
	At() time.Time
}

func (e EngineEventMixIn) EngineEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e EngineEventMixIn) At() time.Time {
	return e.Timestamp
}

// SwitchTransitionEvent is emitted for every applied switch transition.
// Watts and DeviceOnline are snapshots from the controller's serialized view
// so the accounting engine never has to query it back.
type SwitchTransitionEvent struct {
	EngineEventMixIn
	DeviceId             string         `json:"deviceId"`
	SwitchId             string         `json:"switchId"`
	Category             SwitchCategory `json:"category"`
	NewState             bool           `json:"newState"`
	Trigger              Trigger        `json:"trigger"`
	ManualOverrideActive bool           `json:"manualOverrideActive"`
	Watts                float64        `json:"watts"`
	DeviceOnline         bool           `json:"deviceOnline"`
}

type DeviceOfflineEvent struct {
	EngineEventMixIn
	DeviceId string `json:"deviceId"`
}

type DeviceOnlineEvent struct {
	EngineEventMixIn
	DeviceId string `json:"deviceId"`
}

type OccupancyDetectedEvent struct {
	EngineEventMixIn
	DeviceId string `json:"deviceId"`
}

type OccupancyClearedEvent struct {
	EngineEventMixIn
	DeviceId string `json:"deviceId"`
}

type EnergySettledEvent struct {
	EngineEventMixIn
	Settlement Settlement `json:"settlement"`
}

// CommandSkippedEvent records a rule that applied to a switch but was not
// executed, e.g. motion or schedule input against an active manual override.
type CommandSkippedEvent struct {
	EngineEventMixIn
	DeviceId string  `json:"deviceId"`
	SwitchId string  `json:"switchId"`
	Trigger  Trigger `json:"trigger"`
	Reason   string  `json:"reason"`
}

// CommandRejectedEvent records a remote command refused outright, e.g.
// targeting an unreachable device.
type CommandRejectedEvent struct {
	EngineEventMixIn
	DeviceId string  `json:"deviceId"`
	SwitchId string  `json:"switchId"`
	Trigger  Trigger `json:"trigger"`
	Reason   string  `json:"reason"`
}
