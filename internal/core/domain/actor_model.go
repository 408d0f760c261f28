package domain

import (
	"errors"
	"time"
)

const (
	ACTOR_ID_MASTER     = "master"
	ACTOR_ID_MQTT       = "mqtt"
	ACTOR_ID_LIVENESS   = "liveness"
	ACTOR_ID_ACCOUNTING = "accounting"
	ACTOR_ID_SCHEDULE   = "schedule"

	DEVICE_ACTOR_PREFIX = "device_"
)

var (
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrUnknownSwitch     = errors.New("unknown switch")
)

// Inbound device traffic, routed by the master to the liveness monitor or
// the per-device actor.

type HeartbeatEvent struct {
	DeviceId  string
	Timestamp time.Time
}

type ManualPressEvent struct {
	DeviceId  string
	SwitchId  string
	NewState  bool
	Timestamp time.Time
}

type SensorReadEvent struct {
	DeviceId  string
	Channel   SensorChannel
	Raw       bool
	Timestamp time.Time
}

type ScheduleFireEvent struct {
	DeviceId     string
	SwitchId     string
	DesiredState bool
	Timestamp    time.Time
}

// RemoteCommandRequest carries either a desired state or a clear-override
// action. It is rejected, not queued, when the target device is offline.
type RemoteCommandRequest struct {
	ActorRequestMixIn
	DeviceId      string
	SwitchId      string
	DesiredState  bool
	ClearOverride bool
	Timestamp     time.Time
}

type RemoteCommandResponse struct {
	ActorResponseMixIn
	Applied bool
}

// LivenessChanged is sent by the liveness monitor through the master so a
// device actor keeps a serialized view of its own reachability.
type LivenessChanged struct {
	DeviceId  string
	Online    bool
	Timestamp time.Time
}

// Query surface.

type TrackingSnapshot struct {
	Entry               ActiveTrackingEntry `json:"entry"`
	ElapsedHours        float64             `json:"elapsedHours"`
	RunningCostEstimate float64             `json:"runningCostEstimate"`
}

type GetActiveTrackingRequest struct {
	ActorRequestMixIn
}

type GetActiveTrackingResponse struct {
	ActorResponseMixIn
	Entries []TrackingSnapshot
}

// GetConsumptionRequest selects devices explicitly, by room, or all when
// both filters are empty. The master resolves Room into DeviceIds before the
// accounting engine sees the request.
type GetConsumptionRequest struct {
	ActorRequestMixIn
	DeviceIds []string
	Room      string
	// Rooms maps device ids to their room. Filled by the master alongside
	// the resolved selection, so responses can carry the room.
	Rooms           map[string]string
	From            string
	To              string
	GroupByCategory bool
}

type GetConsumptionResponse struct {
	ActorResponseMixIn
	Devices []DeviceUsage
}

type GetDeviceStateRequest struct {
	ActorRequestMixIn
}

type GetDeviceStateResponse struct {
	ActorResponseMixIn
	Device Device
}

// MQTT actor messages.

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// Health checks.

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
