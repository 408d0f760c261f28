package actor

import (
	"fmt"
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/service"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// DeviceActor owns the control state of one physical device. All inputs
// (manual presses, remote commands, sensor reads, schedule fires, liveness
// changes) are serialized through its mailbox, so arbitration never races.
type DeviceActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	device        domain.Device
	fusion        *service.FusionEngine
	cancelAutoOff scheduler.CancelFunc
	eventStream   *eventstream.EventStream
	logger        *zap.Logger
}

type autoOffTick struct {
}

func NewDeviceActor(device domain.Device, eventStream *eventstream.EventStream, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		device:      device,
		fusion:      service.NewFusionEngine(device.Motion),
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.DEVICE_ACTOR_PREFIX+device.Id, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("device@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ManualPressEvent:
		state.handleManualPress(ctx, msg)
	case domain.RemoteCommandRequest:
		state.handleRemoteCommand(ctx, msg)
	case domain.SensorReadEvent:
		state.handleSensorRead(ctx, msg)
	case autoOffTick:
		state.handleAutoOffTick(ctx)
	case domain.ScheduleFireEvent:
		state.handleScheduleFire(ctx, msg)
	case domain.LivenessChanged:
		wasOnline := state.device.Online
		state.device.Online = msg.Online
		if msg.Online {
			state.device.LastHeartbeat = msg.Timestamp
		}
		state.logger.Debug("device liveness changed", zap.Bool("online", msg.Online))
		if msg.Online && !wasOnline {
			state.resumeTracking(orNow(msg.Timestamp))
		}
	case domain.GetDeviceStateRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetDeviceStateResponse{Device: state.snapshot()})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.DEVICE_ACTOR_PREFIX + state.device.Id,
			Healthy: true,
			State:   "idle",
		})
	default:
		state.logger.Debug("device@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) handleManualPress(ctx actor.Context, msg domain.ManualPressEvent) {
	sw := state.device.SwitchById(msg.SwitchId)
	if sw == nil {
		state.logger.Warn("manual press for unknown switch", zap.String("switch", msg.SwitchId))
		return
	}
	at := orNow(msg.Timestamp)
	verdict := service.Decide(*sw, service.ControlInput{
		Trigger:      domain.TRIGGER_MANUAL,
		DesiredState: msg.NewState,
	})
	state.apply(ctx, sw, verdict, domain.TRIGGER_MANUAL, at)
}

func (state *DeviceActor) handleRemoteCommand(ctx actor.Context, msg domain.RemoteCommandRequest) {
	at := orNow(msg.Timestamp)
	if !state.device.Online {
		state.logger.Warn("remote command rejected, device offline", zap.String("switch", msg.SwitchId))
		state.eventStream.Publish(domain.CommandRejectedEvent{
			EngineEventMixIn: domain.EngineEventMixIn{Timestamp: at},
			DeviceId:         state.device.Id,
			SwitchId:         msg.SwitchId,
			Trigger:          domain.TRIGGER_REMOTE,
			Reason:           domain.ErrDeviceUnreachable.Error(),
		})
		state.respondIfAsked(ctx, msg, domain.RemoteCommandResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrDeviceUnreachable},
		})
		return
	}
	sw := state.device.SwitchById(msg.SwitchId)
	if sw == nil {
		state.respondIfAsked(ctx, msg, domain.RemoteCommandResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownSwitch},
		})
		return
	}
	verdict := service.Decide(*sw, service.ControlInput{
		Trigger:       domain.TRIGGER_REMOTE,
		DesiredState:  msg.DesiredState,
		ClearOverride: msg.ClearOverride,
	})
	state.apply(ctx, sw, verdict, domain.TRIGGER_REMOTE, at)
	state.respondIfAsked(ctx, msg, domain.RemoteCommandResponse{Applied: verdict.Apply || verdict.ClearOverride})
}

func (state *DeviceActor) handleSensorRead(ctx actor.Context, msg domain.SensorReadEvent) {
	at := orNow(msg.Timestamp)
	edge := state.fusion.Observe(msg.Channel, msg.Raw, at)
	switch edge {
	case service.EDGE_RISING:
		// re-detection cancels a pending auto-off countdown
		if state.cancelAutoOff != nil {
			state.cancelAutoOff()
			state.cancelAutoOff = nil
		}
		state.eventStream.Publish(domain.OccupancyDetectedEvent{
			EngineEventMixIn: domain.EngineEventMixIn{Timestamp: at},
			DeviceId:         state.device.Id,
		})
		state.applyMotion(ctx, true, at)
	case service.EDGE_FALLING:
		if state.cancelAutoOff != nil {
			state.cancelAutoOff()
		}
		delay := time.Duration(state.device.Motion.AutoOffDelaySeconds) * time.Second
		state.logger.Debug("occupancy falling, arming auto-off", zap.Duration("delay", delay))
		state.cancelAutoOff = state.scheduler.RequestOnce(delay, ctx.Self(), autoOffTick{})
	}
}

func (state *DeviceActor) handleAutoOffTick(ctx actor.Context) {
	state.cancelAutoOff = nil
	if state.fusion.Occupied() {
		return
	}
	now := time.Now()
	state.eventStream.Publish(domain.OccupancyClearedEvent{
		EngineEventMixIn: domain.EngineEventMixIn{Timestamp: now},
		DeviceId:         state.device.Id,
	})
	state.applyMotion(ctx, false, now)
}

func (state *DeviceActor) handleScheduleFire(ctx actor.Context, msg domain.ScheduleFireEvent) {
	sw := state.device.SwitchById(msg.SwitchId)
	if sw == nil {
		state.logger.Warn("schedule fire for unknown switch", zap.String("switch", msg.SwitchId))
		return
	}
	verdict := service.Decide(*sw, service.ControlInput{
		Trigger:      domain.TRIGGER_SCHEDULE,
		DesiredState: msg.DesiredState,
	})
	state.apply(ctx, sw, verdict, domain.TRIGGER_SCHEDULE, orNow(msg.Timestamp))
}

// applyMotion runs one fused occupancy edge against every switch of the
// device. Per-switch skips (override, not motion linked) fall out of the
// arbitration verdicts.
func (state *DeviceActor) applyMotion(ctx actor.Context, desiredState bool, at time.Time) {
	for i := range state.device.Switches {
		sw := &state.device.Switches[i]
		verdict := service.Decide(*sw, service.ControlInput{
			Trigger:      domain.TRIGGER_MOTION,
			DesiredState: desiredState,
		})
		state.apply(ctx, sw, verdict, domain.TRIGGER_MOTION, at)
	}
}

func (state *DeviceActor) apply(_ actor.Context, sw *domain.Switch, verdict service.Verdict, trigger domain.Trigger, at time.Time) {
	if verdict.ClearOverride {
		sw.ManualOverrideActive = false
		state.logger.Info("manual override cleared", zap.String("switch", sw.Id))
		return
	}
	if verdict.SetOverride {
		sw.ManualOverrideActive = true
	}
	if verdict.SkipReason != "" {
		if verdict.SkipReason == service.SKIP_OVERRIDE_ACTIVE || verdict.SkipReason == service.SKIP_AUTO_OFF_SUPPRESSED {
			state.eventStream.Publish(domain.CommandSkippedEvent{
				EngineEventMixIn: domain.EngineEventMixIn{Timestamp: at},
				DeviceId:         state.device.Id,
				SwitchId:         sw.Id,
				Trigger:          trigger,
				Reason:           verdict.SkipReason,
			})
		}
		state.logger.Debug("input skipped",
			zap.String("switch", sw.Id),
			zap.String("trigger", string(trigger)),
			zap.String("reason", verdict.SkipReason))
		return
	}
	if !verdict.Apply {
		return
	}
	sw.On = verdict.NewState
	state.logger.Info("switch transition",
		zap.String("switch", sw.Id),
		zap.Bool("on", sw.On),
		zap.String("trigger", string(trigger)))
	state.eventStream.Publish(domain.SwitchTransitionEvent{
		EngineEventMixIn:     domain.EngineEventMixIn{Timestamp: at},
		DeviceId:             state.device.Id,
		SwitchId:             sw.Id,
		Category:             sw.Category,
		NewState:             sw.On,
		Trigger:              trigger,
		ManualOverrideActive: sw.ManualOverrideActive,
		Watts:                sw.RatedWatts,
		DeviceOnline:         state.device.Online,
	})
}

// resumeTracking re-announces every switch still ON when the device comes
// back online. The previous ON period was force closed at the offline
// timestamp, so metering must restart from the reconnect.
func (state *DeviceActor) resumeTracking(at time.Time) {
	for i := range state.device.Switches {
		sw := &state.device.Switches[i]
		if !sw.On {
			continue
		}
		state.logger.Info("re-announcing ON switch after reconnect", zap.String("switch", sw.Id))
		state.eventStream.Publish(domain.SwitchTransitionEvent{
			EngineEventMixIn:     domain.EngineEventMixIn{Timestamp: at},
			DeviceId:             state.device.Id,
			SwitchId:             sw.Id,
			Category:             sw.Category,
			NewState:             true,
			Trigger:              domain.TRIGGER_RECONNECT,
			ManualOverrideActive: sw.ManualOverrideActive,
			Watts:                sw.RatedWatts,
			DeviceOnline:         true,
		})
	}
}

// respondIfAsked replies only when there is somewhere to reply to. Remote
// commands arriving over MQTT are fire and forget.
func (state *DeviceActor) respondIfAsked(ctx actor.Context, msg domain.RemoteCommandRequest, resp domain.RemoteCommandResponse) {
	if msg.ReplyTo() == nil && ctx.Sender() == nil {
		return
	}
	actorutil.ForRequest(msg).Respond(ctx, resp)
}

func (state *DeviceActor) snapshot() domain.Device {
	dev := state.device
	dev.Switches = make([]domain.Switch, len(state.device.Switches))
	copy(dev.Switches, state.device.Switches)
	return dev
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
