package actor

import (
	"fmt"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// LivenessActor tracks per-device reachability from heartbeats. It is the
// single source of truth for online/offline transitions: it publishes
// DeviceOnline/DeviceOffline events on the stream and notifies the master so
// device actors keep their own serialized view current.
type LivenessActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	timeout       time.Duration
	sweepInterval time.Duration
	entries       map[string]*livenessEntry
	eventStream   *eventstream.EventStream
	logger        *zap.Logger
}

type livenessEntry struct {
	lastHeartbeat time.Time
	missedSweeps  int
	online        bool
}

type sweepTick struct {
}

func NewLivenessActor(cfg config.LivenessConfig, eventStream *eventstream.EventStream, logger *zap.Logger) *LivenessActor {
	act := &LivenessActor{
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		sweepInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		entries:       make(map[string]*livenessEntry),
		eventStream:   eventStream,
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_LIVENESS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *LivenessActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *LivenessActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("liveness@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.sweepInterval, ctx.Self(), sweepTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("liveness@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *LivenessActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("liveness@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_LIVENESS,
			Healthy: true,
			State:   "idle",
		})
	case domain.HeartbeatEvent:
		state.recordHeartbeat(ctx, msg)
	case sweepTick:
		state.sweep(ctx, time.Now())
		state.scheduler.RequestOnce(state.sweepInterval, ctx.Self(), sweepTick{})
	default:
		state.logger.Debug("liveness@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *LivenessActor) recordHeartbeat(ctx actor.Context, msg domain.HeartbeatEvent) {
	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	entry, ok := state.entries[msg.DeviceId]
	if !ok {
		entry = &livenessEntry{}
		state.entries[msg.DeviceId] = entry
	}
	entry.lastHeartbeat = at
	entry.missedSweeps = 0
	if !entry.online {
		entry.online = true
		state.logger.Info("liveness: device online", zap.String("device", msg.DeviceId))
		state.eventStream.Publish(domain.DeviceOnlineEvent{
			EngineEventMixIn: domain.EngineEventMixIn{Timestamp: at},
			DeviceId:         msg.DeviceId,
		})
		ctx.Send(ctx.Parent(), domain.LivenessChanged{DeviceId: msg.DeviceId, Online: true, Timestamp: at})
	}
}

// sweep marks devices whose heartbeat is overdue. A device must be caught
// missing on two consecutive sweeps before the offline event fires, which
// tolerates a single lost heartbeat message.
func (state *LivenessActor) sweep(ctx actor.Context, now time.Time) {
	for deviceId, entry := range state.entries {
		if !entry.online {
			continue
		}
		if now.Sub(entry.lastHeartbeat) <= state.timeout {
			entry.missedSweeps = 0
			continue
		}
		entry.missedSweeps++
		if entry.missedSweeps < 2 {
			state.logger.Debug("liveness: device suspect", zap.String("device", deviceId))
			continue
		}
		entry.online = false
		state.logger.Warn("liveness: device offline", zap.String("device", deviceId))
		state.eventStream.Publish(domain.DeviceOfflineEvent{
			EngineEventMixIn: domain.EngineEventMixIn{Timestamp: now},
			DeviceId:         deviceId,
		})
		ctx.Send(ctx.Parent(), domain.LivenessChanged{DeviceId: deviceId, Online: false, Timestamp: now})
	}
}
