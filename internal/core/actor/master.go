package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/firose-git/autovolt/internal/adapter/actor"
	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/mqtt"
	. "github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type AccountingActorProvider func(*eventstream.EventStream) *AccountingActor

// MasterActor spawns and supervises the engine's children and routes inbound
// device traffic to the right one. It also resolves room filters for
// consumption queries, since only it holds the device registry.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	livenessActor      *actor.PID
	mqttActor          *actor.PID
	accountingActor    *actor.PID
	scheduleActor      *actor.PID
	deviceActors       map[string]*actor.PID
	devicesById        map[string]domain.Device

	mqttActorProvider       MQTTActorProvider
	accountingActorProvider AccountingActorProvider
	logger                  *zap.Logger
}

type healthCheckResult struct {
	livenessActorHealthy   bool
	mqttActorHealthy       bool
	accountingActorHealthy bool
	checksReceived         int
	respondTo              *actor.PID
}

func NewMasterActor(config config.Config, mqttActorProvider MQTTActorProvider,
	accountingActorProvider AccountingActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:                  config,
		behavior:                actor.NewBehavior(),
		stash:                   &Stash{},
		logger:                  ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:             &eventstream.EventStream{},
		deviceActors:            make(map[string]*actor.PID),
		devicesById:             make(map[string]domain.Device),
		mqttActorProvider:       mqttActorProvider,
		accountingActorProvider: accountingActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		livenessActorPID, err := state.startLivenessActor(ctx)
		if err != nil {
			panic(err)
		}
		state.livenessActor = livenessActorPID

		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		accountingActorPID, err := state.startAccountingActor(ctx)
		if err != nil {
			panic(err)
		}
		state.accountingActor = accountingActorPID

		if len(state.config.Schedules) > 0 {
			scheduleActorPID, err := state.startScheduleActor(ctx)
			if err != nil {
				panic(err)
			}
			state.scheduleActor = scheduleActorPID
		}

		for _, devCfg := range state.config.Devices {
			device := devCfg.ToDomain(state.config.Motion)
			pid, err := state.startDeviceActor(ctx, device)
			if err != nil {
				panic(err)
			}
			state.devicesById[device.Id] = device
			state.deviceActors[device.Id] = pid
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.livenessActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_LIVENESS,
				Healthy: false,
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.accountingActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_ACCOUNTING,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedDeviceCommand:
		state.logger.Debug("master@default parsed device message", zap.Any("message", msg.Message))
		if msg.Message != nil {
			state.routeDeviceMessage(ctx, *msg.Message)
		}
	case domain.LivenessChanged:
		if pid, ok := state.deviceActors[msg.DeviceId]; ok {
			ctx.Send(pid, msg)
		}
	case domain.ScheduleFireEvent:
		if pid, ok := state.deviceActors[msg.DeviceId]; ok {
			ctx.Send(pid, msg)
		} else {
			state.logger.Warn("schedule fire for unknown device", zap.String("device", msg.DeviceId))
		}
	case domain.RemoteCommandRequest:
		pid, ok := state.deviceActors[msg.DeviceId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.RemoteCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownDevice},
			})
			return
		}
		ctx.RequestWithCustomSender(pid, msg, ctx.Sender())
	case GetDeviceStateByIdRequest:
		pid, ok := state.deviceActors[msg.DeviceId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetDeviceStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownDevice},
			})
			return
		}
		ctx.RequestWithCustomSender(pid, domain.GetDeviceStateRequest{ActorRequestMixIn: msg.ActorRequestMixIn}, ctx.Sender())
	case domain.GetActiveTrackingRequest:
		ctx.RequestWithCustomSender(state.accountingActor, msg, ctx.Sender())
	case domain.GetConsumptionRequest:
		state.forwardConsumptionQuery(ctx, msg)
	case *actor.Terminated:
		// if the MQTT bridge fails on boot, terminate
		if msg.Who.GetId() == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MQTT) {
			state.logger.Error("master@default mqtt bridge terminated")
			panic(fmt.Errorf("mqtt bridge terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// GetDeviceStateByIdRequest addresses a device state query through the master
// when the caller does not hold the device actor's PID.
type GetDeviceStateByIdRequest struct {
	domain.ActorRequestMixIn
	DeviceId string
}

func (state *MasterActor) routeDeviceMessage(ctx actor.Context, msg mqtt.ParsedDeviceMessage) {
	at := time.Now()
	if msg.Kind == mqtt.MSG_HEARTBEAT {
		ctx.Send(state.livenessActor, domain.HeartbeatEvent{DeviceId: msg.DeviceId, Timestamp: at})
		return
	}
	pid, ok := state.deviceActors[msg.DeviceId]
	if !ok {
		state.logger.Warn("message for unknown device", zap.String("device", msg.DeviceId))
		return
	}
	switch msg.Kind {
	case mqtt.MSG_MANUAL_PRESS:
		newState, err := mqtt.ParseBoolPayload(msg.Payload)
		if err != nil {
			return
		}
		ctx.Send(pid, domain.ManualPressEvent{
			DeviceId:  msg.DeviceId,
			SwitchId:  msg.SwitchId,
			NewState:  newState,
			Timestamp: at,
		})
	case mqtt.MSG_SENSOR_READ:
		raw, err := mqtt.ParseBoolPayload(msg.Payload)
		if err != nil {
			return
		}
		ctx.Send(pid, domain.SensorReadEvent{
			DeviceId:  msg.DeviceId,
			Channel:   domain.SensorChannel(msg.Channel),
			Raw:       raw,
			Timestamp: at,
		})
	case mqtt.MSG_REMOTE_COMMAND:
		cmd := domain.RemoteCommandRequest{
			DeviceId:  msg.DeviceId,
			SwitchId:  msg.SwitchId,
			Timestamp: at,
		}
		if msg.Payload == mqtt.MQTT_PAYLOAD_CLEAR_OVERRIDE {
			cmd.ClearOverride = true
		} else {
			desired, err := mqtt.ParseBoolPayload(msg.Payload)
			if err != nil {
				return
			}
			cmd.DesiredState = desired
		}
		ctx.Send(pid, cmd)
	}
}

// forwardConsumptionQuery resolves the device selection before the
// accounting engine sees it: explicit ids win, then a room filter, then all
// known devices.
func (state *MasterActor) forwardConsumptionQuery(ctx actor.Context, msg domain.GetConsumptionRequest) {
	if len(msg.DeviceIds) == 0 {
		for id, dev := range state.devicesById {
			if msg.Room != "" && dev.Room != msg.Room {
				continue
			}
			msg.DeviceIds = append(msg.DeviceIds, id)
		}
	}
	msg.Rooms = make(map[string]string, len(msg.DeviceIds))
	for _, id := range msg.DeviceIds {
		if dev, ok := state.devicesById[id]; ok {
			msg.Rooms[id] = dev.Room
		}
	}
	ctx.RequestWithCustomSender(state.accountingActor, msg, ctx.Sender())
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_LIVENESS:
				state.currentHealthCheck.livenessActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_ACCOUNTING:
				state.currentHealthCheck.accountingActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startLivenessActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	livenessProps := actor.PropsFromProducer(func() actor.Actor {
		return NewLivenessActor(state.config.Liveness, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(livenessProps, domain.ACTOR_ID_LIVENESS)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterActor) startAccountingActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	accountingProps := actor.PropsFromProducer(func() actor.Actor {
		return state.accountingActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(accountingProps, domain.ACTOR_ID_ACCOUNTING)
}

func (state *MasterActor) startScheduleActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	scheduleProps := actor.PropsFromProducer(func() actor.Actor {
		return NewScheduleActor(state.config.Schedules, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(scheduleProps, domain.ACTOR_ID_SCHEDULE)
}

func (state *MasterActor) startDeviceActor(ctx actor.Context, device domain.Device) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(device, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(deviceProps, domain.DEVICE_ACTOR_PREFIX+device.Id)
}

func (state *healthCheckResult) reset() {
	state.livenessActorHealthy = false
	state.mqttActorHealthy = false
	state.accountingActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	return state.livenessActorHealthy && state.mqttActorHealthy && state.accountingActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
