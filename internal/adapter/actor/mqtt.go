package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/mqtt"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor bridges the broker and the actor system. Inbound device traffic
// is parsed and routed to the master; engine events picked off the stream are
// published back out as state and event topics.
type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

// ParsedDeviceCommand wraps an inbound device message on its way to the
// master for routing.
type ParsedDeviceCommand struct {
	Message *mqtt.ParsedDeviceMessage
}

type onEventStreamMessage struct {
	message any
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to engine events for outbound publishing
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			ctx.Send(ctx.Self(), onEventStreamMessage{message: value})
		})

		// subscribe to inbound device topics
		state.client.SubscribeToDeviceTopics(func(c pahomqtt.Client, m pahomqtt.Message) {
			parsed, err := state.client.ParseDeviceMessage(m)
			if err != nil {
				state.logger.Warn("mqtt: invalid device message", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			if parsed != nil {
				ctx.Send(ctx.Self(), ParsedDeviceCommand{Message: parsed})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedDeviceCommand:
		// route inbound device traffic to parent
		state.logger.Debug("mqtt@default parsed device message", zap.Any("message", msg.Message))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case onEventStreamMessage:
		state.publishEngineEvent(ctx, msg.message)
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@default could not publish event", zap.Error(msg.Error))
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// event2MQTTMessages maps one engine event to the MQTT messages it produces.
// State topics are retained so late subscribers converge immediately.
func (state *MQTTActor) event2MQTTMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.SwitchTransitionEvent:
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil
		}
		return []rawMessage{
			{
				topic:   state.client.SwitchStateTopic(msg.DeviceId, msg.SwitchId),
				message: bool2MQTTPayload(msg.NewState),
				retain:  true,
			},
			{
				topic:   state.client.TransitionEventsTopic(),
				message: string(payload),
			},
		}
	case domain.DeviceOnlineEvent:
		return []rawMessage{{
			topic:   state.client.DeviceAvailabilityTopic(msg.DeviceId),
			message: mqtt.MQTT_PAYLOAD_ONLINE,
			retain:  true,
		}}
	case domain.DeviceOfflineEvent:
		return []rawMessage{{
			topic:   state.client.DeviceAvailabilityTopic(msg.DeviceId),
			message: mqtt.MQTT_PAYLOAD_OFFLINE,
			retain:  true,
		}}
	case domain.OccupancyDetectedEvent:
		return []rawMessage{{
			topic:   state.client.OccupancyTopic(msg.DeviceId),
			message: mqtt.MQTT_PAYLOAD_ON,
		}}
	case domain.OccupancyClearedEvent:
		return []rawMessage{{
			topic:   state.client.OccupancyTopic(msg.DeviceId),
			message: mqtt.MQTT_PAYLOAD_OFF,
		}}
	case domain.EnergySettledEvent:
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EnergyEventsTopic(),
			message: string(payload),
		}}
	case domain.CommandRejectedEvent:
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.RejectEventsTopic(),
			message: string(payload),
		}}
	default:
		return nil
	}
}

func (state *MQTTActor) publishEngineEvent(ctx actor.Context, event any) {
	for _, msg := range state.event2MQTTMessages(event) {
		state.logger.Sugar().Debugf("mqtt@publish: event publish %s => %s", msg.topic, msg.message)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishMessageRequest:
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishMessageResponse{})
		}
	}
}
