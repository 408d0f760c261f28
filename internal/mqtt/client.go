package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/firose-git/autovolt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"

	MQTT_PAYLOAD_CLEAR_OVERRIDE = "clear_override"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("autovolt_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:          mqtt.NewClient(opts),
		cfg:             cfg.MQTT,
		heartbeatRegexp: heartbeatExtractor(cfg.MQTT.BaseTopic),
		pressRegexp:     manualPressExtractor(cfg.MQTT.BaseTopic),
		sensorRegexp:    sensorReadExtractor(cfg.MQTT.BaseTopic),
		commandRegexp:   remoteCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client          mqtt.Client
	cfg             config.MQTTConfig
	heartbeatRegexp *regexp.Regexp
	pressRegexp     *regexp.Regexp
	sensorRegexp    *regexp.Regexp
	commandRegexp   *regexp.Regexp
}

type MessageKind string

const (
	MSG_HEARTBEAT      MessageKind = "heartbeat"
	MSG_MANUAL_PRESS   MessageKind = "press"
	MSG_SENSOR_READ    MessageKind = "sensor"
	MSG_REMOTE_COMMAND MessageKind = "command"
)

// ParsedDeviceMessage is an inbound MQTT message reduced to its parts.
type ParsedDeviceMessage struct {
	Kind     MessageKind
	DeviceId string
	SwitchId string
	Channel  string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SwitchStateTopic(deviceId, switchId string) string {
	return fmt.Sprintf("%s/device/%s/switch/%s/state", c.baseTopic(), deviceId, switchId)
}

func (c *MQTTClient) DeviceAvailabilityTopic(deviceId string) string {
	return fmt.Sprintf("%s/device/%s/availability", c.baseTopic(), deviceId)
}

func (c *MQTTClient) OccupancyTopic(deviceId string) string {
	return fmt.Sprintf("%s/device/%s/occupancy", c.baseTopic(), deviceId)
}

func (c *MQTTClient) TransitionEventsTopic() string {
	return fmt.Sprintf("%s/events/transition", c.baseTopic())
}

func (c *MQTTClient) EnergyEventsTopic() string {
	return fmt.Sprintf("%s/events/energy", c.baseTopic())
}

func (c *MQTTClient) RejectEventsTopic() string {
	return fmt.Sprintf("%s/events/rejected", c.baseTopic())
}

// ParseDeviceMessage matches an inbound message against the device topic
// scheme. Returns nil for topics the engine does not consume (e.g. its own
// published state).
func (c *MQTTClient) ParseDeviceMessage(msg mqtt.Message) (*ParsedDeviceMessage, error) {
	topic := msg.Topic()
	payload := string(msg.Payload())

	if m := c.heartbeatRegexp.FindStringSubmatch(topic); m != nil {
		return &ParsedDeviceMessage{Kind: MSG_HEARTBEAT, DeviceId: m[1], Payload: payload}, nil
	}
	if m := c.pressRegexp.FindStringSubmatch(topic); m != nil {
		if _, err := ParseBoolPayload(payload); err != nil {
			return nil, err
		}
		return &ParsedDeviceMessage{Kind: MSG_MANUAL_PRESS, DeviceId: m[1], SwitchId: m[2], Payload: payload}, nil
	}
	if m := c.sensorRegexp.FindStringSubmatch(topic); m != nil {
		if _, err := ParseBoolPayload(payload); err != nil {
			return nil, err
		}
		return &ParsedDeviceMessage{Kind: MSG_SENSOR_READ, DeviceId: m[1], Channel: m[2], Payload: payload}, nil
	}
	if m := c.commandRegexp.FindStringSubmatch(topic); m != nil {
		if payload != MQTT_PAYLOAD_CLEAR_OVERRIDE {
			if _, err := ParseBoolPayload(payload); err != nil {
				return nil, err
			}
		}
		return &ParsedDeviceMessage{Kind: MSG_REMOTE_COMMAND, DeviceId: m[1], SwitchId: m[2], Payload: payload}, nil
	}
	return nil, nil
}

// ParseBoolPayload accepts the on/off payload dialect spoken by the relay
// boards ("on"/"off"/"1"/"0"/"true"/"false").
func ParseBoolPayload(payload string) (bool, error) {
	switch payload {
	case MQTT_PAYLOAD_ON, "1", "true":
		return true, nil
	case MQTT_PAYLOAD_OFF, "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean payload %q", payload)
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// SubscribeToDeviceTopics subscribes to every inbound device topic in one go.
func (c *MQTTClient) SubscribeToDeviceTopics(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(fmt.Sprintf("%s/device/#", c.baseTopic()), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func heartbeatExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/device/([a-zA-Z0-9_]+)/heartbeat$", baseTopic))
}

func manualPressExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/device/([a-zA-Z0-9_]+)/switch/([a-zA-Z0-9_]+)/press$", baseTopic))
}

func sensorReadExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/device/([a-zA-Z0-9_]+)/sensor/(primary|secondary)$", baseTopic))
}

func remoteCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/device/([a-zA-Z0-9_]+)/switch/([a-zA-Z0-9_]+)/set$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
