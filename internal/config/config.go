package config

import (
	"errors"
	"regexp"
	"strings"

	"github.com/firose-git/autovolt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level

	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Energy   EnergyConfig   `mapstructure:"energy"`
	Liveness LivenessConfig `mapstructure:"liveness"`
	Motion   MotionDefaults `mapstructure:"motion"`
	Influx   InfluxConfig   `mapstructure:"influx"`

	Devices   []DeviceConfig   `mapstructure:"devices"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

type EnergyConfig struct {
	RatePerKwh   float64            `mapstructure:"rate_per_kwh"`
	DefaultWatts float64            `mapstructure:"default_watts"`
	Wattage      map[string]float64 `mapstructure:"wattage"`
}

type LivenessConfig struct {
	TimeoutSeconds       uint32 `mapstructure:"timeout_seconds"`
	SweepIntervalSeconds uint32 `mapstructure:"sweep_interval_seconds"`
}

type MotionDefaults struct {
	DebounceMillis      uint32  `mapstructure:"debounce_millis"`
	AutoOffDelaySeconds uint32  `mapstructure:"auto_off_delay_seconds"`
	WeightThreshold     float64 `mapstructure:"weight_threshold"`
}

type InfluxConfig struct {
	Enable bool   `mapstructure:"enable"`
	URL    string `mapstructure:"url"`
	Token  string
	Org    string
	Bucket string
}

type DeviceConfig struct {
	Id       string
	Name     string
	Room     string
	Address  string
	Switches []SwitchConfig
	Motion   MotionConfig
}

type SwitchConfig struct {
	Id               string
	Name             string
	Category         string
	Watts            float64
	RespondsToMotion bool `mapstructure:"responds_to_motion"`
	SuppressAutoOff  bool `mapstructure:"suppress_auto_off"`
}

type MotionConfig struct {
	Mode                string
	Logic               string
	PrimaryWeight       float64 `mapstructure:"primary_weight"`
	SecondaryWeight     float64 `mapstructure:"secondary_weight"`
	DebounceMillis      uint32  `mapstructure:"debounce_millis"`
	AutoOffDelaySeconds uint32  `mapstructure:"auto_off_delay_seconds"`
	WeightThreshold     float64 `mapstructure:"weight_threshold"`
}

type ScheduleConfig struct {
	Cron     string
	DeviceId string `mapstructure:"device_id"`
	SwitchId string `mapstructure:"switch_id"`
	Action   string // "on" or "off"
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ToDomain builds the runtime device from its config entry, filling gaps
// with the engine-wide motion defaults.
func (d DeviceConfig) ToDomain(defaults MotionDefaults) domain.Device {
	dev := domain.Device{
		Id:      d.Id,
		Name:    d.Name,
		Room:    d.Room,
		Address: d.Address,
		Motion:  d.Motion.toDomain(defaults),
	}
	for _, sw := range d.Switches {
		dev.Switches = append(dev.Switches, domain.Switch{
			Id:               sw.Id,
			Name:             sw.Name,
			Category:         ParseCategory(sw.Category),
			RatedWatts:       sw.Watts,
			RespondsToMotion: sw.RespondsToMotion,
			SuppressAutoOff:  sw.SuppressAutoOff,
		})
	}
	return dev
}

func (m MotionConfig) toDomain(defaults MotionDefaults) domain.MotionSensorConfig {
	cfg := domain.MotionSensorConfig{
		Mode:                domain.SensorMode(m.Mode),
		Logic:               domain.FusionLogic(m.Logic),
		Primary:             domain.ChannelConfig{Weight: m.PrimaryWeight, DebounceMillis: m.DebounceMillis},
		Secondary:           domain.ChannelConfig{Weight: m.SecondaryWeight, DebounceMillis: m.DebounceMillis},
		WeightThreshold:     m.WeightThreshold,
		AutoOffDelaySeconds: m.AutoOffDelaySeconds,
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.MODE_SINGLE_PRIMARY
	}
	if cfg.Logic == "" {
		cfg.Logic = domain.FUSION_AND
	}
	if cfg.Primary.DebounceMillis == 0 {
		cfg.Primary.DebounceMillis = defaults.DebounceMillis
		cfg.Secondary.DebounceMillis = defaults.DebounceMillis
	}
	if cfg.WeightThreshold == 0 {
		cfg.WeightThreshold = defaults.WeightThreshold
	}
	if cfg.AutoOffDelaySeconds == 0 {
		cfg.AutoOffDelaySeconds = defaults.AutoOffDelaySeconds
	}
	return cfg
}

func ParseCategory(s string) domain.SwitchCategory {
	switch strings.ToLower(s) {
	case "light":
		return domain.CATEGORY_LIGHT
	case "fan":
		return domain.CATEGORY_FAN
	case "ac":
		return domain.CATEGORY_AC
	case "projector":
		return domain.CATEGORY_PROJECTOR
	case "outlet":
		return domain.CATEGORY_OUTLET
	default:
		return domain.CATEGORY_OTHER
	}
}

// WattageTable converts the config's string-keyed table to domain categories.
func (e EnergyConfig) WattageTable() map[domain.SwitchCategory]float64 {
	table := make(map[domain.SwitchCategory]float64, len(e.Wattage))
	for k, v := range e.Wattage {
		table[ParseCategory(k)] = v
	}
	return table
}
