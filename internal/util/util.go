package util

import (
	"github.com/firose-git/autovolt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "autovolt",
		},
		Energy: config.EnergyConfig{
			RatePerKwh:   8,
			DefaultWatts: 40,
			Wattage: map[string]float64{
				"light": 20,
				"fan":   75,
			},
		},
		Liveness: config.LivenessConfig{
			TimeoutSeconds:       60,
			SweepIntervalSeconds: 15,
		},
		Motion: config.MotionDefaults{
			DebounceMillis:      200,
			AutoOffDelaySeconds: 120,
			WeightThreshold:     0.7,
		},
		Devices: []config.DeviceConfig{
			{
				Id:   "room101",
				Name: "Room 101",
				Room: "101",
				Switches: []config.SwitchConfig{
					{
						Id:               "sw1",
						Name:             "Ceiling Light",
						Category:         "light",
						Watts:            20,
						RespondsToMotion: true,
					},
					{
						Id:       "sw2",
						Name:     "Ceiling Fan",
						Category: "fan",
						Watts:    75,
					},
				},
				Motion: config.MotionConfig{
					Mode:  "dual",
					Logic: "and",
				},
			},
		},
		Port: 8080,
	}
}
