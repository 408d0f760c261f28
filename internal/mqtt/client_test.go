package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/heartbeat"
	r := heartbeatExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "room101", "device extract")
}

func TestHeartbeatParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/availability"
	r := heartbeatExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestManualPressParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/switch/sw1/press"
	r := manualPressExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "room101", "device extract")
	assert.Equal(matches[0][2], "sw1", "switch extract")
}

func TestManualPressParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/switch/sw1/state"
	r := manualPressExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestSensorReadParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	r := sensorReadExtractor(baseTopic)

	matches := r.FindAllStringSubmatch("loremTopic/device/room101/sensor/primary", 1)
	assert.Equal(matches[0][1], "room101", "device extract")
	assert.Equal(matches[0][2], "primary", "channel extract")

	matches = r.FindAllStringSubmatch("loremTopic/device/room101/sensor/secondary", 1)
	assert.Equal(matches[0][2], "secondary", "channel extract")
}

func TestSensorReadParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/sensor/tertiary"
	r := sensorReadExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestRemoteCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/device/room101/switch/sw2/set"
	r := remoteCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "room101", "device extract")
	assert.Equal(matches[0][2], "sw2", "switch extract")
}

func TestParseBoolPayload(t *testing.T) {

	assert := assert.New(t)

	for _, p := range []string{"on", "1", "true"} {
		v, err := ParseBoolPayload(p)
		assert.NoError(err)
		assert.True(v)
	}
	for _, p := range []string{"off", "0", "false"} {
		v, err := ParseBoolPayload(p)
		assert.NoError(err)
		assert.False(v)
	}
	_, err := ParseBoolPayload("toggle")
	assert.Error(err)
}
