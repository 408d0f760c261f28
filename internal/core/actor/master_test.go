package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "github.com/firose-git/autovolt/internal/adapter/actor"
	"github.com/firose-git/autovolt/internal/adapter/ledger"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/service"
	"github.com/firose-git/autovolt/internal/mqtt"
	"github.com/firose-git/autovolt/internal/util"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMaster(t *testing.T) (*pactor.ActorSystem, *pactor.PID) {
	t.Helper()

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := pactor.NewActorSystem()

	calc := service.SettlementCalc{
		RatePerKwh:   cfg.Energy.RatePerKwh,
		Wattage:      cfg.Energy.WattageTable(),
		DefaultWatts: cfg.Energy.DefaultWatts,
	}
	store := ledger.NewMemoryLedgerStore()
	journal := ledger.NewMemoryJournal()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return NewMasterActor(cfg, func(_ *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, func(es *eventstream.EventStream) *AccountingActor {
			return NewAccountingActor(calc, store, journal, nil, es, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, "master")
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	return as, pid
}

func TestMasterHealthCheck(t *testing.T) {
	as, pid := spawnTestMaster(t)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)

	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	as.Root.Stop(pid)
}

func TestMasterRoutesHeartbeatToLiveness(t *testing.T) {
	as, pid := spawnTestMaster(t)
	defer as.Shutdown()

	as.Root.Send(pid, adactor.ParsedDeviceCommand{Message: &mqtt.ParsedDeviceMessage{
		Kind:     mqtt.MSG_HEARTBEAT,
		DeviceId: "room101",
	}})
	time.Sleep(300 * time.Millisecond)

	res, err := as.Root.RequestFuture(pid, GetDeviceStateByIdRequest{DeviceId: "room101"}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetDeviceStateResponse)
	require.True(t, ok)
	require.NoError(t, resp.GetResponseError())
	assert.True(t, resp.Device.Online, "heartbeat marks the device online")
}

func TestMasterRoutesManualPressAndSettles(t *testing.T) {
	as, pid := spawnTestMaster(t)
	defer as.Shutdown()

	// device must be online before ON periods are tracked
	as.Root.Send(pid, adactor.ParsedDeviceCommand{Message: &mqtt.ParsedDeviceMessage{
		Kind: mqtt.MSG_HEARTBEAT, DeviceId: "room101",
	}})
	time.Sleep(300 * time.Millisecond)

	as.Root.Send(pid, adactor.ParsedDeviceCommand{Message: &mqtt.ParsedDeviceMessage{
		Kind: mqtt.MSG_MANUAL_PRESS, DeviceId: "room101", SwitchId: "sw1", Payload: "on",
	}})
	time.Sleep(300 * time.Millisecond)

	res, err := as.Root.RequestFuture(pid, domain.GetActiveTrackingRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	tracking, ok := res.(domain.GetActiveTrackingResponse)
	require.True(t, ok)
	require.Len(t, tracking.Entries, 1)
	assert.Equal(t, "sw1", tracking.Entries[0].Entry.SwitchId)

	as.Root.Send(pid, adactor.ParsedDeviceCommand{Message: &mqtt.ParsedDeviceMessage{
		Kind: mqtt.MSG_MANUAL_PRESS, DeviceId: "room101", SwitchId: "sw1", Payload: "off",
	}})
	time.Sleep(300 * time.Millisecond)

	today := domain.LedgerDate(time.Now())
	res, err = as.Root.RequestFuture(pid, domain.GetConsumptionRequest{
		From: today, To: today,
	}, 5*time.Second).Result()
	require.NoError(t, err)
	consumption, ok := res.(domain.GetConsumptionResponse)
	require.True(t, ok)
	require.Len(t, consumption.Devices, 1, "all configured devices are included")
	assert.Equal(t, "101", consumption.Devices[0].Room)
	require.Len(t, consumption.Devices[0].Records, 1)
	assert.Equal(t, uint32(1), consumption.Devices[0].Records[0].Total.ActivationCount)
}

func TestMasterRejectsCommandForUnknownDevice(t *testing.T) {
	as, pid := spawnTestMaster(t)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.RemoteCommandRequest{
		DeviceId: "nope", SwitchId: "sw1", DesiredState: true,
	}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.RemoteCommandResponse)
	require.True(t, ok)
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrUnknownDevice)
}

func TestMasterConsumptionRoomFilter(t *testing.T) {
	as, pid := spawnTestMaster(t)
	defer as.Shutdown()

	today := domain.LedgerDate(time.Now())
	res, err := as.Root.RequestFuture(pid, domain.GetConsumptionRequest{
		Room: "somewhere_else", From: today, To: today,
	}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetConsumptionResponse)
	require.True(t, ok)
	assert.Empty(t, resp.Devices, "no device in that room")
}
