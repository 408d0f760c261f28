package actor

import (
	"testing"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// livenessParent spawns the liveness monitor as a child and exposes the
// LivenessChanged notifications it would normally route to device actors.
type livenessParent struct {
	cfg    config.LivenessConfig
	es     *eventstream.EventStream
	events chan domain.LivenessChanged
	child  *pactor.PID
	logger *zap.Logger
}

func (p *livenessParent) Receive(ctx pactor.Context) {
	switch msg := ctx.Message().(type) {
	case *pactor.Started:
		props := pactor.PropsFromProducer(func() pactor.Actor {
			return NewLivenessActor(p.cfg, p.es, p.logger)
		})
		p.child = ctx.Spawn(props)
	case domain.HeartbeatEvent:
		ctx.Send(p.child, msg)
	case domain.LivenessChanged:
		p.events <- msg
	}
}

func expectLivenessChange(t *testing.T, ch chan domain.LivenessChanged, wait time.Duration) domain.LivenessChanged {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(wait):
		t.Fatal("expected a liveness change")
		return domain.LivenessChanged{}
	}
}

func TestLivenessOnlineAndOffline(t *testing.T) {
	logger := zap.Must(zap.NewDevelopmentConfig().Build())
	as := pactor.NewActorSystem()
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	offlineEvents := make(chan domain.DeviceOfflineEvent, 4)
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.DeviceOfflineEvent); ok {
			offlineEvents <- e
		}
	})

	parent := &livenessParent{
		cfg:    config.LivenessConfig{TimeoutSeconds: 1, SweepIntervalSeconds: 1},
		es:     es,
		events: make(chan domain.LivenessChanged, 4),
		logger: logger,
	}
	pid := as.Root.Spawn(pactor.PropsFromProducer(func() pactor.Actor { return parent }))

	// first heartbeat flips the device online
	as.Root.Send(pid, domain.HeartbeatEvent{DeviceId: "room101", Timestamp: time.Now()})
	change := expectLivenessChange(t, parent.events, 2*time.Second)
	assert.Equal(t, "room101", change.DeviceId)
	assert.True(t, change.Online)

	// no more heartbeats: two consecutive missed sweeps mark it offline
	change = expectLivenessChange(t, parent.events, 6*time.Second)
	assert.False(t, change.Online)

	select {
	case e := <-offlineEvents:
		assert.Equal(t, "room101", e.DeviceId)
	case <-time.After(time.Second):
		t.Fatal("expected a device offline event on the stream")
	}

	// a new heartbeat recovers it
	as.Root.Send(pid, domain.HeartbeatEvent{DeviceId: "room101", Timestamp: time.Now()})
	change = expectLivenessChange(t, parent.events, 2*time.Second)
	assert.True(t, change.Online)
}

func TestLivenessToleratesSingleMissedSweep(t *testing.T) {
	logger := zap.Must(zap.NewDevelopmentConfig().Build())
	as := pactor.NewActorSystem()
	defer as.Shutdown()

	parent := &livenessParent{
		cfg:    config.LivenessConfig{TimeoutSeconds: 1, SweepIntervalSeconds: 1},
		es:     &eventstream.EventStream{},
		events: make(chan domain.LivenessChanged, 4),
		logger: logger,
	}
	pid := as.Root.Spawn(pactor.PropsFromProducer(func() pactor.Actor { return parent }))

	as.Root.Send(pid, domain.HeartbeatEvent{DeviceId: "room101", Timestamp: time.Now()})
	expectLivenessChange(t, parent.events, 2*time.Second)

	// keep heartbeating a bit slower than the timeout; a single overdue
	// sweep must not flip the device offline
	for i := 0; i < 3; i++ {
		time.Sleep(1200 * time.Millisecond)
		as.Root.Send(pid, domain.HeartbeatEvent{DeviceId: "room101", Timestamp: time.Now()})
	}

	select {
	case e := <-parent.events:
		require.Fail(t, "unexpected liveness change", "%+v", e)
	default:
	}
}
