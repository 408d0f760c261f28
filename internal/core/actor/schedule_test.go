package actor

import (
	"testing"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// scheduleParent spawns the schedule actor as a child and captures the fire
// events it would normally route to device actors.
type scheduleParent struct {
	schedules []config.ScheduleConfig
	fires     chan domain.ScheduleFireEvent
	logger    *zap.Logger
}

func (p *scheduleParent) Receive(ctx pactor.Context) {
	switch msg := ctx.Message().(type) {
	case *pactor.Started:
		props := pactor.PropsFromProducer(func() pactor.Actor {
			return NewScheduleActor(p.schedules, p.logger)
		})
		ctx.Spawn(props)
	case domain.ScheduleFireEvent:
		p.fires <- msg
	}
}

func TestScheduleFiresCronRule(t *testing.T) {
	logger := zap.Must(zap.NewDevelopmentConfig().Build())
	as := pactor.NewActorSystem()
	defer as.Shutdown()

	parent := &scheduleParent{
		schedules: []config.ScheduleConfig{
			// every second
			{Cron: "* * * * * *", DeviceId: "room101", SwitchId: "sw1", Action: "off"},
		},
		fires:  make(chan domain.ScheduleFireEvent, 4),
		logger: logger,
	}
	as.Root.Spawn(pactor.PropsFromProducer(func() pactor.Actor { return parent }))

	select {
	case fire := <-parent.fires:
		assert.Equal(t, "room101", fire.DeviceId)
		assert.Equal(t, "sw1", fire.SwitchId)
		assert.False(t, fire.DesiredState)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a schedule fire")
	}
}

func TestScheduleSkipsInvalidCron(t *testing.T) {
	logger := zap.Must(zap.NewDevelopmentConfig().Build())
	as := pactor.NewActorSystem()
	defer as.Shutdown()

	parent := &scheduleParent{
		schedules: []config.ScheduleConfig{
			{Cron: "not a cron", DeviceId: "room101", SwitchId: "sw1", Action: "on"},
		},
		fires:  make(chan domain.ScheduleFireEvent, 4),
		logger: logger,
	}
	as.Root.Spawn(pactor.PropsFromProducer(func() pactor.Actor { return parent }))

	select {
	case fire := <-parent.fires:
		t.Fatalf("unexpected fire: %+v", fire)
	case <-time.After(1500 * time.Millisecond):
	}
}
