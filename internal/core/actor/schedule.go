package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/firose-git/autovolt/internal/config"
	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// ScheduleActor turns configured cron rules into ScheduleFireEvents. Fires
// go through the master so the target device actor arbitrates them like any
// other input.
type ScheduleActor struct {
	behavior  actor.Behavior
	schedules []config.ScheduleConfig
	sched     quartz.Scheduler
	cancel    context.CancelFunc
	logger    *zap.Logger
}

func NewScheduleActor(schedules []config.ScheduleConfig, logger *zap.Logger) *ScheduleActor {
	act := &ScheduleActor{
		behavior:  actor.NewBehavior(),
		schedules: schedules,
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_SCHEDULE, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ScheduleActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ScheduleActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("schedule@default started")
		state.startScheduler(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULE,
			Healthy: state.sched != nil,
			State:   "idle",
		})
	case *actor.Stopping:
		if state.sched != nil {
			state.sched.Stop()
		}
		if state.cancel != nil {
			state.cancel()
		}
	default:
		state.logger.Debug("schedule@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ScheduleActor) startScheduler(ctx actor.Context) {
	schedCtx, cancel := context.WithCancel(context.Background())
	state.cancel = cancel
	state.sched = quartz.NewStdScheduler()
	state.sched.Start(schedCtx)

	root := ctx.ActorSystem().Root
	master := ctx.Parent()

	for i, rule := range state.schedules {
		trigger, err := quartz.NewCronTrigger(rule.Cron)
		if err != nil {
			state.logger.Error("invalid cron expression, rule skipped",
				zap.String("cron", rule.Cron), zap.Error(err))
			continue
		}
		desiredState := rule.Action == "on"
		deviceId := rule.DeviceId
		switchId := rule.SwitchId

		fireJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
			root.Send(master, domain.ScheduleFireEvent{
				DeviceId:     deviceId,
				SwitchId:     switchId,
				DesiredState: desiredState,
				Timestamp:    time.Now(),
			})
			return true, nil
		})
		detail := quartz.NewJobDetail(fireJob, quartz.NewJobKey(fmt.Sprintf("schedule_%d", i)))
		if err := state.sched.ScheduleJob(detail, trigger); err != nil {
			state.logger.Error("could not schedule rule", zap.String("cron", rule.Cron), zap.Error(err))
			continue
		}
		state.logger.Info("schedule rule armed",
			zap.String("cron", rule.Cron),
			zap.String("device", deviceId),
			zap.String("switch", switchId),
			zap.String("action", rule.Action))
	}
}
