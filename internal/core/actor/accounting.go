package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/firose-git/autovolt/internal/core/domain"
	"github.com/firose-git/autovolt/internal/core/port"
	"github.com/firose-git/autovolt/internal/core/service"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountingActor is the single writer of the active tracking table and the
// daily ledger. It consumes transition and liveness events off the engine
// stream, so no controller ever calls into it directly.
type AccountingActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler

	calc        service.SettlementCalc
	ledger      port.LedgerStore
	journal     port.EventJournal
	archive     port.SettlementArchive
	eventStream *eventstream.EventStream
	sub         *eventstream.Subscription

	// key: deviceId + "/" + switchId
	tracking map[string]domain.ActiveTrackingEntry

	retryQueue []retrySettlement
	retryArmed bool
	retryBO    *backoff.ExponentialBackOff

	logger *zap.Logger
}

// streamEvent re-posts an event stream publication into the mailbox so all
// state mutation happens on the actor goroutine.
type streamEvent struct {
	event any
}

type archiveResult struct {
	settlement domain.Settlement
	err        error
}

// retrySettlement is a settlement whose ledger increment or archive write
// failed and awaits replay.
type retrySettlement struct {
	settlement domain.Settlement
	toLedger   bool
}

type archiveRetryTick struct {
}

func NewAccountingActor(calc service.SettlementCalc, ledger port.LedgerStore, journal port.EventJournal,
	archive port.SettlementArchive, eventStream *eventstream.EventStream, logger *zap.Logger) *AccountingActor {

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0

	act := &AccountingActor{
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		calc:        calc,
		ledger:      ledger,
		journal:     journal,
		archive:     archive,
		eventStream: eventStream,
		tracking:    make(map[string]domain.ActiveTrackingEntry),
		retryBO:     bo,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_ACCOUNTING, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *AccountingActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *AccountingActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("accounting@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.sub = state.eventStream.Subscribe(func(evt any) {
			switch evt.(type) {
			case domain.SwitchTransitionEvent, domain.DeviceOfflineEvent,
				domain.CommandSkippedEvent, domain.CommandRejectedEvent:
				root.Send(self, streamEvent{event: evt})
			}
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("accounting@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *AccountingActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("accounting@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ACCOUNTING,
			Healthy: true,
			State:   "idle",
		})
	case streamEvent:
		state.handleStreamEvent(ctx, msg.event)
	case archiveResult:
		if msg.err != nil {
			state.logger.Warn("settlement archive failed, queued for retry", zap.Error(msg.err))
			state.queueRetry(ctx, retrySettlement{settlement: msg.settlement})
		} else {
			state.retryBO.Reset()
		}
	case archiveRetryTick:
		state.drainRetryQueue(ctx)
	case domain.GetActiveTrackingRequest:
		actorutil.ForRequest(msg).Respond(ctx, state.trackingSnapshot())
	case domain.GetConsumptionRequest:
		state.handleConsumptionQuery(ctx, msg)
	case *actor.Stopping:
		if state.sub != nil {
			state.eventStream.Unsubscribe(state.sub)
			state.sub = nil
		}
	default:
		state.logger.Debug("accounting@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *AccountingActor) handleStreamEvent(ctx actor.Context, event any) {
	switch e := event.(type) {
	case domain.SwitchTransitionEvent:
		state.handleTransition(ctx, e)
	case domain.DeviceOfflineEvent:
		state.forceCloseDevice(ctx, e)
	case domain.CommandSkippedEvent:
		state.journalAppend(domain.EventLogEntry{
			Id:        uuid.NewString(),
			Kind:      domain.EVENTLOG_SKIP,
			DeviceId:  e.DeviceId,
			SwitchId:  e.SwitchId,
			Trigger:   e.Trigger,
			Note:      e.Reason,
			Timestamp: e.At(),
		})
	case domain.CommandRejectedEvent:
		state.journalAppend(domain.EventLogEntry{
			Id:        uuid.NewString(),
			Kind:      domain.EVENTLOG_REJECT,
			DeviceId:  e.DeviceId,
			SwitchId:  e.SwitchId,
			Trigger:   e.Trigger,
			Note:      e.Reason,
			Timestamp: e.At(),
		})
	}
}

func (state *AccountingActor) handleTransition(ctx actor.Context, e domain.SwitchTransitionEvent) {
	state.journalAppend(domain.EventLogEntry{
		Id:        uuid.NewString(),
		Kind:      domain.EVENTLOG_TRANSITION,
		DeviceId:  e.DeviceId,
		SwitchId:  e.SwitchId,
		Trigger:   e.Trigger,
		NewState:  e.NewState,
		Category:  e.Category,
		Timestamp: e.At(),
	})

	key := trackingKey(e.DeviceId, e.SwitchId)
	if e.NewState {
		if !e.DeviceOnline {
			// control state may flip while unreachable, but unreachable time
			// is never charged
			state.logger.Debug("ON not tracked, device offline",
				zap.String("device", e.DeviceId), zap.String("switch", e.SwitchId))
			return
		}
		if _, exists := state.tracking[key]; exists {
			// duplicate ON, the open entry keeps its original start time
			state.logger.Debug("duplicate ON ignored", zap.String("key", key))
			return
		}
		state.tracking[key] = domain.ActiveTrackingEntry{
			DeviceId:  e.DeviceId,
			SwitchId:  e.SwitchId,
			Category:  e.Category,
			Watts:     e.Watts,
			StartedAt: e.At(),
		}
		return
	}

	entry, exists := state.tracking[key]
	if !exists {
		// OFF without an open entry is a no-op, which makes OFF idempotent
		state.logger.Debug("OFF without tracking entry ignored", zap.String("key", key))
		return
	}
	delete(state.tracking, key)
	state.settle(ctx, entry, e.At())
}

// forceCloseDevice settles every open entry of a device at the moment it was
// declared offline.
func (state *AccountingActor) forceCloseDevice(ctx actor.Context, e domain.DeviceOfflineEvent) {
	for key, entry := range state.tracking {
		if entry.DeviceId != e.DeviceId {
			continue
		}
		state.logger.Info("force closing tracking entry, device offline",
			zap.String("device", entry.DeviceId), zap.String("switch", entry.SwitchId))
		delete(state.tracking, key)
		state.settle(ctx, entry, e.At())
	}
}

func (state *AccountingActor) settle(ctx actor.Context, entry domain.ActiveTrackingEntry, stoppedAt time.Time) {
	s := state.calc.Settle(entry, stoppedAt)
	delta := s.Delta()

	state.journalAppend(domain.EventLogEntry{
		Id:        uuid.NewString(),
		Kind:      domain.EVENTLOG_SETTLEMENT,
		DeviceId:  s.DeviceId,
		SwitchId:  s.SwitchId,
		Category:  s.Category,
		Delta:     &delta,
		Estimated: s.Estimated,
		Timestamp: stoppedAt,
	})

	date := domain.LedgerDate(stoppedAt)
	if err := state.ledger.IncrementDaily(context.Background(), s.DeviceId, date, s.Category, delta); err != nil {
		state.logger.Warn("ledger increment failed, queued for retry", zap.Error(err))
		state.queueRetry(ctx, retrySettlement{settlement: s, toLedger: true})
	}

	state.logger.Info("energy settled",
		zap.String("device", s.DeviceId),
		zap.String("switch", s.SwitchId),
		zap.Float64("kwh", s.EnergyKwh),
		zap.Float64("hours", s.RuntimeHours),
		zap.Bool("estimated", s.Estimated))

	state.eventStream.Publish(domain.EnergySettledEvent{
		EngineEventMixIn: domain.EngineEventMixIn{Timestamp: stoppedAt},
		Settlement:       s,
	})

	state.archiveSettlement(ctx, s)
}

func (state *AccountingActor) archiveSettlement(ctx actor.Context, s domain.Settlement) {
	if state.archive == nil {
		return
	}
	actorutil.NewBackgroundTaskNoError(ctx, func() *archiveResult {
		err := state.archive.Archive(context.Background(), s)
		return &archiveResult{settlement: s, err: err}
	}).Recover(func(err error) archiveResult {
		return archiveResult{settlement: s, err: err}
	}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
}

func (state *AccountingActor) queueRetry(ctx actor.Context, r retrySettlement) {
	state.retryQueue = append(state.retryQueue, r)
	if state.retryArmed {
		return
	}
	state.retryArmed = true
	state.scheduler.RequestOnce(state.retryBO.NextBackOff(), ctx.Self(), archiveRetryTick{})
}

// drainRetryQueue replays failed ledger and archive writes from the
// settlements already journaled. Nothing is ever recomputed from elapsed time.
func (state *AccountingActor) drainRetryQueue(ctx actor.Context) {
	state.retryArmed = false
	pending := state.retryQueue
	state.retryQueue = nil
	if len(pending) == 0 {
		state.retryBO.Reset()
		return
	}
	state.logger.Info("retrying settlement writes", zap.Int("pending", len(pending)))
	for _, r := range pending {
		if r.toLedger {
			s := r.settlement
			date := domain.LedgerDate(s.StoppedAt)
			if err := state.ledger.IncrementDaily(context.Background(), s.DeviceId, date, s.Category, s.Delta()); err != nil {
				state.queueRetry(ctx, r)
				continue
			}
			state.retryBO.Reset()
			continue
		}
		// a fresh failure re-arms via the archiveResult path
		state.archiveSettlement(ctx, r.settlement)
	}
}

func (state *AccountingActor) trackingSnapshot() domain.GetActiveTrackingResponse {
	now := time.Now()
	entries := make([]domain.TrackingSnapshot, 0, len(state.tracking))
	for _, entry := range state.tracking {
		elapsed, cost := state.calc.RunningCost(entry, now)
		entries = append(entries, domain.TrackingSnapshot{
			Entry:               entry,
			ElapsedHours:        elapsed,
			RunningCostEstimate: cost,
		})
	}
	return domain.GetActiveTrackingResponse{Entries: entries}
}

func (state *AccountingActor) handleConsumptionQuery(ctx actor.Context, msg domain.GetConsumptionRequest) {
	devices, err := state.ledger.QueryRange(context.Background(), msg.DeviceIds, msg.From, msg.To)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.GetConsumptionResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	for i := range devices {
		devices[i].Room = msg.Rooms[devices[i].DeviceId]
	}
	if !msg.GroupByCategory {
		for i := range devices {
			for j := range devices[i].Records {
				devices[i].Records[j].Categories = nil
			}
		}
	}
	actorutil.ForRequest(msg).Respond(ctx, domain.GetConsumptionResponse{Devices: devices})
}

func (state *AccountingActor) journalAppend(entry domain.EventLogEntry) {
	if err := state.journal.Append(entry); err != nil {
		state.logger.Error("journal append failed", zap.Error(err))
	}
}

func trackingKey(deviceId, switchId string) string {
	return deviceId + "/" + switchId
}
