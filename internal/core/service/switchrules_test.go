package service

import (
	"testing"

	"github.com/firose-git/autovolt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func motionLinkedSwitch(on, override bool) domain.Switch {
	return domain.Switch{
		Id:                   "sw1",
		Category:             domain.CATEGORY_LIGHT,
		RatedWatts:           20,
		On:                   on,
		ManualOverrideActive: override,
		RespondsToMotion:     true,
	}
}

func TestManualPressSetsOverride(t *testing.T) {
	v := Decide(motionLinkedSwitch(false, false), ControlInput{
		Trigger:      domain.TRIGGER_MANUAL,
		DesiredState: true,
	})
	assert.True(t, v.Apply)
	assert.True(t, v.NewState)
	assert.True(t, v.SetOverride)
}

func TestManualPressSameStateStillSetsOverride(t *testing.T) {
	v := Decide(motionLinkedSwitch(true, false), ControlInput{
		Trigger:      domain.TRIGGER_MANUAL,
		DesiredState: true,
	})
	assert.False(t, v.Apply, "no transition when state already matches")
	assert.True(t, v.SetOverride, "override still set so automation stays frozen")
}

func TestRemoteCommandActsLikeManual(t *testing.T) {
	v := Decide(motionLinkedSwitch(true, false), ControlInput{
		Trigger:      domain.TRIGGER_REMOTE,
		DesiredState: false,
	})
	assert.True(t, v.Apply)
	assert.False(t, v.NewState)
	assert.True(t, v.SetOverride)
}

func TestClearOverride(t *testing.T) {
	v := Decide(motionLinkedSwitch(true, true), ControlInput{
		Trigger:       domain.TRIGGER_REMOTE,
		ClearOverride: true,
	})
	assert.False(t, v.Apply)
	assert.True(t, v.ClearOverride)
	assert.False(t, v.SetOverride)
}

func TestMotionSkippedUnderOverride(t *testing.T) {
	v := Decide(motionLinkedSwitch(false, true), ControlInput{
		Trigger:      domain.TRIGGER_MOTION,
		DesiredState: true,
	})
	assert.False(t, v.Apply)
	assert.Equal(t, SKIP_OVERRIDE_ACTIVE, v.SkipReason)
}

func TestMotionIgnoredWhenNotLinked(t *testing.T) {
	sw := motionLinkedSwitch(false, false)
	sw.RespondsToMotion = false
	v := Decide(sw, ControlInput{
		Trigger:      domain.TRIGGER_MOTION,
		DesiredState: true,
	})
	assert.False(t, v.Apply)
	assert.Equal(t, SKIP_NOT_MOTION_LINKED, v.SkipReason)
}

func TestMotionAutoOffSuppressed(t *testing.T) {
	sw := motionLinkedSwitch(true, false)
	sw.SuppressAutoOff = true
	v := Decide(sw, ControlInput{
		Trigger:      domain.TRIGGER_MOTION,
		DesiredState: false,
	})
	assert.False(t, v.Apply)
	assert.Equal(t, SKIP_AUTO_OFF_SUPPRESSED, v.SkipReason)

	// auto-on is unaffected by the suppression flag
	sw.On = false
	v = Decide(sw, ControlInput{
		Trigger:      domain.TRIGGER_MOTION,
		DesiredState: true,
	})
	assert.True(t, v.Apply)
}

func TestMotionNoChangeSkipped(t *testing.T) {
	v := Decide(motionLinkedSwitch(true, false), ControlInput{
		Trigger:      domain.TRIGGER_MOTION,
		DesiredState: true,
	})
	assert.False(t, v.Apply)
	assert.Equal(t, SKIP_NO_CHANGE, v.SkipReason)
}

func TestScheduleSkippedUnderOverride(t *testing.T) {
	v := Decide(motionLinkedSwitch(false, true), ControlInput{
		Trigger:      domain.TRIGGER_SCHEDULE,
		DesiredState: true,
	})
	assert.False(t, v.Apply)
	assert.Equal(t, SKIP_OVERRIDE_ACTIVE, v.SkipReason)
}

func TestScheduleApplies(t *testing.T) {
	v := Decide(motionLinkedSwitch(false, false), ControlInput{
		Trigger:      domain.TRIGGER_SCHEDULE,
		DesiredState: true,
	})
	assert.True(t, v.Apply)
	assert.True(t, v.NewState)
	assert.False(t, v.SetOverride, "schedule never sets the override")
}
