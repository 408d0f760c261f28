package service

import (
	"github.com/firose-git/autovolt/internal/core/domain"
)

// ControlInput is one arbitration input for a single switch.
type ControlInput struct {
	Trigger       domain.Trigger
	DesiredState  bool
	ClearOverride bool
}

// Verdict is the outcome of arbitrating one input against one switch.
// Apply=false with a SkipReason means the input was intentionally ignored
// and must be journaled, not silently dropped.
type Verdict struct {
	Apply         bool
	NewState      bool
	SetOverride   bool
	ClearOverride bool
	SkipReason    string
}

const (
	SKIP_OVERRIDE_ACTIVE     = "manual override active"
	SKIP_NOT_MOTION_LINKED   = "switch not motion linked"
	SKIP_AUTO_OFF_SUPPRESSED = "auto-off suppressed"
	SKIP_NO_CHANGE           = "already in desired state"
)

// Decide arbitrates a control input for a switch. The state machine is a
// pure function of (switch, input); priority between competing sources is
// encoded here: manual and remote human actions always win and freeze the
// switch under manual override, clear-override re-arms automation, motion
// and schedule inputs are skipped while the override holds.
func Decide(sw domain.Switch, in ControlInput) Verdict {
	switch in.Trigger {
	case domain.TRIGGER_MANUAL, domain.TRIGGER_REMOTE:
		if in.ClearOverride {
			return Verdict{ClearOverride: true}
		}
		// a human action sets the override even when the state already
		// matches, so automation stays frozen afterwards
		return Verdict{
			Apply:       sw.On != in.DesiredState,
			NewState:    in.DesiredState,
			SetOverride: true,
		}

	case domain.TRIGGER_MOTION:
		if !sw.RespondsToMotion {
			return Verdict{SkipReason: SKIP_NOT_MOTION_LINKED}
		}
		if sw.ManualOverrideActive {
			return Verdict{SkipReason: SKIP_OVERRIDE_ACTIVE}
		}
		if !in.DesiredState && sw.SuppressAutoOff {
			return Verdict{SkipReason: SKIP_AUTO_OFF_SUPPRESSED}
		}
		if sw.On == in.DesiredState {
			return Verdict{SkipReason: SKIP_NO_CHANGE}
		}
		return Verdict{Apply: true, NewState: in.DesiredState}

	case domain.TRIGGER_SCHEDULE:
		if sw.ManualOverrideActive {
			return Verdict{SkipReason: SKIP_OVERRIDE_ACTIVE}
		}
		if sw.On == in.DesiredState {
			return Verdict{SkipReason: SKIP_NO_CHANGE}
		}
		return Verdict{Apply: true, NewState: in.DesiredState}
	}
	return Verdict{SkipReason: "unknown trigger"}
}
