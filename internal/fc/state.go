package fc

// State is the mission FSM's current label. It is a sum type over labels;
// transitions are a pure function of (state, context, inputs) in Step.
type State uint8

const (
	Safe State = iota
	Preflight
	// ArmedWait is enumerated but unreachable by any transition in Step; it
	// is kept as a reserved label matching the source firmware.
	ArmedWait
	Boost
	PostBurnHold
	Window
	Deployed
	Retracting
	Locked
	AbortLockout
)

func (s State) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Preflight:
		return "PREFLIGHT"
	case ArmedWait:
		return "ARMED_WAIT"
	case Boost:
		return "BOOST"
	case PostBurnHold:
		return "POST_HOLD"
	case Window:
		return "WINDOW"
	case Deployed:
		return "DEPLOYED"
	case Retracting:
		return "RETRACT"
	case Locked:
		return "LOCKED"
	case AbortLockout:
		return "ABORT_LOCKOUT"
	default:
		return "UNKNOWN"
	}
}

// Flags is the gate and one-shot-event bitmask. Every bit comes from
// debounced state except FlagTiltOK, which reflects the current tilt sample.
type Flags uint32

const (
	FlagSensImuAOK Flags = 1 << 0
	FlagSensBaroOK Flags = 1 << 1
	FlagSensImuBOK Flags = 1 << 2
	FlagBaroAgree  Flags = 1 << 3
	FlagMachOK     Flags = 1 << 4
	FlagTiltOK     Flags = 1 << 5
	FlagTiltLatch  Flags = 1 << 6
	FlagLiftoffDet Flags = 1 << 7
	FlagBurnoutDet Flags = 1 << 8
)
