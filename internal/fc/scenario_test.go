package fc

import "testing"

// tick is one hand-scripted input frame at a fixed 10ms cadence, driving
// Step directly rather than through the fusion engine so each scenario's
// trajectory is exact and reproducible.
type tick struct {
	tiltDeg    float32
	azImuA     float32
	vzFused    float32
	aglFused   float32
	apogeeAGL  float32
	tApogeeS   float32
	imuAValid  bool
	baroValid  bool
	imuBValid  bool
}

func runTicks(ctx *Context, nowMs *uint32, n int, frame tick) Outputs {
	var out Outputs
	for i := 0; i < n; i++ {
		*nowMs += 10
		out = Step(ctx, Inputs{
			DtMs:       10,
			NowMs:      *nowMs,
			TiltDeg:    frame.tiltDeg,
			AGLFusedM:  frame.aglFused,
			VzFusedMps: frame.vzFused,
			AzImuAMps2: frame.azImuA,
			TApogeeS:   frame.tApogeeS,
			ApogeeAGLM: frame.apogeeAGL,
			AGLReady:   true,
			ImuAValid:  frame.imuAValid,
			BaroValid:  frame.baroValid,
			ImuBValid:  frame.imuBValid,
		})
	}
	return out
}

func baselineFrame() tick {
	return tick{imuAValid: true, baroValid: true, imuBValid: true}
}

// TestScenario_CleanNominalFlight runs a full boost-to-lock trajectory using
// BenchConfig's fast thresholds and asserts the same state sequence as S1:
// PREFLIGHT -> BOOST -> POST_BURN_HOLD -> WINDOW -> DEPLOYED (one tick,
// cmd_deg nonzero) -> RETRACTING -> LOCKED.
func TestScenario_CleanNominalFlight(t *testing.T) {
	cfg := BenchConfig()
	ctx := NewContext(cfg)
	var now uint32

	// Warm up with all sensors valid and no motion so the validity and
	// mach gates latch well before liftoff.
	out := runTicks(ctx, &now, 30, baselineFrame())
	if out.State != Preflight {
		t.Fatalf("after warmup: state=%v want Preflight", out.State)
	}

	// Sustained acceleration triggers liftoff after LiftoffDwell.
	boosting := baselineFrame()
	boosting.azImuA = 5.0
	out = runTicks(ctx, &now, 5, boosting)
	if out.State != Boost {
		t.Fatalf("after liftoff dwell: state=%v want Boost", out.State)
	}
	if out.Flags&FlagLiftoffDet == 0 {
		t.Fatalf("expected FlagLiftoffDet set on liftoff")
	}

	// More boost, then a sustained drop to near-zero accel triggers burnout.
	out = runTicks(ctx, &now, 10, boosting)
	if out.State != Boost {
		t.Fatalf("mid boost: state=%v want Boost", out.State)
	}
	coasting := baselineFrame()
	out = runTicks(ctx, &now, 12, coasting)
	if out.State != PostBurnHold {
		t.Fatalf("after burnout dwell: state=%v want PostBurnHold", out.State)
	}
	if out.Flags&FlagBurnoutDet == 0 {
		t.Fatalf("expected FlagBurnoutDet set on burnout")
	}

	// BurnoutHold (400ms) must fully elapse before Window opens.
	out = runTicks(ctx, &now, 39, coasting)
	if out.State != PostBurnHold {
		t.Fatalf("just before hold elapses: state=%v want PostBurnHold", out.State)
	}
	out = runTicks(ctx, &now, 1, coasting)
	if out.State != Window {
		t.Fatalf("after burnout hold: state=%v want Window", out.State)
	}

	// A high, confident apogee projection with all gates OK deploys
	// on the first tick after Window is entered.
	highApogee := baselineFrame()
	highApogee.aglFused = 50.0
	highApogee.apogeeAGL = 1.0
	highApogee.tApogeeS = 2.0
	out = runTicks(ctx, &now, 1, highApogee)
	if out.State != Deployed {
		t.Fatalf("state=%v want Deployed once AGL/apogee/gates clear", out.State)
	}
	if out.AirbrakeCmdDeg != cfg.DeployCmdDeg {
		t.Fatalf("AirbrakeCmdDeg=%v want %v while Deployed", out.AirbrakeCmdDeg, cfg.DeployCmdDeg)
	}

	// t_to_apogee_s crossing the retract threshold ends deployment; cmd_deg
	// must be zero again since Step reports cmd_deg for the post-transition
	// state.
	nearApogee := highApogee
	nearApogee.tApogeeS = 0.3
	out = runTicks(ctx, &now, 1, nearApogee)
	if out.State != Retracting {
		t.Fatalf("state=%v want Retracting once t_to_apogee_s crosses threshold", out.State)
	}
	if out.AirbrakeCmdDeg != 0 {
		t.Fatalf("AirbrakeCmdDeg=%v want 0 outside Deployed", out.AirbrakeCmdDeg)
	}

	out = runTicks(ctx, &now, 1, nearApogee)
	if out.State != Locked {
		t.Fatalf("state=%v want Locked the tick after Retracting", out.State)
	}

	// Locked is absorbing.
	out = runTicks(ctx, &now, 5, nearApogee)
	if out.State != Locked {
		t.Fatalf("state=%v want Locked to remain absorbing", out.State)
	}
}

// TestScenario_TiltAbortDuringBoost mirrors S2: a sustained tilt excursion
// during Boost must latch the abort and jump straight to ABORT_LOCKOUT,
// with cmd_deg staying 0 for the rest of the run.
func TestScenario_TiltAbortDuringBoost(t *testing.T) {
	cfg := BenchConfig()
	ctx := NewContext(cfg)
	var now uint32

	runTicks(ctx, &now, 30, baselineFrame())

	boosting := baselineFrame()
	boosting.azImuA = 5.0
	out := runTicks(ctx, &now, 5, boosting)
	if out.State != Boost {
		t.Fatalf("setup: state=%v want Boost", out.State)
	}

	tilted := boosting
	tilted.tiltDeg = 80.0 // above BenchConfig's 75 degree threshold
	out = runTicks(ctx, &now, 20, tilted)
	if out.State != AbortLockout {
		t.Fatalf("state=%v want AbortLockout after sustained tilt excursion", out.State)
	}
	if out.Flags&FlagTiltLatch == 0 {
		t.Fatalf("expected FlagTiltLatch set")
	}
	if out.AirbrakeCmdDeg != 0 {
		t.Fatalf("AirbrakeCmdDeg=%v want 0 on abort", out.AirbrakeCmdDeg)
	}

	// Absorbing: even a return to a safe tilt can't undo the latch.
	out = runTicks(ctx, &now, 10, boosting)
	if out.State != AbortLockout || out.AirbrakeCmdDeg != 0 {
		t.Fatalf("state=%v cmd=%v want AbortLockout/0 to remain absorbing", out.State, out.AirbrakeCmdDeg)
	}
}

// TestScenario_LowTrajectoryNeverDeploys mirrors S3: a weak boost leaves the
// projected apogee below the high-margin threshold, so Window is reached but
// Deployed never is. Per §4.3's transition table, the only paths out of
// Window are Deployed (blocked here) or a tilt abort (never asserted here);
// there is no separate Window-level timeout, so the FSM is expected to hold
// in Window rather than self-retract.
func TestScenario_LowTrajectoryNeverDeploys(t *testing.T) {
	cfg := BenchConfig()
	ctx := NewContext(cfg)
	var now uint32

	runTicks(ctx, &now, 30, baselineFrame())

	boosting := baselineFrame()
	boosting.azImuA = 5.0
	runTicks(ctx, &now, 5, boosting)
	coasting := baselineFrame()
	runTicks(ctx, &now, 12, coasting)
	out := runTicks(ctx, &now, 40, coasting)
	if out.State != Window {
		t.Fatalf("state=%v want Window", out.State)
	}

	lowApogee := baselineFrame()
	lowApogee.aglFused = 50.0
	lowApogee.apogeeAGL = 0.10 // below TargetApogeeAGLM(0.25)+ApogeeHighMarginM(0.05)
	lowApogee.tApogeeS = 2.0
	out = runTicks(ctx, &now, 300, lowApogee)
	if out.State != Window {
		t.Fatalf("state=%v want Window to never reach Deployed on a low trajectory", out.State)
	}
	if out.AirbrakeCmdDeg != 0 {
		t.Fatalf("AirbrakeCmdDeg=%v want 0, no deploy on a low trajectory", out.AirbrakeCmdDeg)
	}
}

// TestScenario_BaroLossMidBoostBlocksDeploy mirrors S4: losing the
// barometer clears FCF_SENS_BMP1_OK after the invalid dwell, which blocks
// the Window->Deployed gate until the sensor recovers for the full recovery
// dwell.
func TestScenario_BaroLossMidBoostBlocksDeploy(t *testing.T) {
	cfg := BenchConfig()
	ctx := NewContext(cfg)
	var now uint32

	runTicks(ctx, &now, 30, baselineFrame())

	boosting := baselineFrame()
	boosting.azImuA = 5.0
	runTicks(ctx, &now, 5, boosting)

	baroLost := boosting
	baroLost.baroValid = false
	out := runTicks(ctx, &now, 8, baroLost) // SensorInvalidDwell = 80ms bench
	if out.Flags&FlagSensBaroOK != 0 {
		t.Fatalf("expected FlagSensBaroOK cleared after the invalid dwell")
	}

	coastingNoBaro := baselineFrame()
	coastingNoBaro.baroValid = false
	runTicks(ctx, &now, 12, coastingNoBaro)
	out = runTicks(ctx, &now, 40, coastingNoBaro)
	if out.State != Window {
		t.Fatalf("state=%v want Window", out.State)
	}

	readyToDeploy := coastingNoBaro
	readyToDeploy.aglFused = 50.0
	readyToDeploy.apogeeAGL = 1.0
	readyToDeploy.tApogeeS = 2.0
	out = runTicks(ctx, &now, 20, readyToDeploy)
	if out.State == Deployed {
		t.Fatalf("state=Deployed, want deploy blocked while the barometer is invalid")
	}

	recovering := readyToDeploy
	recovering.baroValid = true
	out = runTicks(ctx, &now, 20, recovering) // SensorRecoveryDwell = 200ms bench
	if out.Flags&FlagSensBaroOK == 0 {
		t.Fatalf("expected FlagSensBaroOK to recover after the recovery dwell")
	}
	out = runTicks(ctx, &now, 1, recovering)
	if out.State != Deployed {
		t.Fatalf("state=%v want Deployed once the barometer recovers and gates clear", out.State)
	}
}

// TestScenario_SoftResetMidFlight mirrors S5: a soft reset mid-mission
// returns the controller to Preflight with every latch, accumulator and
// one-shot cleared, and re-running the warm-up from scratch latches the
// gates again exactly as it did the first time.
func TestScenario_SoftResetMidFlight(t *testing.T) {
	cfg := BenchConfig()
	ctx := NewContext(cfg)
	var now uint32

	runTicks(ctx, &now, 30, baselineFrame())
	boosting := baselineFrame()
	boosting.azImuA = 5.0
	out := runTicks(ctx, &now, 5, boosting)
	if out.State != Boost {
		t.Fatalf("setup: state=%v want Boost", out.State)
	}

	ctx.SoftReset()
	if ctx.State() != Preflight {
		t.Fatalf("State()=%v want Preflight immediately after SoftReset", ctx.State())
	}

	out = Step(ctx, Inputs{DtMs: 10, NowMs: now + 10})
	if out.Flags&(FlagLiftoffDet|FlagBurnoutDet|FlagTiltLatch) != 0 {
		t.Fatalf("Flags=%v want every latch cleared right after reset", out.Flags)
	}
	if out.AirbrakeCmdDeg != 0 || out.TSinceLaunchS != 0 {
		t.Fatalf("cmd=%v tSinceLaunch=%v want both 0 right after reset", out.AirbrakeCmdDeg, out.TSinceLaunchS)
	}

	// Re-arm from scratch: the same warm-up-then-boost sequence latches
	// liftoff again, proving no residual state survived the reset.
	now += 10
	runTicks(ctx, &now, 30, baselineFrame())
	out = runTicks(ctx, &now, 5, boosting)
	if out.State != Boost {
		t.Fatalf("after re-arming post-reset: state=%v want Boost", out.State)
	}
}
