// Command airbrakectl runs the airbrake flight-controller core: sensor
// acquisition, fusion, the mission FSM, the servo controller, telemetry
// aggregation, and the serial monitoring link, wired together from one YAML
// config file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"airbrakefc/internal/config"
	"airbrakefc/internal/fc"
	"airbrakefc/internal/fusion"
	"airbrakefc/internal/i2c"
	"airbrakefc/internal/monitor"
	"airbrakefc/internal/period"
	"airbrakefc/internal/sensors"
	"airbrakefc/internal/sensors/baro"
	"airbrakefc/internal/sensors/bmp280"
	"airbrakefc/internal/sensors/fake"
	"airbrakefc/internal/sensors/icm20948"
	"airbrakefc/internal/sensors/imub"
	"airbrakefc/internal/servo"
	"airbrakefc/internal/servo/gpiorelay"
	"airbrakefc/internal/servo/pwmsysfs"
	"airbrakefc/internal/telemetry"
)

func main() {
	var configPath string
	var i2cPath string
	var skipBootSweep bool
	flag.StringVar(&configPath, "config", "./airbrake.yaml", "Path to YAML config")
	flag.StringVar(&i2cPath, "i2c-bus", "/dev/i2c-1", "I2C bus device for the barometer and IMU-B")
	flag.BoolVar(&skipBootSweep, "skip-boot-sweep", false, "Skip the actuator boot sweep on startup")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("airbrakefc starting (profile=%s)", cfg.Profile)

	baroProd, imuBProd := openSensors(i2cPath)
	// IMU-A (the quaternion-attitude module) has no bring-up driver available
	// for this build; attitude is fed from a settable fake producer until a
	// real USFSMAX driver lands.
	imuAProd := &fake.ImuA{}
	imuAProd.Set(sensors.ImuA{QuatWXYZ: [4]float32{1, 0, 0, 0}, Valid: true})

	engine := fusion.NewEngine(cfg.FusionConfig())
	fcCtx := fc.NewContext(cfg.FCConfig())
	agg := telemetry.New(cfg.Telemetry.EnableCRC, telemetry.SinkConfig{
		Enable:     cfg.Telemetry.SinkEnable,
		BufferSize: cfg.Telemetry.SinkBuffer,
	})

	backend, relay := openServoHardware(cfg.Servo)
	svc := servo.New(cfg.ServoConfig(), backend, relay)
	if !skipBootSweep {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := svc.BootSweep(sweepCtx); err != nil {
			log.Printf("boot sweep failed: %v", err)
		}
		sweepCancel()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runCore(ctx, cfg, engine, fcCtx, agg, svc, baroProd, imuAProd, imuBProd)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runMonitor(ctx, cfg, engine, fcCtx, agg, svc)
	}()

	<-ctx.Done()
	log.Printf("airbrakefc stopping")
	wg.Wait()
	_ = svc.Close()
}

// runCore drives fusion, the FSM, telemetry aggregation and the servo
// controller at the telemetry period, the tightest cadence in the system.
func runCore(ctx context.Context, cfg config.Config, engine *fusion.Engine, fcCtx *fc.Context,
	agg *telemetry.Aggregator, svc *servo.Controller,
	baroProd sensors.BaroProducer, imuAProd sensors.ImuAProducer, imuBProd sensors.ImuBProducer) {

	pacer := period.NewPacer(cfg.Telemetry.Period, time.Now())
	start := time.Now()
	var lastDt uint32 = uint32(cfg.Telemetry.Period / time.Millisecond)

	for {
		if err := pacer.Next(ctx); err != nil {
			return
		}
		now := time.Now()

		b, _ := baroProd.Latest()
		ia, _ := imuAProd.Latest()
		ib, _ := imuBProd.Latest()

		fused := engine.Tick(now, b, ia)

		in := fc.Inputs{
			DtMs:          lastDt,
			NowMs:         uint32(now.Sub(start).Milliseconds()),
			TiltDeg:       fused.Tilt,
			AGLFusedM:     fused.AGLFused,
			VzFusedMps:    fused.VzFused,
			VzMps:         fused.VzBaro,
			AzImuAMps2:    fused.AzEarth,
			TApogeeS:      fused.TToApogeeS,
			ApogeeAGLM:    fused.ApogeeAGLM,
			AGLReady:      fused.AGLReady,
			BaroAltitudeM: fused.BmpAltM,
			ImuAltitudeM:  fused.ImuAltM,
			ImuAValid:     ia.Valid,
			BaroValid:     b.Valid,
			ImuBValid:     ib.Valid,
		}
		out := fc.Step(fcCtx, in)

		rec := agg.Tick(now, b, ia, ib, out, fused, 0, [3]uint16{})
		svc.Tick(now, rec)
	}
}

func runMonitor(ctx context.Context, cfg config.Config, engine *fusion.Engine, fcCtx *fc.Context,
	agg *telemetry.Aggregator, svc *servo.Controller) {

	go func() {
		_ = monitor.Run(os.Stdin, os.Stdout, monitor.CommandHandler{FusionReset: engine, FCReset: fcCtx}, nil)
	}()

	pacer := period.NewPacer(cfg.Monitor.Period, time.Now())
	start := time.Now()
	for {
		if err := pacer.Next(ctx); err != nil {
			return
		}
		rec := agg.Latest()
		pos := svc.Snapshot()
		tsMs := uint32(time.Since(start).Milliseconds())

		var line string
		switch cfg.Monitor.Mode {
		case "human":
			line = monitor.FormatHuman(tsMs, rec, cfg.Monitor.IncludeTS)
		default:
			sc := cfg.ServoConfig()
			line = monitor.FormatVisualizer(tsMs, rec, pos.Open, pos.PulseUS, sc.MinPulseUS, sc.MaxPulseUS, cfg.Monitor.IncludeTS)
		}
		os.Stdout.WriteString(line + "\n")
	}
}

// openSensors wires the barometer and IMU-B adapter packages onto the
// configured I2C bus. On failure it logs and falls back to a never-valid
// fake producer for that sensor so the core still runs, with that sensor's
// debounced gate permanently failing closed, instead of refusing to start.
func openSensors(i2cPath string) (sensors.BaroProducer, sensors.ImuBProducer) {
	var baroProd sensors.BaroProducer = &fake.Baro{}
	var imuBProd sensors.ImuBProducer = &fake.ImuB{}

	bus, err := i2c.Open(i2cPath)
	if err != nil {
		log.Printf("i2c open %s failed: %v (barometer and IMU-B will report invalid)", i2cPath, err)
		return baroProd, imuBProd
	}

	if dev, err := bmp280.New(bus.Dev(bmp280.DefaultAddress())); err != nil {
		log.Printf("bmp280 init failed: %v (barometer will report invalid)", err)
	} else {
		p := baro.New(baro.DefaultConfig(), dev)
		go p.Run(context.Background())
		baroProd = p
	}

	if dev, err := icm20948.New(bus.Dev(icm20948.DefaultAddress())); err != nil {
		log.Printf("icm20948 init failed: %v (IMU-B will report invalid)", err)
	} else {
		p := imub.New(imub.DefaultConfig(), dev)
		go p.Run(context.Background())
		imuBProd = p
	}

	return baroProd, imuBProd
}

// openServoHardware opens the actuator and abort-relay backends named by
// cfg, or NullBackend stand-ins in "stub" mode for desk-mode runs with no
// hardware attached.
func openServoHardware(cfg config.ServoConfig) (servo.Backend, servo.AbortSink) {
	if cfg.Backend != "pwmsysfs" {
		n := &servo.NullBackend{}
		return n, n
	}

	drv, err := pwmsysfs.Open(cfg.PWMFreqHz)
	if err != nil {
		log.Printf("pwmsysfs open failed: %v (falling back to null backend)", err)
		n := &servo.NullBackend{}
		return n, n
	}

	var relay servo.AbortSink = &servo.NullBackend{}
	if cfg.AbortRelayEnable {
		r, err := gpiorelay.Open(cfg.AbortRelayChip, cfg.AbortRelayPin)
		if err != nil {
			log.Printf("gpiorelay open failed: %v (abort relay disabled)", err)
		} else {
			relay = r
		}
	}
	return drv, relay
}
