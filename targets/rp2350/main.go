//go:build rp2350

// Command rp2350 is the firmware entry point for the RP2350 target: it
// wires the motor driver, limit contacts, and every movement controller
// into an engine.Supervisor, then runs the main loop — read whatever
// command lines arrived over USB, dispatch them, step the active
// movement, and emit status on request.
package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"motionctl/calibration"
	"motionctl/chaos"
	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/oscillation"
	"motionctl/pursuit"
	"motionctl/sensors"
	"motionctl/sequence"
	pio "motionctl/targets/pio"
	"motionctl/vaet"
)

// Pin assignment for the bench harness. STEP/DIR/ENABLE drive the motor
// driver board; the two contacts are normally-closed switches wired to
// pulled-up inputs, so ReadPin reports true (inactive) until struck.
const (
	pinStep   core.GPIOPin = 2
	pinDir    core.GPIOPin = 3
	pinEnable core.GPIOPin = 4
	pinStart  core.GPIOPin = 6
	pinEnd    core.GPIOPin = 7
	statusLED core.GPIOPin = 25
	rngSeed   int64        = 0x5eed5eed
)

func main() {
	gpio := NewRPGPIODriver()
	clock := NewRP2350Clock()
	logger := NewUARTLogger()
	rng := core.NewMathRandSource(rngSeed)

	gpio.ConfigureOutput(statusLED)
	gpio.SetPin(statusLED, true)

	InitUSB()

	driver := motor.NewDriver(gpio, pinStep, pinDir, pinEnable, motor.DefaultTiming())
	driver.Init()
	pulseGen := pio.NewStepperBackend(0, 0)
	if err := pulseGen.Init(uint8(pinStep), uint8(pinDir)); err == nil {
		driver.SetBackend(pulseGen)
		logger.Infof("motion core: PIO step generator online")
	} else {
		logger.Warnf("motion core: PIO init failed, falling back to bit-banged steps")
	}
	contacts := sensors.NewContacts(gpio, pinStart, pinEnd)
	contacts.Init()

	cfg := engine.DefaultConfig()
	pos := &engine.PositionState{}
	stats := &engine.StatsTracking{}

	calib := calibration.New(driver, contacts, clock, &cfg, pos, logger)
	vaetCtrl := vaet.New(driver, contacts, clock, rng, &cfg, pos, stats, calib, logger)
	oscCtrl := oscillation.New(driver, contacts, clock, rng, &cfg, pos, stats, logger)
	chaosCtrl := chaos.New(driver, contacts, clock, rng, &cfg, pos, stats, logger)
	pursuitCtrl := pursuit.New(driver, contacts, clock, &cfg, pos, stats, logger)
	seq := sequence.New(driver, clock, &cfg, pos, vaetCtrl, oscCtrl, chaosCtrl)

	sup := engine.NewSupervisor(&cfg, pos, stats, logger)
	sup.RegisterController(engine.MovementVAET, vaetCtrl)
	sup.RegisterController(engine.MovementOscillation, oscCtrl)
	sup.RegisterController(engine.MovementChaos, chaosCtrl)
	sup.RegisterController(engine.MovementPursuit, pursuitCtrl)
	sup.RegisterController(engine.MovementCalibration, calib)
	sup.RegisterSnapshotProvider(engine.MovementOscillation, func() any { return oscCtrl.Summary() })
	sup.RegisterSnapshotProvider(engine.MovementChaos, func() any { return chaosCtrl.Summary() })

	registerHandlers(sup, calib, vaetCtrl, oscCtrl, chaosCtrl, pursuitCtrl, seq)

	sched := core.NewScheduler(clock)
	scheduleHeartbeat(sched, clock, gpio)

	logger.Infof("motion core up, awaiting commands")
	gpio.SetPin(statusLED, false)

	console := bufio.NewScanner(usbReader{})
	for console.Scan() {
		line := strings.TrimSpace(console.Text())
		if line == "" {
			continue
		}
		handleLine(sup, line)
		seq.Process()
		sup.Dispatch()
		sched.Dispatch()
	}
}

const heartbeatPeriodMicros = 1_000_000

// scheduleHeartbeat blinks the status LED once a second so a bench
// operator can tell the firmware is still alive without a serial console
// attached — the one piece of periodic, off-the-step-path maintenance
// work this firmware needs, so it runs on core.Scheduler rather than
// being special-cased into the main loop.
func scheduleHeartbeat(sched *core.Scheduler, clock core.Clock, gpio *RPGPIODriver) {
	lit := false
	var t *core.Timer
	t = &core.Timer{
		WakeTime: clock.MicroNow() + heartbeatPeriodMicros,
		Handler: func(timer *core.Timer) uint8 {
			lit = !lit
			gpio.SetPin(statusLED, lit)
			timer.WakeTime = clock.MicroNow() + heartbeatPeriodMicros
			return core.SF_RESCHEDULE
		},
	}
	sched.Schedule(t)
}

// usbReader adapts USBRead's byte-at-a-time interface to io.Reader so
// bufio.Scanner can split incoming command lines.
type usbReader struct{}

func (usbReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := USBRead()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		p[n] = b
		n++
		if b == '\n' {
			return n, nil
		}
	}
	return n, nil
}

// registerHandlers wires every engine.CommandTag the host surface can send
// to the controller method it actually drives. Everything arrives as
// key=value tokens already parsed into the Command payload by handleLine.
func registerHandlers(sup *engine.Supervisor, calib *calibration.Manager, vaetCtrl *vaet.Controller,
	oscCtrl *oscillation.Controller, chaosCtrl *chaos.Controller, pursuitCtrl *pursuit.Controller,
	seq *sequence.Executor) {

	sup.RegisterHandler(engine.CmdCalibrate, func(engine.Command) error {
		return calib.StartCalibration()
	})
	sup.RegisterHandler(engine.CmdReturnToStart, func(engine.Command) error {
		return calib.ReturnToStart()
	})
	sup.RegisterHandler(engine.CmdStart, func(cmd engine.Command) error {
		args, _ := cmd.Payload.(map[string]float64)
		return vaetCtrl.Start(args["dist"], args["speed"])
	})
	sup.RegisterHandler(engine.CmdSetOscillation, func(cmd engine.Command) error {
		args, _ := cmd.Payload.(map[string]float64)
		cfg := oscillation.Config{
			Waveform:    motionmath.OscSine,
			FrequencyHz: args["freq"],
			CenterMM:    args["center"],
			AmplitudeMM: args["amp"],
		}
		return oscCtrl.SetConfig(cfg)
	})
	sup.RegisterHandler(engine.CmdStartOscillation, func(engine.Command) error {
		return oscCtrl.Start()
	})
	sup.RegisterHandler(engine.CmdSetChaos, func(cmd engine.Command) error {
		args, _ := cmd.Payload.(map[string]float64)
		chaosCtrl.SetConfig(chaos.Config{
			CrazinessPercent: args["craziness"],
			CenterMM:         args["center"],
			AmplitudeMM:      args["amp"],
		})
		return nil
	})
	sup.RegisterHandler(engine.CmdStartChaos, func(engine.Command) error {
		return chaosCtrl.Start()
	})
	sup.RegisterHandler(engine.CmdPursuitMove, func(cmd engine.Command) error {
		args, _ := cmd.Payload.(map[string]float64)
		pursuitCtrl.SetTarget(args["target"], args["speed"])
		return nil
	})
	sup.RegisterHandler(engine.CmdSeqStart, func(engine.Command) error {
		return seq.Start()
	})
}

// handleLine parses and dispatches one command line. Malformed lines are
// ignored — the host surface that ultimately decodes wire bytes into these
// lines is outside this core (spec §6).
func handleLine(sup *engine.Supervisor, line string) {
	fields := strings.Fields(line)
	name := fields[0]

	if name == "GET_STATUS" {
		printSnapshot(sup.Snapshot())
		return
	}

	args := make(map[string]float64, len(fields)-1)
	for _, tok := range fields[1:] {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			continue
		}
		args[kv[0]] = v
	}

	tag, ok := lookupTag(name)
	if !ok {
		return
	}
	if err := sup.HandleCommand(engine.Command{Tag: tag, Payload: args}); err != nil {
		writeUSBLine(fmt.Sprintf("ERR %v", err))
	}
}

// writeUSBLine sends one newline-terminated response line back over USB,
// the same channel command lines arrive on.
func writeUSBLine(s string) {
	USBWriteBytes([]byte(s + "\n"))
}

func lookupTag(name string) (engine.CommandTag, bool) {
	for t := engine.CmdSyncTime; t <= engine.CmdCalibrate; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func printSnapshot(s engine.Snapshot) {
	writeUSBLine(fmt.Sprintf("STATUS state=%s movement=%s pos=%.2f max=%.2f total=%.2f",
		s.SystemState, s.MovementType, s.CurrentPositionMM, s.EffectiveMaxDistanceMM, s.TotalDistanceMM))
}
