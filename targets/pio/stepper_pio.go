//go:build rp2350

// Package pio implements motor.Backend over a PIO state machine, so step
// pulses are generated by dedicated silicon instead of the Go runtime —
// the RP2350's PIO block keeps pulse timing jitter-free regardless of
// what the motion core is doing on either CPU core.
package pio

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildStepperProgram assembles the PIO program that drives one step pulse
// per FIFO word pulled from the Go side:
//
//	Bits 0-15:  pulse count minus one (always 0 — Driver.Step() calls once per step)
//	Bits 16-23: inter-pulse delay cycles
//	Bit 24:     direction (0=forward, 1=reverse)
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4
		// .wrap
	}
}

const stepperPIOOrigin = 0

// StepperBackend implements motor.Backend (Step/SetDirection) using one
// PIO state machine. It drives STEP and DIR directly; ENABLE is left to
// the caller's GPIODriver since the PIO program doesn't need it.
type StepperBackend struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	stepPin machine.Pin
	dirPin  machine.Pin
	dir     bool
}

// NewStepperBackend creates a PIO-backed step generator. pioNum selects
// PIO0 or PIO1; smNum selects one of that block's four state machines.
func NewStepperBackend(pioNum, smNum uint8) *StepperBackend {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &StepperBackend{pio: pioHW, sm: pioHW.StateMachine(smNum)}
}

// Init claims the state machine, loads the program, and configures the
// STEP/DIR pins for PIO control. Call it after motor.Driver.Init, which
// configures those pins as plain GPIO outputs and would otherwise take them
// back from the PIO block.
func (b *StepperBackend) Init(stepPin, dirPin uint8) error {
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)

	b.sm.TryClaim()

	program := buildStepperProgram()
	offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
	if err != nil {
		return err
	}

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1000, 0)

	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, false)
	b.sm.SetEnabled(true)
	return nil
}

// Step queues a single pulse at the current direction.
func (b *StepperBackend) Step() {
	cmd := uint32(0) | (1 << 16)
	if b.dir {
		cmd |= 1 << 24
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// SetDirection latches the direction bit used by the next Step.
func (b *StepperBackend) SetDirection(forward bool) { b.dir = !forward }

// Stop disables and restarts the state machine, clearing any queued pulse
// still sitting in the FIFO.
func (b *StepperBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}
