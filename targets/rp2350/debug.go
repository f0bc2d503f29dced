//go:build rp2350

package main

import (
	"fmt"

	"machine"
)

// UARTLogger implements engine.Logger over UART1 (GPIO36 TX / GPIO37 RX,
// 115200 baud), so the motion core's warnings and errors are observable
// with a bench logic analyzer or USB-serial adapter even while the USB CDC
// port is busy carrying the command/telemetry protocol.
type UARTLogger struct {
	uart    *machine.UART
	enabled bool
}

// NewUARTLogger configures UART1 and returns a ready Logger. If
// configuration fails, the returned Logger silently discards everything.
func NewUARTLogger() *UARTLogger {
	l := &UARTLogger{uart: machine.UART1}
	err := l.uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO36,
		RX:       machine.GPIO37,
	})
	l.enabled = err == nil
	if l.enabled {
		l.writeln("=== motion core debug UART ===")
	}
	return l
}

func (l *UARTLogger) writeln(s string) {
	if !l.enabled {
		return
	}
	l.uart.Write([]byte(s))
	l.uart.Write([]byte("\r\n"))
}

func (l *UARTLogger) Debugf(format string, args ...any) { l.writeln("DEBUG: " + fmt.Sprintf(format, args...)) }
func (l *UARTLogger) Infof(format string, args ...any)  { l.writeln("INFO: " + fmt.Sprintf(format, args...)) }
func (l *UARTLogger) Warnf(format string, args ...any)  { l.writeln("WARN: " + fmt.Sprintf(format, args...)) }
func (l *UARTLogger) Errorf(format string, args ...any) { l.writeln("ERROR: " + fmt.Sprintf(format, args...)) }
