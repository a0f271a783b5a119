package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealPortFactory opens hardware ports through go.bug.st/serial.
var RealPortFactory SerialPortFactory = SerialPortOpener(func(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
})

// NewRealSerialMux opens the port at path and returns a mux answering
// counter commands through handler.
func NewRealSerialMux(path string, opts PortOptions, handler *CommandHandler) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(RealPortFactory, path, opts, handler)
}

// OpenSerialMux opens a port with factory and wraps it in a SerialMux.
func OpenSerialMux(factory SerialPortFactory, path string, opts PortOptions, handler *CommandHandler) (*SerialMux[SerialPorter], error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port, handler), nil
}
