// Package serialport wraps the sensor's serial link: port discovery,
// opening at the protocol baud rate, and a background listener that hands
// raw bytes to the tick loop through a single-slot mailbox.
package serialport

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ErrNoPorts is returned when the system reports no serial ports at all
var ErrNoPorts = errors.New("no serial ports available")

// PortUnavailableError reports that the requested device could not be
// found or opened. Live mode keeps polling while it persists.
type PortUnavailableError struct {
	Port string
	Err  error
}

func (e *PortUnavailableError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("serial port unavailable: %v", e.Err)
	}
	return fmt.Sprintf("serial port %s unavailable: %v", e.Port, e.Err)
}

func (e *PortUnavailableError) Unwrap() error { return e.Err }

// Port is an open serial device
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener discovers and opens serial devices
type Opener interface {
	ListAvailable() ([]string, error)
	Open(id string, baud int) (Port, error)
}

// SystemOpener opens real devices through go.bug.st/serial
type SystemOpener struct {
	ReadTimeout time.Duration // per-read timeout; keeps Read non-blocking
}

// NewSystemOpener returns an opener with a short read timeout
func NewSystemOpener() *SystemOpener {
	return &SystemOpener{ReadTimeout: 20 * time.Millisecond}
}

// ListAvailable returns the port names reported by the OS
func (o *SystemOpener) ListAvailable() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens a port at 8N1 with the given baud rate
func (o *SystemOpener) Open(id string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(id, mode)
	if err != nil {
		return nil, &PortUnavailableError{Port: id, Err: err}
	}
	if o.ReadTimeout > 0 {
		if err := port.SetReadTimeout(o.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", id, err)
		}
	}
	return port, nil
}

// Resolve picks the port to open. An empty id selects the last port the
// system lists; a named id must be present in the list.
func Resolve(o Opener, id string) (string, error) {
	ports, err := o.ListAvailable()
	if err != nil {
		return "", &PortUnavailableError{Port: id, Err: err}
	}
	if len(ports) == 0 {
		return "", &PortUnavailableError{Port: id, Err: ErrNoPorts}
	}
	if id == "" {
		return ports[len(ports)-1], nil
	}
	for _, p := range ports {
		if p == id {
			return id, nil
		}
	}
	return "", &PortUnavailableError{Port: id, Err: fmt.Errorf("not in %v", ports)}
}
