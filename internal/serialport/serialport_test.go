package serialport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type chanPort struct {
	data   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newChanPort() *chanPort {
	return &chanPort{data: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *chanPort) Read(b []byte) (int, error) {
	select {
	case d := <-p.data:
		return copy(b, d), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *chanPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *chanPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type listOpener struct {
	ports []string
	err   error
}

func (o listOpener) ListAvailable() ([]string, error) { return o.ports, o.err }
func (o listOpener) Open(id string, baud int) (Port, error) {
	return newChanPort(), nil
}

func TestMailboxSwap(t *testing.T) {
	m := NewMailbox(0)
	m.Put([]byte("1;2"))
	m.Put([]byte(";3\r\n"))
	if got := string(m.Take()); got != "1;2;3\r\n" {
		t.Errorf("Take = %q", got)
	}
	if got := m.Take(); got != nil {
		t.Errorf("second Take = %q, want nil", got)
	}
}

func TestMailboxDropsOldest(t *testing.T) {
	m := NewMailbox(4)
	m.Put([]byte("abc"))
	m.Put([]byte("def"))
	if got := string(m.Take()); got != "cdef" {
		t.Errorf("Take = %q, want cdef", got)
	}
	if m.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", m.Dropped())
	}
}

func TestResolve(t *testing.T) {
	o := listOpener{ports: []string{"/dev/ttyS0", "/dev/ttyUSB0"}}

	got, err := Resolve(o, "")
	if err != nil || got != "/dev/ttyUSB0" {
		t.Errorf("Resolve auto = %q, %v; want last port", got, err)
	}
	if got, err := Resolve(o, "/dev/ttyS0"); err != nil || got != "/dev/ttyS0" {
		t.Errorf("Resolve named = %q, %v", got, err)
	}

	var unavailable *PortUnavailableError
	if _, err := Resolve(o, "/dev/ttyACM0"); !errors.As(err, &unavailable) {
		t.Errorf("missing port error = %v, want PortUnavailableError", err)
	}
	if _, err := Resolve(listOpener{}, ""); !errors.Is(err, ErrNoPorts) {
		t.Errorf("empty list error = %v, want ErrNoPorts", err)
	}
}

func TestListenerDeliversBytes(t *testing.T) {
	port := newChanPort()
	mb := NewMailbox(0)
	l := NewListener(port, mb, logrus.NewEntry(logrus.New()))
	l.Start()

	port.data <- []byte("100;100;")
	port.data <- []byte("100\r\n")

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !bytes.HasSuffix(got, []byte("\r\n")) {
		got = append(got, mb.Take()...)
		time.Sleep(5 * time.Millisecond)
	}
	if string(got) != "100;100;100\r\n" {
		t.Errorf("received %q", got)
	}

	if err := l.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if l.Running() {
		t.Error("listener still running after Stop")
	}
	if l.Err() != nil {
		t.Errorf("Err after clean stop = %v", l.Err())
	}
}
