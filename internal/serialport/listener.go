package serialport

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

const readChunk = 4096

// Listener drains a port on its own goroutine into a Mailbox
type Listener struct {
	port    Port
	mailbox *Mailbox
	log     *logrus.Entry

	running *atomic.Bool
	pace    *atomic.Duration
	err     *atomic.Error
	wg      conc.WaitGroup
}

// NewListener prepares a listener for port; Start launches it
func NewListener(port Port, mailbox *Mailbox, log *logrus.Entry) *Listener {
	return &Listener{
		port:    port,
		mailbox: mailbox,
		log:     log,
		running: atomic.NewBool(false),
		pace:    atomic.NewDuration(0),
		err:     atomic.NewError(nil),
	}
}

// SetPace sets the pause between reads
func (l *Listener) SetPace(d time.Duration) {
	l.pace.Store(d)
}

// Running reports whether the read loop is active
func (l *Listener) Running() bool {
	return l.running.Load()
}

// Err returns the error that ended the read loop, if any
func (l *Listener) Err() error {
	return l.err.Load()
}

// Start launches the read loop
func (l *Listener) Start() {
	if !l.running.CAS(false, true) {
		return
	}
	l.wg.Go(l.loop)
}

func (l *Listener) loop() {
	buf := make([]byte, readChunk)
	for l.running.Load() {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.mailbox.Put(buf[:n])
		}
		if err != nil {
			if l.running.Load() && !errors.Is(err, io.EOF) {
				l.log.WithError(err).Warn("serial read failed, listener stopping")
				l.err.Store(err)
			}
			l.running.Store(false)
			return
		}
		if d := l.pace.Load(); d > 0 {
			time.Sleep(d)
		} else if n == 0 {
			// Read timed out with nothing pending.
			time.Sleep(time.Millisecond)
		}
	}
}

// Stop clears the running flag, closes the port so a pending Read returns,
// and waits for the loop to exit.
func (l *Listener) Stop() error {
	l.running.Store(false)
	err := l.port.Close()
	l.wg.Wait()
	return err
}
