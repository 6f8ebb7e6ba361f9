// Package session runs scan sessions: one host-stack source at a time feeds
// an event queue, and a single owner goroutine decodes events into the
// device table and serves table queries.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"blescan/internal/bluetooth"
	"blescan/internal/devices"
	"blescan/internal/logging"
)

var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("scan session already active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

const DefaultQueueSize = 1024

// Source is either a bluetooth.CallbackSource or a bluetooth.PullSource.
type Source interface {
	Name() string
}

// Observer is notified on the owner goroutine after every upsert. It must
// not block for long; the queue backs up behind it.
type Observer interface {
	OnRecord(rec devices.Record, inserted bool)
}

type ObserverFunc func(rec devices.Record, inserted bool)

func (f ObserverFunc) OnRecord(rec devices.Record, inserted bool) { f(rec, inserted) }

type Options struct {
	Decoder   *bluetooth.Decoder
	QueueSize int
	Observer  Observer
	// Probe supplies diagnostics for startup and session errors.
	Probe func() string
}

// Manager owns the device table. The table is only touched by the owner
// goroutine started in New; everything else talks to it through channels.
type Manager struct {
	decoder   *bluetooth.Decoder
	queueSize int
	observer  Observer
	probe     func() string

	table    *devices.Table
	attach   chan *run
	requests chan func(*devices.Table)
	errs     chan error
	closed   chan struct{}
	loopDone chan struct{}

	mu        sync.Mutex
	active    *run
	last      *run
	closeOnce sync.Once
}

// run is one scan session.
type run struct {
	source string
	queue  chan bluetooth.RawEvent

	stopOnce sync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc

	sendMu      sync.RWMutex
	queueClosed bool

	drained chan struct{}
	done    chan struct{}
	err     error
}

// emit enqueues ev unless the session is stopping. It is safe to call from
// any goroutine, including after the queue has been closed.
func (r *run) emit(ev bluetooth.RawEvent) bool {
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.queueClosed {
		return false
	}
	// Once stopped, never enqueue.
	select {
	case <-r.stopCh:
		return false
	default:
	}
	select {
	case r.queue <- ev:
		return true
	case <-r.stopCh:
		return false
	}
}

// closeQueue must follow signalStop so that blocked emitters release sendMu.
func (r *run) closeQueue() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if !r.queueClosed {
		r.queueClosed = true
		close(r.queue)
	}
}

func New(opts Options) *Manager {
	if opts.Decoder == nil {
		opts.Decoder = bluetooth.NewDecoder(nil, bluetooth.WithProbe(opts.Probe))
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	m := &Manager{
		decoder:   opts.Decoder,
		queueSize: opts.QueueSize,
		observer:  opts.Observer,
		probe:     opts.Probe,
		table:     devices.NewTable(),
		attach:    make(chan *run),
		requests:  make(chan func(*devices.Table)),
		errs:      make(chan error, 64),
		closed:    make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	var cur *run
	var queue <-chan bluetooth.RawEvent
	for {
		select {
		case r := <-m.attach:
			cur, queue = r, r.queue
		case ev, ok := <-queue:
			if !ok {
				close(cur.drained)
				cur, queue = nil, nil
				continue
			}
			m.handle(ev)
		case req := <-m.requests:
			req(m.table)
		case <-m.closed:
			return
		}
	}
}

func (m *Manager) handle(ev bluetooth.RawEvent) {
	if len(ev.AdvBytes) > 0 {
		logging.LogRawBytes(ev.Address, ev.AdvBytes)
	}
	rec, err := m.decoder.Decode(ev)
	if err != nil {
		logging.Warn("dropping advertisement", zap.String("address", ev.Address), zap.Error(err))
		m.publish(err)
		return
	}
	inserted := m.table.Upsert(rec)
	if m.observer != nil {
		m.observer.OnRecord(rec.Clone(), inserted)
	}
}

// Errors delivers decode errors and terminal session errors. Errors that do
// not fit in the buffer are still logged.
func (m *Manager) Errors() <-chan error {
	return m.errs
}

func (m *Manager) publish(err error) {
	select {
	case m.errs <- err:
	default:
		logging.Error("error channel full", zap.Error(err))
	}
}

// Start begins a session on src. A synchronous startup failure is returned
// and leaves the manager idle. Failures reported later by the source end
// the session; Wait returns them.
func (m *Manager) Start(ctx context.Context, src Source) error {
	switch src.(type) {
	case bluetooth.CallbackSource, bluetooth.PullSource:
	default:
		return fmt.Errorf("unsupported source type %T", src)
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return ErrSessionActive
	}
	select {
	case <-m.closed:
		m.mu.Unlock()
		return ErrClosed
	default:
	}
	r := &run{
		source:  src.Name(),
		queue:   make(chan bluetooth.RawEvent, m.queueSize),
		stopCh:  make(chan struct{}),
		drained: make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.active, m.last = r, r
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	select {
	case m.attach <- r:
	case <-m.closed:
		m.finish(r, ErrClosed, false)
		return ErrClosed
	}
	logging.Info("scan session starting", zap.String("source", r.source))

	switch s := src.(type) {
	case bluetooth.CallbackSource:
		h, err := s.Start(runCtx, func(ev bluetooth.RawEvent) { r.emit(ev) })
		if err != nil {
			err = m.startupError(err)
			r.signalStop()
			r.closeQueue()
			<-r.drained
			m.finish(r, err, false)
			return err
		}
		go m.runCallback(runCtx, r, h)

	case bluetooth.PullSource:
		go m.runPull(runCtx, r, s)
	}
	return nil
}

func (m *Manager) runCallback(ctx context.Context, r *run, h bluetooth.ScanHandle) {
	var err error
	select {
	case <-r.stopCh:
	case <-ctx.Done():
		r.signalStop()
	case <-h.Done():
		r.signalStop()
		if herr := h.Err(); herr != nil {
			err = m.sessionError("scan ended unexpectedly", herr)
		}
	}
	if serr := h.Stop(); serr != nil && err == nil {
		logging.Warn("stop scan", zap.String("source", r.source), zap.Error(serr))
	}
	r.closeQueue()
	<-r.drained
	m.finish(r, err, true)
}

func (m *Manager) runPull(ctx context.Context, r *run, src bluetooth.PullSource) {
	var err error
	received := false
	for ev, perr := range src.Events(ctx) {
		if perr != nil {
			if received {
				err = m.sessionError("event stream failed", perr)
			} else {
				err = m.startupError(perr)
			}
			break
		}
		received = true
		if !r.emit(ev) {
			break
		}
	}
	r.signalStop()
	r.closeQueue()
	<-r.drained
	m.finish(r, err, true)
}

func (r *run) signalStop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// finish marks r stopped. Asynchronous failures are also published on
// Errors; synchronous ones are only returned to the caller of Start.
func (m *Manager) finish(r *run, err error, async bool) {
	r.err = err
	if r.cancel != nil {
		r.cancel()
	}
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()
	close(r.done)

	if err != nil {
		logging.Error("scan session failed", zap.String("source", r.source), zap.Error(err))
		if async {
			m.publish(err)
		}
		return
	}
	logging.Info("scan session stopped", zap.String("source", r.source))
}

// Stop signals the active session to stop and blocks until queued events
// are drained. It returns the session's terminal error, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	r.signalStop()
	<-r.done
	return r.err
}

// Wait blocks until the current (or most recent) session has stopped.
func (m *Manager) Wait() error {
	m.mu.Lock()
	r := m.last
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Done is closed when the current (or most recent) session stops.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.last.done
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Close stops any active session and ends the owner goroutine.
func (m *Manager) Close() error {
	err := m.Stop()
	m.closeOnce.Do(func() {
		close(m.closed)
		<-m.loopDone
	})
	return err
}

func (m *Manager) do(fn func(*devices.Table)) bool {
	done := make(chan struct{})
	select {
	case m.requests <- func(t *devices.Table) {
		fn(t)
		close(done)
	}:
	case <-m.closed:
		return false
	}
	<-done
	return true
}

// Snapshot returns copies of all records in display order.
func (m *Manager) Snapshot() []devices.Record {
	var out []devices.Record
	m.do(func(t *devices.Table) { out = t.Snapshot() })
	return out
}

func (m *Manager) Get(address string) (devices.Record, bool) {
	var rec devices.Record
	var ok bool
	m.do(func(t *devices.Table) {
		rec, ok = t.Get(address)
		rec = rec.Clone()
	})
	return rec, ok
}

func (m *Manager) Clear() {
	m.do(func(t *devices.Table) { t.Clear() })
}

func (m *Manager) Len() int {
	var n int
	m.do(func(t *devices.Table) { n = t.Len() })
	return n
}

func (m *Manager) startupError(err error) error {
	var se *bluetooth.ScanError
	if !errors.As(err, &se) {
		se = bluetooth.NewStartupError("start scan", err)
	}
	if se.Probe == "" && m.probe != nil {
		se.Probe = m.probe()
	}
	return se
}

func (m *Manager) sessionError(message string, err error) error {
	var se *bluetooth.ScanError
	if errors.As(err, &se) && se.Kind == bluetooth.KindSession {
		if se.Probe == "" && m.probe != nil {
			se.Probe = m.probe()
		}
		return se
	}
	se = bluetooth.NewSessionError(message, err)
	if m.probe != nil {
		se.Probe = m.probe()
	}
	return se
}
