package poller

import (
	"context"
	"sync"

	"github.com/mcculloh213/digestwatch/pkg/client"
	"github.com/mcculloh213/digestwatch/pkg/models"
	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/pkg/errors"
)

// State names the phases of a polling chain.
type State string

const (
	IdleState      State = "IDLE"      // chain created, first fetch not yet started
	LoadingState   State = "LOADING"   // status request in flight
	PendingState   State = "PENDING"   // waiting out the interval before the next fetch
	SucceededState State = "SUCCEEDED" // terminal: task succeeded, transformation registered
	FailedState    State = "FAILED"    // terminal: task failed or handle unknown
	ErroredState   State = "ERRORED"   // terminal: a request itself failed
	StoppedState   State = "STOPPED"   // terminal: cancelled before a terminal status
)

// Terminal reports whether the chain has wound down.
func (s State) Terminal() bool {
	switch s {
	case SucceededState, FailedState, ErroredState, StoppedState:
		return true
	}
	return false
}

// Watch is one task's polling chain.
type Watch struct {
	poller  *Poller
	handle  string
	row     ui.Row     // nil when the table has no row for the handle
	control ui.Control // nil when the row has no launch control
	cancel  context.CancelFunc
	done    chan struct{}

	registered bool // registration attempted; only touched by run

	mu    sync.Mutex
	state State
	last  models.TaskStatusRecord
	err   error
}

// Snapshot is a point-in-time copy of a watch's state.
type Snapshot struct {
	Handle string
	State  State
	Status models.TaskStatus
	Result string
	Err    error
}

func newWatch(p *Poller, handle string) *Watch {
	return &Watch{
		poller: p,
		handle: handle,
		done:   make(chan struct{}),
		state:  IdleState,
	}
}

// Handle returns the watched task handle.
func (w *Watch) Handle() string {
	return w.handle
}

// Done is closed once the chain has wound down.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Snapshot returns the chain's current state.
func (w *Watch) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Handle: w.handle,
		State:  w.state,
		Status: w.last.Status,
		Result: w.last.Result,
		Err:    w.err,
	}
}

// bind resolves the watch's row and control once, up front. Lookups
// fail soft: a missing row or control leaves the fields nil and every
// later write against them is skipped.
func (w *Watch) bind() {
	row, ok := w.poller.table.Row(w.handle)
	if !ok {
		return
	}
	w.row = row
	if ctl, ok := row.Control(); ok {
		w.control = ctl
	}
}

func (w *Watch) setCell(position int, text string) {
	if w.row == nil {
		return
	}
	w.row.SetCell(position, text)
}

func (w *Watch) disableControl() {
	if w.control != nil {
		w.control.Disable()
	}
}

func (w *Watch) enableControl() {
	if w.control != nil {
		w.control.Enable()
	}
}

func (w *Watch) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// run drives the chain until a terminal state.
func (w *Watch) run(ctx context.Context) {
	defer close(w.done)
	defer w.poller.remove(w.handle)
	defer w.cancel()

	p := w.poller
	for {
		w.setState(LoadingState)
		rec, err := p.client.TaskStatus(ctx, w.handle)
		if err != nil {
			w.transportFailure(ctx, err)
			return
		}

		w.mu.Lock()
		w.last = rec
		w.mu.Unlock()
		w.setCell(ui.StatusCell, string(rec.Status))

		switch {
		case rec.Status.Succeeded():
			w.setCell(ui.ResultCell, rec.Result)
			p.logger.Infof("Task %s completed: %s", w.handle, rec.Result)
			if w.registered {
				// The conflicting registration was already resolved;
				// observing SUCCESS again ends the chain.
				w.setState(SucceededState)
				return
			}
			w.registered = true
			reg, err := p.client.RegisterTransformation(ctx, w.handle)
			if errors.Is(err, client.ErrAlreadyRegistered) {
				p.logger.Infof("Task %s already registered, refreshing status", w.handle)
				continue
			}
			if err != nil {
				w.transportFailure(ctx, err)
				return
			}
			p.logger.Infof("Task %s registered as file %s", w.handle, reg.File)
			w.setState(SucceededState)
			return

		case rec.Status.Terminal():
			w.setCell(ui.ResultCell, NoResultText)
			p.logger.Infof("Task %s ended without result: %s", w.handle, rec.Status)
			w.setState(FailedState)
			return

		default:
			w.setCell(ui.ResultCell, PendingResultText)
			w.setState(PendingState)
			select {
			case <-ctx.Done():
				w.halt(ctx.Err())
				return
			case <-p.clock.After(p.interval):
			}
		}
	}
}

// transportFailure ends the chain after a failed request. The control
// comes back so the user may retry manually. A cancelled context is a
// stop, not a failure.
func (w *Watch) transportFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		w.halt(ctx.Err())
		return
	}
	w.enableControl()
	w.poller.logger.Errorf("Task %s watch failed: %v", w.handle, err)
	w.mu.Lock()
	w.state = ErroredState
	w.err = err
	w.mu.Unlock()
}

// halt ends the chain on cancellation. The control comes back because
// no chain is left for it to guard.
func (w *Watch) halt(cause error) {
	w.enableControl()
	w.poller.logger.Infof("Stopped watching task %s", w.handle)
	w.mu.Lock()
	w.state = StoppedState
	w.err = cause
	w.mu.Unlock()
}
