// Package poller drives task-status polling chains against the digest
// API and keeps a status table synchronized with the observed state of
// every watched task.
//
// Each watched handle runs its own chain: disable the row's launch
// control, fetch the status, reflect it into the row, then either stop
// on a terminal status or fetch again after a fixed interval. Chains
// are independent of each other, hold at most one in-flight request at
// a time and wind down early when their context is cancelled.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcculloh213/digestwatch/pkg/models"
	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/pkg/errors"
)

// DefaultInterval is the fixed delay between two status fetches of the
// same task.
const DefaultInterval = 1500 * time.Millisecond

// Texts written into the result cell while no usable result exists.
const (
	PendingResultText = "Pending"
	NoResultText      = "No Result"
)

// StatusClient is the slice of the digest API a polling chain drives.
type StatusClient interface {
	TaskStatus(ctx context.Context, handle string) (models.TaskStatusRecord, error)
	RegisterTransformation(ctx context.Context, handle string) (models.FileRegistration, error)
}

// Logger interface for logging
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between two status fetches.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithClock sets the clock used to wait out the interval. Tests inject
// a fake clock to step through chains without real delays.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger for the poller and its watches.
func WithLogger(l Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller watches digest tasks and mirrors their state into a status
// table. Safe for concurrent use.
type Poller struct {
	client   StatusClient
	table    ui.StatusTable
	clock    clockwork.Clock
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	watches map[string]*Watch
}

// NewPoller creates a poller writing into the given table.
func NewPoller(client StatusClient, table ui.StatusTable, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		table:    table,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		logger:   noopLogger{},
		watches:  make(map[string]*Watch),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch starts a polling chain for the task handle. The row's launch
// control is disabled before Watch returns; status fetches then run on
// their own goroutine until a terminal status is observed, a request
// fails or ctx is cancelled. A handle is watched at most once at a
// time: watching it again while its chain runs is an error, watching
// it again after the chain wound down starts a fresh chain.
func (p *Poller) Watch(ctx context.Context, handle string) (*Watch, error) {
	if handle == "" {
		return nil, errors.New("empty task handle")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := newWatch(p, handle)
	w.cancel = cancel

	p.mu.Lock()
	if _, running := p.watches[handle]; running {
		p.mu.Unlock()
		cancel()
		return nil, errors.Errorf("task %s is already being watched", handle)
	}
	p.watches[handle] = w
	p.mu.Unlock()

	// The control goes dark before any network activity so a second
	// activation cannot race the first fetch.
	w.bind()
	w.disableControl()

	go w.run(runCtx)
	return w, nil
}

// Stop cancels the chain watching the handle and waits for it to wind
// down. It reports whether a chain was running.
func (p *Poller) Stop(handle string) bool {
	p.mu.Lock()
	w, ok := p.watches[handle]
	p.mu.Unlock()
	if !ok {
		return false
	}
	w.cancel()
	<-w.Done()
	return true
}

// StopAll cancels every running chain and waits for all of them.
func (p *Poller) StopAll() {
	p.mu.Lock()
	watches := make([]*Watch, 0, len(p.watches))
	for _, w := range p.watches {
		watches = append(watches, w)
	}
	p.mu.Unlock()

	for _, w := range watches {
		w.cancel()
		<-w.Done()
	}
}

// Watching reports whether a chain is currently running for the handle.
func (p *Poller) Watching(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watches[handle]
	return ok
}

func (p *Poller) remove(handle string) {
	p.mu.Lock()
	delete(p.watches, handle)
	p.mu.Unlock()
}
