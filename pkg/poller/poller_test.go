package poller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcculloh213/digestwatch/pkg/client"
	"github.com/mcculloh213/digestwatch/pkg/models"
	"github.com/mcculloh213/digestwatch/pkg/poller"
	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	rec models.TaskStatusRecord
	err error
}

// fakeClient serves scripted status replies. The last reply repeats
// once the script runs out. An optional gate blocks every status read
// until the gate is closed.
type fakeClient struct {
	mu             sync.Mutex
	statusReplies  []reply
	statusCalls    int
	registerErrs   []error
	registerCalls  int
	gate           chan struct{}
	registeredFile models.FileRegistration
}

func (f *fakeClient) TaskStatus(ctx context.Context, handle string) (models.TaskStatusRecord, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.statusReplies) {
		i = len(f.statusReplies) - 1
	}
	r := f.statusReplies[i]
	return r.rec, r.err
}

func (f *fakeClient) RegisterTransformation(ctx context.Context, handle string) (models.FileRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.registerCalls
	f.registerCalls++
	if i < len(f.registerErrs) && f.registerErrs[i] != nil {
		return models.FileRegistration{}, f.registerErrs[i]
	}
	return f.registeredFile, nil
}

func (f *fakeClient) counts() (status, register int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.registerCalls
}

func pending(handle string) reply {
	return reply{rec: models.TaskStatusRecord{TaskID: handle, TaskName: "tasks.sleeper", Status: models.PendingTaskStatus}}
}

func success(handle, result string) reply {
	return reply{rec: models.TaskStatusRecord{TaskID: handle, TaskName: "tasks.sleeper", Status: models.SuccessTaskStatus, Result: result}}
}

func watchDone(t *testing.T, w *poller.Watch) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not wind down")
	}
}

func cellText(t *testing.T, row ui.Row, position int) string {
	t.Helper()
	text, ok := row.Cell(position)
	if !ok {
		t.Fatalf("no cell at position %d", position)
	}
	return text
}

func TestWatchDisablesControlBeforeFetch(t *testing.T) {
	gate := make(chan struct{})
	fc := &fakeClient{
		statusReplies: []reply{success("abc123", "done")},
		gate:          gate,
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	p := poller.NewPoller(fc, table)

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)

	// Watch returned but the gate still holds the first fetch back:
	// the control must already be dark.
	ctl, ok := row.Control()
	require.True(t, ok)
	assert.False(t, ctl.Enabled())
	status, _ := fc.counts()
	assert.Equal(t, 0, status)

	close(gate)
	watchDone(t, w)
}

func TestWatchSuccess(t *testing.T) {
	fc := &fakeClient{
		statusReplies:  []reply{success("abc123", "done")},
		registeredFile: models.FileRegistration{BrokerID: "b1", File: "digest-0001"},
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	p := poller.NewPoller(fc, table)

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)
	watchDone(t, w)

	assert.Equal(t, "SUCCESS", cellText(t, row, ui.StatusCell))
	assert.Equal(t, "done", cellText(t, row, ui.ResultCell))

	status, register := fc.counts()
	assert.Equal(t, 1, status)
	assert.Equal(t, 1, register)

	snap := w.Snapshot()
	assert.Equal(t, poller.SucceededState, snap.State)
	assert.True(t, snap.State.Terminal())
	assert.Equal(t, models.SuccessTaskStatus, snap.Status)
	assert.Equal(t, "done", snap.Result)

	// Success does not hand the control back.
	ctl, _ := row.Control()
	assert.False(t, ctl.Enabled())

	// The handle is free again once the chain wound down.
	assert.False(t, p.Watching("abc123"))
}

func TestWatchPendingReschedulesAfterFixedDelay(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{pending("abc123"), success("abc123", "done")},
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	clk := clockwork.NewFakeClock()
	p := poller.NewPoller(fc, table, poller.WithClock(clk))

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)

	// The chain parks on the clock after the first observation.
	clk.BlockUntil(1)
	assert.Equal(t, "PENDING", cellText(t, row, ui.StatusCell))
	assert.Equal(t, poller.PendingResultText, cellText(t, row, ui.ResultCell))
	assert.Equal(t, poller.PendingState, w.Snapshot().State)
	status, _ := fc.counts()
	assert.Equal(t, 1, status)

	// Just short of the interval nothing may happen.
	clk.Advance(poller.DefaultInterval - time.Millisecond)
	status, _ = fc.counts()
	assert.Equal(t, 1, status)

	clk.Advance(time.Millisecond)
	watchDone(t, w)

	status, register := fc.counts()
	assert.Equal(t, 2, status)
	assert.Equal(t, 1, register)
	assert.Equal(t, "done", cellText(t, row, ui.ResultCell))
}

func TestWatchDomainTerminalFailure(t *testing.T) {
	tests := []struct {
		name   string
		status models.TaskStatus
	}{
		{"Failed", models.FailedTaskStatus},
		{"NotFound", models.NotFoundTaskStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{
				statusReplies: []reply{{rec: models.TaskStatusRecord{TaskID: "abc123", Status: tt.status}}},
			}
			table := ui.NewMemoryTable()
			row := table.AddRow("abc123", "tasks.sleeper")
			clk := clockwork.NewFakeClock()
			p := poller.NewPoller(fc, table, poller.WithClock(clk))

			w, err := p.Watch(context.Background(), "abc123")
			require.NoError(t, err)
			watchDone(t, w)

			assert.Equal(t, string(tt.status), cellText(t, row, ui.StatusCell))
			assert.Equal(t, poller.NoResultText, cellText(t, row, ui.ResultCell))
			assert.Equal(t, poller.FailedState, w.Snapshot().State)

			// No further poll may be scheduled after a terminal status.
			clk.Advance(10 * poller.DefaultInterval)
			status, register := fc.counts()
			assert.Equal(t, 1, status)
			assert.Equal(t, 0, register)

			// The control stays dark after a task-level failure. Only
			// transport errors hand it back.
			ctl, _ := row.Control()
			assert.False(t, ctl.Enabled())
		})
	}
}

func TestWatchTransportErrorReenablesControl(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{{err: errors.New("connection refused")}},
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	p := poller.NewPoller(fc, table)

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)
	watchDone(t, w)

	snap := w.Snapshot()
	assert.Equal(t, poller.ErroredState, snap.State)
	if snap.Err == nil {
		t.Error("expected the snapshot to carry the transport error")
	}

	ctl, _ := row.Control()
	assert.True(t, ctl.Enabled())

	_, register := fc.counts()
	assert.Equal(t, 0, register)
}

func TestWatchRegisterConflictRefetchesOnce(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{success("abc123", "done")},
		registerErrs:  []error{errors.Wrap(client.ErrAlreadyRegistered, "registering task abc123")},
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	p := poller.NewPoller(fc, table)

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)
	watchDone(t, w)

	// The conflict triggers exactly one follow-up status read and no
	// second registration attempt.
	status, register := fc.counts()
	assert.Equal(t, 2, status)
	assert.Equal(t, 1, register)

	snap := w.Snapshot()
	assert.Equal(t, poller.SucceededState, snap.State)
	assert.Equal(t, "done", cellText(t, row, ui.ResultCell))
}

func TestWatchRegisterTransportError(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{success("abc123", "done")},
		registerErrs:  []error{errors.New("bad gateway")},
	}
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "tasks.sleeper")
	p := poller.NewPoller(fc, table)

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)
	watchDone(t, w)

	assert.Equal(t, poller.ErroredState, w.Snapshot().State)
	ctl, _ := row.Control()
	assert.True(t, ctl.Enabled())

	status, register := fc.counts()
	assert.Equal(t, 1, status)
	assert.Equal(t, 1, register)
}

func TestWatchMissingRowFailsSoft(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{pending("abc123"), success("abc123", "done")},
	}
	clk := clockwork.NewFakeClock()
	// The table has no row for the handle: every write is skipped.
	p := poller.NewPoller(fc, ui.NewMemoryTable(), poller.WithClock(clk))

	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)

	clk.BlockUntil(1)
	clk.Advance(poller.DefaultInterval)
	watchDone(t, w)

	assert.Equal(t, poller.SucceededState, w.Snapshot().State)
}

// bareRow has no launch control, like markup without an interactive
// child in the control cell.
type bareRow struct {
	mu    sync.Mutex
	cells map[int]string
}

func (r *bareRow) SetCell(position int, text string) {
	r.mu.Lock()
	r.cells[position] = text
	r.mu.Unlock()
}

func (r *bareRow) Cell(position int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.cells[position]
	return text, ok
}

func (r *bareRow) Control() (ui.Control, bool) {
	return nil, false
}

type bareTable struct {
	row *bareRow
}

func (t *bareTable) Row(handle string) (ui.Row, bool) {
	return t.row, true
}

func TestWatchMissingControlFailsSoft(t *testing.T) {
	fc := &fakeClient{
		statusReplies: []reply{{err: errors.New("connection refused")}},
	}
	table := &bareTable{row: &bareRow{cells: make(map[int]string)}}
	p := poller.NewPoller(fc, table)

	// Both the disable on start and the re-enable on failure hit the
	// missing control; neither may panic.
	w, err := p.Watch(context.Background(), "abc123")
	require.NoError(t, err)
	watchDone(t, w)

	assert.Equal(t, poller.ErroredState, w.Snapshot().State)
}

func TestWatchHandleBookkeeping(t *testing.T) {
	t.Run("EmptyHandle", func(t *testing.T) {
		p := poller.NewPoller(&fakeClient{statusReplies: []reply{pending("x")}}, ui.NewMemoryTable())
		_, err := p.Watch(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("DuplicateWatchRejected", func(t *testing.T) {
		gate := make(chan struct{})
		fc := &fakeClient{
			statusReplies: []reply{success("abc123", "done")},
			gate:          gate,
		}
		table := ui.NewMemoryTable()
		table.AddRow("abc123", "tasks.sleeper")
		p := poller.NewPoller(fc, table)

		w, err := p.Watch(context.Background(), "abc123")
		require.NoError(t, err)
		assert.True(t, p.Watching("abc123"))

		_, err = p.Watch(context.Background(), "abc123")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already being watched")

		close(gate)
		watchDone(t, w)

		// A finished handle may be watched again.
		w2, err := p.Watch(context.Background(), "abc123")
		require.NoError(t, err)
		watchDone(t, w2)
	})
}

func TestWatchStop(t *testing.T) {
	t.Run("StopDuringWait", func(t *testing.T) {
		fc := &fakeClient{
			statusReplies: []reply{pending("abc123")},
		}
		table := ui.NewMemoryTable()
		row := table.AddRow("abc123", "tasks.sleeper")
		clk := clockwork.NewFakeClock()
		p := poller.NewPoller(fc, table, poller.WithClock(clk))

		w, err := p.Watch(context.Background(), "abc123")
		require.NoError(t, err)

		clk.BlockUntil(1)
		assert.True(t, p.Stop("abc123"))
		watchDone(t, w)

		snap := w.Snapshot()
		assert.Equal(t, poller.StoppedState, snap.State)
		assert.False(t, p.Watching("abc123"))

		// The stop hands the control back.
		ctl, _ := row.Control()
		assert.True(t, ctl.Enabled())

		clk.Advance(10 * poller.DefaultInterval)
		status, _ := fc.counts()
		assert.Equal(t, 1, status)
	})

	t.Run("StopUnknownHandle", func(t *testing.T) {
		p := poller.NewPoller(&fakeClient{statusReplies: []reply{pending("x")}}, ui.NewMemoryTable())
		assert.False(t, p.Stop("nothing-here"))
	})

	t.Run("StopAll", func(t *testing.T) {
		fc := &fakeClient{
			statusReplies: []reply{pending("t1")},
		}
		table := ui.NewMemoryTable()
		table.AddRow("t1", "tasks.sleeper")
		table.AddRow("t2", "tasks.sleeper")
		clk := clockwork.NewFakeClock()
		p := poller.NewPoller(fc, table, poller.WithClock(clk))

		w1, err := p.Watch(context.Background(), "t1")
		require.NoError(t, err)
		w2, err := p.Watch(context.Background(), "t2")
		require.NoError(t, err)

		clk.BlockUntil(2)
		p.StopAll()
		watchDone(t, w1)
		watchDone(t, w2)

		assert.Equal(t, poller.StoppedState, w1.Snapshot().State)
		assert.Equal(t, poller.StoppedState, w2.Snapshot().State)
		assert.False(t, p.Watching("t1"))
		assert.False(t, p.Watching("t2"))
	})
}
