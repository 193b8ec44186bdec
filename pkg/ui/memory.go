package ui

import (
	"strings"
	"sync"
)

// MemoryTable implements ui.StatusTable with in-memory rows. It stands
// in for a real view binding and is safe for concurrent use by
// multiple watchers.
type MemoryTable struct {
	mu    sync.RWMutex
	rows  map[string]*MemoryRow // keyed by row identifier
	order []string              // insertion order, for rendering
}

// NewMemoryTable returns an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[string]*MemoryRow)}
}

// AddRow inserts a row for the handle and returns it. The task ID and
// task name cells are filled in, the remaining cells start blank and
// the launch control starts enabled. Adding the same handle twice
// returns the existing row.
func (t *MemoryTable) AddRow(handle, taskName string) *MemoryRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := RowID(handle)
	if row, ok := t.rows[id]; ok {
		return row
	}
	row := &MemoryRow{control: &MemoryControl{enabled: true}}
	row.cells[TaskIDCell] = handle
	row.cells[TaskNameCell] = taskName
	t.rows[id] = row
	t.order = append(t.order, id)
	return row
}

// Row implements StatusTable.
func (t *MemoryTable) Row(handle string) (Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[RowID(handle)]
	if !ok {
		return nil, false
	}
	return row, true
}

// RowSnapshot is a point-in-time copy of one row.
type RowSnapshot struct {
	Handle  string
	Cells   [CellCount]string
	Enabled bool // launch control state
}

// Snapshot copies all rows in insertion order.
func (t *MemoryTable) Snapshot() []RowSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snaps := make([]RowSnapshot, 0, len(t.order))
	for _, id := range t.order {
		row := t.rows[id]
		row.mu.RLock()
		cells := row.cells
		row.mu.RUnlock()
		snaps = append(snaps, RowSnapshot{
			Handle:  strings.TrimPrefix(id, RowIDPrefix),
			Cells:   cells,
			Enabled: row.control.Enabled(),
		})
	}
	return snaps
}

// MemoryRow is a single row of a MemoryTable.
type MemoryRow struct {
	mu      sync.RWMutex
	cells   [CellCount]string
	control *MemoryControl
}

// SetCell implements Row. Positions outside the row are ignored.
func (r *MemoryRow) SetCell(position int, text string) {
	if position < 0 || position >= CellCount {
		return
	}
	r.mu.Lock()
	r.cells[position] = text
	r.mu.Unlock()
}

// Cell implements Row.
func (r *MemoryRow) Cell(position int) (string, bool) {
	if position < 0 || position >= CellCount {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cells[position], true
}

// Control implements Row.
func (r *MemoryRow) Control() (Control, bool) {
	if r.control == nil {
		return nil, false
	}
	return r.control, true
}

// MemoryControl is the launch control of a MemoryRow.
type MemoryControl struct {
	mu      sync.Mutex
	enabled bool
}

func (c *MemoryControl) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

func (c *MemoryControl) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// Enabled reports whether the control currently accepts activation.
func (c *MemoryControl) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// MemoryList implements ui.List, collecting entries in append order.
type MemoryList struct {
	mu    sync.Mutex
	items []ListItem
}

// NewMemoryList returns an empty list.
func NewMemoryList() *MemoryList {
	return &MemoryList{}
}

// Append implements List.
func (l *MemoryList) Append(item ListItem) {
	l.mu.Lock()
	l.items = append(l.items, item)
	l.mu.Unlock()
}

// Items returns the appended entries in order.
func (l *MemoryList) Items() []ListItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ListItem(nil), l.items...)
}
