// Package ui defines the view surface a status watcher writes into: a
// table of per-task rows with fixed cell positions, plus the list
// container the icon gallery appends to. Implementations range from a
// real view binding to the in-memory table used by the CLI and tests.
package ui

// Fixed cell positions of a status row.
const (
	TaskIDCell   = 0
	StatusCell   = 1
	TaskNameCell = 2
	ControlCell  = 3
	ResultCell   = 4

	CellCount = 5
)

// RowIDPrefix prefixes every row identifier derived from a task handle.
const RowIDPrefix = "ct-"

// RowID derives the row identifier for a task handle.
func RowID(handle string) string {
	return RowIDPrefix + handle
}

// Control guards the action that launched a task. Watchers disable it
// while a task is in flight and re-enable it when a retry makes sense.
type Control interface {
	Enable()
	Disable()
	Enabled() bool
}

// Row is one task's slice of the status table.
type Row interface {
	// SetCell replaces the text of the cell at the given position.
	// Positions outside the row are ignored.
	SetCell(position int, text string)
	// Cell returns the text of the cell at the given position.
	Cell(position int) (string, bool)
	// Control returns the row's launch control, if it has one.
	Control() (Control, bool)
}

// StatusTable resolves rows by task handle.
type StatusTable interface {
	// Row returns the row bound to the handle, or false when no row
	// with the derived identifier exists.
	Row(handle string) (Row, bool)
}

// List is a container that accepts appended gallery entries.
type List interface {
	Append(item ListItem)
}

// ListItem is one rendered gallery entry.
type ListItem struct {
	Class string // CSS class carrying the glyph (e.g., "icon-pencil")
	Label string // Visible text next to the glyph
}
