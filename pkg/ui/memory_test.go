package ui_test

import (
	"testing"

	"github.com/mcculloh213/digestwatch/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTable(t *testing.T) {
	table := ui.NewMemoryTable()

	t.Run("MissingRow", func(t *testing.T) {
		row, ok := table.Row("abc123")
		assert.False(t, ok)
		assert.Nil(t, row)
	})

	t.Run("AddAndLookup", func(t *testing.T) {
		added := table.AddRow("abc123", "tasks.sleeper")
		require.NotNil(t, added)

		row, ok := table.Row("abc123")
		require.True(t, ok)

		id, ok := row.Cell(ui.TaskIDCell)
		assert.True(t, ok)
		assert.Equal(t, "abc123", id)

		name, _ := row.Cell(ui.TaskNameCell)
		assert.Equal(t, "tasks.sleeper", name)

		status, _ := row.Cell(ui.StatusCell)
		assert.Equal(t, "", status)

		ctl, ok := row.Control()
		require.True(t, ok)
		assert.True(t, ctl.Enabled())
	})

	t.Run("AddTwiceReturnsExisting", func(t *testing.T) {
		first := table.AddRow("dup", "tasks.sleeper")
		first.SetCell(ui.StatusCell, "PENDING")

		second := table.AddRow("dup", "something-else")
		status, _ := second.Cell(ui.StatusCell)
		assert.Equal(t, "PENDING", status)
		name, _ := second.Cell(ui.TaskNameCell)
		assert.Equal(t, "tasks.sleeper", name)
	})

	t.Run("Snapshot", func(t *testing.T) {
		snapTable := ui.NewMemoryTable()
		snapTable.AddRow("t1", "tasks.sleeper")
		row := snapTable.AddRow("t2", "tasks.convert")
		row.SetCell(ui.StatusCell, "SUCCESS")
		row.SetCell(ui.ResultCell, "done")
		ctl, _ := row.Control()
		ctl.Disable()

		snaps := snapTable.Snapshot()
		require.Len(t, snaps, 2)
		assert.Equal(t, "t1", snaps[0].Handle)
		assert.True(t, snaps[0].Enabled)
		assert.Equal(t, "t2", snaps[1].Handle)
		assert.Equal(t, "SUCCESS", snaps[1].Cells[ui.StatusCell])
		assert.Equal(t, "done", snaps[1].Cells[ui.ResultCell])
		assert.False(t, snaps[1].Enabled)
	})
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "ct-abc123", ui.RowID("abc123"))
}

func TestMemoryRowIgnoresOutOfRangeCells(t *testing.T) {
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "")

	// Writes outside the row are dropped, reads report absence.
	row.SetCell(-1, "nope")
	row.SetCell(ui.CellCount, "nope")

	_, ok := row.Cell(-1)
	assert.False(t, ok)
	_, ok = row.Cell(ui.CellCount)
	assert.False(t, ok)

	id, ok := row.Cell(ui.TaskIDCell)
	assert.True(t, ok)
	assert.Equal(t, "abc123", id)
}

func TestMemoryControl(t *testing.T) {
	table := ui.NewMemoryTable()
	row := table.AddRow("abc123", "")
	ctl, ok := row.Control()
	require.True(t, ok)

	assert.True(t, ctl.Enabled())
	ctl.Disable()
	assert.False(t, ctl.Enabled())
	ctl.Enable()
	assert.True(t, ctl.Enabled())
}

func TestMemoryList(t *testing.T) {
	list := ui.NewMemoryList()
	assert.Empty(t, list.Items())

	list.Append(ui.ListItem{Class: "icon-pencil", Label: "pencil"})
	list.Append(ui.ListItem{Class: "icon-eraser", Label: "eraser"})

	items := list.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "icon-pencil", items[0].Class)
	assert.Equal(t, "eraser", items[1].Label)
}
