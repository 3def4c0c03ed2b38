package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_WidthsFollowContent(t *testing.T) {
	table := NewTable("MODULE", "STATE")
	table.AddRow("star-atlas-rendering", "Succeeded")

	assert.Equal(t, []int{len("star-atlas-rendering"), len("Succeeded")}, table.widths)
}

func TestTable_ExtraCellsDropped(t *testing.T) {
	table := NewTable("MODULE", "STATE")
	table.AddRow("star-atlas", "Active", "多余单元格")

	assert.Len(t, table.rows[0], 2)
}

func TestTable_StateColumnColoring(t *testing.T) {
	table := NewTable("MODULE", "STATE").MarkStateColumn(1)

	// 非状态列不着色
	assert.Nil(t, table.cellColor(0, "Failed"))
	// 状态列按生命周期状态着色，未知状态不着色
	assert.NotNil(t, table.cellColor(1, "Failed"))
	assert.NotNil(t, table.cellColor(1, "Succeeded"))
	assert.Nil(t, table.cellColor(1, "星图模块"))
}
