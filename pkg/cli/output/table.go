package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Table 等宽列表格，列宽随行内容自适应
// 标记为状态列的单元格按生命周期状态着色渲染
type Table struct {
	headers      []string
	rows         [][]string
	widths       []int
	stateColumns map[int]bool
}

// NewTable 创建表格
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		headers:      headers,
		widths:       widths,
		stateColumns: make(map[int]bool),
	}
}

// MarkStateColumn 将指定列标记为状态列
func (t *Table) MarkStateColumn(index int) *Table {
	if index >= 0 && index < len(t.headers) {
		t.stateColumns[index] = true
	}
	return t
}

// AddRow 添加数据行，超出表头的单元格被丢弃
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	for i, cell := range cells {
		if len(cell) > t.widths[i] {
			t.widths[i] = len(cell)
		}
	}
	t.rows = append(t.rows, cells)
}

// Render 渲染表格到标准输出
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Print(h)
		fmt.Print(strings.Repeat(" ", t.widths[i]-len(h)+2))
	}
	fmt.Println()

	for _, w := range t.widths {
		fmt.Print(strings.Repeat("-", w), "  ")
	}
	fmt.Println()

	for _, row := range t.rows {
		for i, cell := range row {
			// 着色不参与宽度计算，补齐按原始文本长度进行
			if c := t.cellColor(i, cell); c != nil {
				c.Print(cell)
			} else {
				fmt.Print(cell)
			}
			fmt.Print(strings.Repeat(" ", t.widths[i]-len(cell)+2))
		}
		fmt.Println()
	}
}

// cellColor 返回单元格的显示颜色，无需着色时为nil
func (t *Table) cellColor(index int, cell string) *color.Color {
	if !t.stateColumns[index] {
		return nil
	}
	return stateColor(cell)
}

// stateColor 工作流/步骤/批量结果状态到颜色的映射
func stateColor(state string) *color.Color {
	switch state {
	case "Succeeded", "Completed":
		return color.New(color.FgGreen)
	case "Active", "Running":
		return color.New(color.FgCyan)
	case "Failed", "PartiallyRolledBack":
		return color.New(color.FgRed)
	case "Pending", "Skipped", "Cancelled", "RolledBack":
		return color.New(color.FgYellow)
	default:
		return nil
	}
}
