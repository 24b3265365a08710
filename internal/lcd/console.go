package lcd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var frameStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("42")).
	Foreground(lipgloss.Color("42")).
	Padding(0, 1)

// Console emulates the LCD on a terminal. The whole frame is drawn each
// time the last row is written, so one redraw of the controller yields one frame.
type Console struct {
	out    io.Writer
	cols   int
	cells  [][]byte
	col    int
	row    int
	closed bool
}

// NewConsole creates a cols x rows preview writing frames to out
func NewConsole(out io.Writer, cols, rows int) *Console {
	if cols <= 0 {
		cols = 16
	}
	if rows <= 0 {
		rows = 2
	}
	c := &Console{out: out, cols: cols, cells: make([][]byte, rows)}
	c.blank()
	return c
}

func (c *Console) blank() {
	for i := range c.cells {
		c.cells[i] = []byte(strings.Repeat(" ", c.cols))
	}
	c.col, c.row = 0, 0
}

// SetCursor moves to a 0-based column and row
func (c *Console) SetCursor(col, row int) error {
	if c.closed {
		return fmt.Errorf("console display closed")
	}
	if row < 0 || row >= len(c.cells) || col < 0 || col >= c.cols {
		return fmt.Errorf("cursor %d,%d out of range", col, row)
	}
	c.col, c.row = col, row
	return nil
}

// Print writes text at the cursor, clipping at the end of the row
func (c *Console) Print(text string) error {
	if c.closed {
		return fmt.Errorf("console display closed")
	}
	n := copy(c.cells[c.row][c.col:], text)
	c.col += n
	if c.row == len(c.cells)-1 {
		return c.draw()
	}
	return nil
}

// Clear blanks every row
func (c *Console) Clear() error {
	if c.closed {
		return fmt.Errorf("console display closed")
	}
	c.blank()
	return c.draw()
}

// Close stops drawing
func (c *Console) Close() error {
	c.closed = true
	return nil
}

// Lines returns the current content of each row
func (c *Console) Lines() []string {
	lines := make([]string, len(c.cells))
	for i, row := range c.cells {
		lines[i] = string(row)
	}
	return lines
}

func (c *Console) draw() error {
	_, err := fmt.Fprintln(c.out, frameStyle.Render(strings.Join(c.Lines(), "\n")))
	return err
}
