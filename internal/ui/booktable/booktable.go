// Package booktable renders book listings for the terminal.
package booktable

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	statsdto "komerge/internal/modules/stats/dto"
	"komerge/internal/ui/theme"
)

var headers = []string{"ID", "Title", "Authors", "MD5", "Read time", "Pages"}

const (
	colID = iota
	colTitle
	colAuthors
	colMD5
	colTime
	colPages
)

func Render(books []statsdto.BookOutput) string {
	if len(books) == 0 {
		return theme.Muted.Render("no books")
	}
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{
			strconv.FormatInt(b.ID, 10),
			truncate(b.Title, 48),
			truncate(b.Authors, 32),
			b.Fingerprint,
			FormatSeconds(b.TotalTime),
			strconv.FormatInt(b.TotalPages, 10),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(theme.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.Header
			}
			switch col {
			case colID, colTime, colPages:
				return theme.Number
			default:
				return theme.Cell
			}
		})
	return t.Render()
}

// FormatSeconds prints a reading duration the way the device does: "3h 05m",
// "12m 09s" or "42s".
func FormatSeconds(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := int64(d / time.Hour)
	m := int64(d % time.Hour / time.Minute)
	s := int64(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
