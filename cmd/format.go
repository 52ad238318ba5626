package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gregriff/parley/internal/models"
)

// theme holds the styles for one output stream. Colors are dropped when the
// stream is not a terminal.
type theme struct {
	renderer *lipgloss.Renderer

	header lipgloss.Style
	label  lipgloss.Style
	border lipgloss.Style
	faint  lipgloss.Style
	author lipgloss.Style
	mine   lipgloss.Style
	system lipgloss.Style
	failed lipgloss.Style
}

func newTheme(w io.Writer) theme {
	r := lipgloss.NewRenderer(w)
	return theme{
		renderer: r,
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1),
		label:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		border:   r.NewStyle().Foreground(lipgloss.Color("240")),
		faint:    r.NewStyle().Foreground(lipgloss.Color("242")),
		author:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		mine:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		system:   r.NewStyle().Italic(true).Foreground(lipgloss.Color("178")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (th theme) table(headers ...string) *table.Table {
	cell := th.renderer.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.border).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.header
			}
			return cell
		})
}

// details renders label/value pairs, one per line, with aligned values.
func (th theme) details(w io.Writer, pairs ...[2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	label := th.label.Width(width + 2)
	for _, p := range pairs {
		fmt.Fprintln(w, label.Render(p[0])+p[1])
	}
}

func printUser(w io.Writer, u models.User) {
	newTheme(w).details(w,
		[2]string{"ID", u.ID},
		[2]string{"Name", u.Name},
		[2]string{"Email", u.Email},
		[2]string{"Active", strconv.FormatBool(bool(u.IsActive))},
		[2]string{"Joined", formatTime(u.CreatedAt)},
	)
}

func printUsers(w io.Writer, users []models.User) {
	t := newTheme(w).table("ID", "NAME", "EMAIL", "ACTIVE")
	for _, u := range users {
		t.Row(u.ID, u.Name, u.Email, strconv.FormatBool(bool(u.IsActive)))
	}
	fmt.Fprintln(w, t.String())
}

func printRoom(w io.Writer, r models.Room) {
	newTheme(w).details(w,
		[2]string{"ID", r.ID},
		[2]string{"Name", r.Name},
		[2]string{"Description", r.Description},
		[2]string{"Private", strconv.FormatBool(r.IsPrivate)},
		[2]string{"Members", members(r)},
		[2]string{"Joined", strconv.FormatBool(r.IsJoined)},
		[2]string{"Created", formatTime(r.CreatedAt)},
	)
}

func printRooms(w io.Writer, rooms []models.Room) {
	t := newTheme(w).table("ID", "NAME", "MEMBERS", "JOINED", "DESCRIPTION")
	for _, r := range rooms {
		t.Row(r.ID, r.Name, members(r), strconv.FormatBool(r.IsJoined), r.Description)
	}
	fmt.Fprintln(w, t.String())
}

func members(r models.Room) string {
	if r.MaxParticipants > 0 {
		return fmt.Sprintf("%d/%d", r.MemberCount, r.MaxParticipants)
	}
	return fmt.Sprint(r.MemberCount)
}

// message renders one chat line: "[3:04PM] name: content (edited) <type>  #id".
func (th theme) message(m models.Message) string {
	var b strings.Builder
	b.WriteString(th.faint.Render("[" + m.CreatedAt.Local().Format(time.Kitchen) + "]"))
	b.WriteByte(' ')
	if m.IsMine {
		b.WriteString(th.mine.Render("you"))
	} else {
		b.WriteString(th.author.Render(m.Author.Name))
	}
	b.WriteString(": ")
	b.WriteString(m.Content)
	if m.IsEdited {
		b.WriteString(" " + th.faint.Render("(edited)"))
	}
	if m.Type != models.TypeText {
		b.WriteString(" " + th.faint.Render("<"+string(m.Type)+">"))
	}
	b.WriteString("  " + th.faint.Render("#"+m.ID))
	return b.String()
}

// notice renders a "-- " status line.
func (th theme) notice(format string, args ...any) string {
	return th.system.Render("-- " + fmt.Sprintf(format, args...))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
