package interactive

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"go2tv.app/castvideos/devices"
	"go2tv.app/castvideos/internal/media"
)

// ErrCancelled is returned when the user leaves a picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

// Option is one line of a picker. Headers are shown but cannot be chosen.
type Option struct {
	Label  string
	Header bool
}

type pickerModel struct {
	title   string
	options []Option
	cursor  int
	chosen  int
	quit    bool
	width   int
}

func newPicker(title string, options []Option) pickerModel {
	m := pickerModel{title: title, options: options, chosen: -1, cursor: -1}
	m.cursor = m.next(-1, 1)
	return m
}

// next returns the first selectable option from i in direction dir, or i
// when there is none.
func (m pickerModel) next(i, dir int) int {
	for j := i + dir; j >= 0 && j < len(m.options); j += dir {
		if !m.options[j].Header {
			return j
		}
	}
	return i
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			m.cursor = m.next(m.cursor, -1)
		case "down", "j":
			m.cursor = m.next(m.cursor, 1)
		case "home", "g":
			m.cursor = m.next(-1, 1)
		case "end", "G":
			m.cursor = m.next(len(m.options), -1)
		case "enter":
			if m.cursor >= 0 {
				m.chosen = m.cursor
				return m, tea.Quit
			}
		case "esc", "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.title + "\n\n")

	for i, o := range m.options {
		line := "    " + o.Label
		switch {
		case o.Header:
			line = o.Label
		case i == m.cursor:
			line = "  > " + o.Label
		}
		if m.width > 0 {
			line = runewidth.Truncate(line, m.width, "…")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n↑/↓ move, enter select, esc cancel\n")
	return b.String()
}

// runPicker is replaced in tests.
var runPicker = func(m pickerModel) (pickerModel, error) {
	res, err := tea.NewProgram(m).Run()
	if err != nil {
		return m, err
	}
	return res.(pickerModel), nil
}

// Pick shows options and returns the index of the chosen one.
func Pick(title string, options []Option) (int, error) {
	m, err := runPicker(newPicker(title, options))
	if err != nil {
		return -1, err
	}
	if m.quit || m.chosen < 0 {
		return -1, ErrCancelled
	}
	return m.chosen, nil
}

// PickMedia lets the user choose a catalog entry. Groups become headers.
func PickMedia(cat *media.Catalog) (*media.Info, error) {
	var (
		options []Option
		infos   []*media.Info
	)

	var walk func(it *media.Item, depth int)
	walk = func(it *media.Item, depth int) {
		indent := strings.Repeat("  ", max(depth-1, 0))
		if !it.IsGroup() {
			options = append(options, Option{Label: indent + it.Title})
			infos = append(infos, it.Info)
			return
		}
		if depth > 0 {
			options = append(options, Option{Label: indent + it.Title, Header: true})
			infos = append(infos, nil)
		}
		for _, c := range it.Children {
			walk(c, depth+1)
		}
	}
	walk(cat.Root, 0)

	title := cat.Title
	if title == "" {
		title = "Media"
	}

	i, err := Pick(title, options)
	if err != nil {
		return nil, err
	}
	return infos[i], nil
}

// PickDevice lets the user choose a receiver. ok is false when playing on
// this computer only was chosen.
func PickDevice(devs []devices.Device) (dev devices.Device, ok bool, err error) {
	options := []Option{{Label: "This computer only"}}
	for _, d := range devs {
		label := d.String()
		if d.IsAudioOnly {
			label += " [audio]"
		}
		options = append(options, Option{Label: label})
	}

	i, err := Pick("Cast to", options)
	if err != nil {
		return devices.Device{}, false, err
	}
	if i == 0 {
		return devices.Device{}, false, nil
	}
	return devs[i-1], true, nil
}
