// Copyright 2026 The Mcvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

import (
	"fmt"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/mcvisor/util"
	"github.com/gdamore/mcvisor/rest"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// MainPanel lists the instances, one per line, with a movable selection.
type MainPanel struct {
	content  *views.CellView
	selected *rest.InstanceInfo
	nrunning int
	nbusy    int
	nstopped int
	nplayers int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []*rest.InstanceInfo

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	sel := m.selected
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyEnter:
			if sel != nil {
				app.ShowInfo(sel.Name)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				if sel != nil {
					app.ShowInfo(sel.Name)
					return true
				}
			case 'L', 'l':
				app.ShowLog("")
				return true
			case 'C', 'c':
				if sel != nil && app.Can(mcvisor.ActionConsole) {
					app.ShowLog(sel.Name)
					return true
				}
			case 'S', 's':
				if sel != nil && sel.Engine != "" && sel.Status == mcvisor.Stopped {
					app.StartInstance(sel.Name)
					return true
				}
			case 'T', 't':
				if sel != nil && sel.Status == mcvisor.Running {
					app.StopInstance(sel.Name)
					return true
				}
			case 'K', 'k':
				if sel != nil && sel.Status != mcvisor.Stopped {
					app.KillInstance(sel.Name)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	var ch rune
	var style tcell.Style

	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ch, StyleNormal, nil, 1
	}

	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	} else {
		ch = ' '
	}
	style = m.styles[y]
	if m.items[y] == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	y := len(m.lines)
	x := 0
	for _, l := range m.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, y
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == nil {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury]
	} else {
		m.selected = nil
	}
}

// update refreshes content from the app, from Draw.
func (m *MainPanel) update() {
	items, err := m.App().GetItems()
	m.items = items

	// preserve selected item
	if sel := m.selected; sel != nil {
		m.selected = nil
		for y, item := range m.items {
			if item.Name == sel.Name {
				m.selected = item
				m.cury = y
			}
		}
	}
	if err != nil {
		m.SetError()
		m.SetStatus(fmt.Sprintf("Cannot load instances: %v", err))
		m.lines = []string{}
		m.styles = []tcell.Style{}
		m.items = nil
		m.selected = nil
		m.height = 0
		m.SetKeys([]string{"[Q] Quit", "[H] Help"})
		return
	}

	lines := make([]string, 0, len(m.items))
	styles := make([]tcell.Style, 0, len(m.items))

	m.nrunning = 0
	m.nbusy = 0
	m.nstopped = 0
	m.nplayers = 0

	m.height = 0
	m.width = 0

	for _, info := range items {
		line := fmt.Sprintf("%-20s %-10s %6d %7d %10s   %s",
			info.Name, util.Status(info), info.Port, info.Players,
			info.Uptime, info.Reason)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++

		lines = append(lines, line)
		var style tcell.Style
		switch {
		case info.Engine == "":
			style = StyleNormal
			m.nstopped++
		case info.Status == mcvisor.Running:
			style = StyleGood
			m.nrunning++
			m.nplayers += info.Players
		case info.Status == mcvisor.Busy:
			style = StyleWarn
			m.nbusy++
		default:
			style = StyleNormal
			m.nstopped++
		}
		styles = append(styles, style)
	}

	m.lines = lines
	m.styles = styles

	status := fmt.Sprintf(
		"%4d Instances %4d Running %4d Busy %4d Stopped %5d Players",
		len(m.items), m.nrunning, m.nbusy, m.nstopped, m.nplayers)
	if n := m.App().Notice(); n != "" {
		status += "   " + n
	}
	m.SetStatus(status)

	switch {
	case m.nbusy > 0:
		m.SetBusy()
	case m.nrunning > 0:
		m.SetGood()
	default:
		m.SetNormal()
	}

	words := []string{"[Q] Quit", "[H] Help", "[L] Log"}
	if item := m.selected; item != nil {
		words = append(words, "[I] Info")
		if m.App().Can(mcvisor.ActionConsole) {
			words = append(words, "[C] Console")
		}
		words = append(words, actionKeys(m.App(), item.Status, item.Engine)...)
	}
	m.SetKeys(words)
}
