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
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/rest"
)

// LogPanel shows either the console backlog of an instance, or the
// supervisor's own event log when no instance is named.
type LogPanel struct {
	text *views.TextArea
	info *rest.InstanceInfo
	name string

	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}

	p.Panel.Init(app)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'I', 'i':
				if info != nil {
					app.ShowInfo(info.Name)
					return true
				}
			case 'S', 's':
				if info != nil && info.Engine != "" && info.Status == mcvisor.Stopped {
					app.StartInstance(info.Name)
					return true
				}
			case 'T', 't':
				if info != nil && info.Status == mcvisor.Running {
					app.StopInstance(info.Name)
					return true
				}
			case 'K', 'k':
				if info != nil && info.Status != mcvisor.Stopped {
					app.KillInstance(info.Name)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) SetName(name string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.name = name
	p.info = nil
}

func (p *LogPanel) update() {
	if p.name == "" {
		p.updateLog()
		return
	}
	p.updateConsole()
}

func (p *LogPanel) updateLog() {
	p.SetTitle("Supervisor Log")
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	info, e := p.App().GetLog()
	if info == nil {
		p.loading(e)
		return
	}
	p.SetStatus("")
	p.SetNormal()

	lines := make([]string, 0, len(info.Records))
	for _, r := range info.Records {
		lines = append(lines, fmt.Sprintf("%s %s",
			r.Time.Format(time.StampMilli), r.Text))
	}
	p.text.SetLines(lines)
}

func (p *LogPanel) updateConsole() {
	p.SetTitle("Console of " + p.name)
	words := []string{"[ESC] Main", "[H] Help"}

	item, _ := p.App().GetItem(p.name)
	p.info = item
	lines, e := p.App().GetConsole()
	if item == nil || lines == nil {
		p.loading(e)
		p.SetKeys(words)
		return
	}

	p.SetStatus(p.App().Notice())
	p.SetFor(item.Status)
	p.text.SetLines(lines)

	words = append(words, "[I] Info")
	words = append(words, actionKeys(p.App(), item.Status, item.Engine)...)
	p.SetKeys(words)
}

func (p *LogPanel) loading(e error) {
	if e != nil {
		p.SetStatus(fmt.Sprintf("No data: %v", e))
		p.SetError()
	} else {
		p.SetStatus("Loading ...")
		p.SetNormal()
	}
	p.text.SetLines([]string{""})
}
