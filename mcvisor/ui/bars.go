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
	"strings"
	"sync"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/mcvisor"
)

var (
	barNormal = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barAccent = tcell.StyleDefault.
			Foreground(tcell.ColorNavy).
			Background(tcell.ColorSilver).
			Bold(true)

	StatusBarStyleNormal = barNormal
	StatusBarStyleGood   = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorGreen).
				Bold(true)
	StatusBarStyleBusy = tcell.StyleDefault.
				Foreground(tcell.ColorBlack).
				Background(tcell.ColorYellow)
	StatusBarStyleError = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorMaroon).
				Bold(true)
)

// TitleBar shows the server address in the middle and the program name on
// the right.
type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SimpleStyledTextBar.SetStyle(barNormal)
		tb.RegisterCenterStyle('N', barNormal)
		tb.RegisterRightStyle('N', barNormal)
		tb.RegisterRightStyle('A', barAccent)
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// StatusBar is like a titlebar, but its color follows the state of what
// is on screen, e.g. red when a request failed.
type StatusBar struct {
	once   sync.Once
	status string
	views.SimpleStyledTextBar
}

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetNormal()
	})
}

func (sb *StatusBar) SetStyle(style tcell.Style) {
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.SimpleStyledTextBar.RegisterLeftStyle('N', style)
	sb.SimpleStyledTextBar.SetLeft(sb.status)
}

func (sb *StatusBar) SetGood()   { sb.SetStyle(StatusBarStyleGood) }
func (sb *StatusBar) SetNormal() { sb.SetStyle(StatusBarStyleNormal) }
func (sb *StatusBar) SetBusy()   { sb.SetStyle(StatusBarStyleBusy) }
func (sb *StatusBar) SetError()  { sb.SetStyle(StatusBarStyleError) }

// SetFor picks the style matching an instance status.
func (sb *StatusBar) SetFor(s mcvisor.Status) {
	switch s {
	case mcvisor.Running:
		sb.SetGood()
	case mcvisor.Busy:
		sb.SetBusy()
	default:
		sb.SetNormal()
	}
}

func (sb *StatusBar) SetText(status string) {
	sb.status = strings.Replace(status, "%", "%%", -1)
	sb.SetLeft(sb.status)
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}

// KeyBar lists the keys that are active.  Words of the form "[K] Label"
// have the bracketed key highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barNormal)
		k.RegisterLeftStyle('N', barNormal)
		k.RegisterLeftStyle('A', barAccent)
	})
}

func (k *KeyBar) SetKeys(words []string) {
	var b strings.Builder
	for i, w := range words {
		if i != 0 {
			b.WriteByte(' ')
		}
		w = strings.Replace(w, "%", "%%", -1)
		w = strings.Replace(w, "[", "[%A", 1)
		w = strings.Replace(w, "]", "%N]", 1)
		b.WriteString(w)
	}
	k.SetLeft(b.String())
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}
