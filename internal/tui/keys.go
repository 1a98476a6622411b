package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right             key.Binding
	PanUp, PanDown, PanLeft, PanRight key.Binding
	Click, Drag, Deselect             key.Binding
	ZoomIn, ZoomOut, Reset            key.Binding
	CenterSel, CenterOwned, Fit       key.Binding
	Paint, Erase, Brush               key.Binding
	Claim, Release                    key.Binding
	Help, Quit                        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:       key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		PanUp:       key.NewBinding(key.WithKeys("shift+up", "K"), key.WithHelp("K", "pan up")),
		PanDown:     key.NewBinding(key.WithKeys("shift+down", "J"), key.WithHelp("J", "pan down")),
		PanLeft:     key.NewBinding(key.WithKeys("shift+left", "H"), key.WithHelp("H", "pan left")),
		PanRight:    key.NewBinding(key.WithKeys("shift+right", "L"), key.WithHelp("L", "pan right")),
		Click:       key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "select/paint")),
		Drag:        key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "box select")),
		ZoomIn:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:     key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
		Reset:       key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "reset view")),
		CenterSel:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "center selection")),
		CenterOwned: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "center mine")),
		Fit:         key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "fit grid")),
		Paint:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "paint mode")),
		Erase:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "erase")),
		Brush:       key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "next color")),
		Claim:       key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "claim")),
		Release:     key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "clear mine")),
		Deselect:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "deselect")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Drag, k.Claim, k.Paint, k.ZoomIn, k.ZoomOut, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.PanUp, k.PanDown, k.PanLeft, k.PanRight},
		{k.Click, k.Drag, k.Deselect, k.Claim, k.Release},
		{k.ZoomIn, k.ZoomOut, k.Reset, k.CenterSel, k.CenterOwned, k.Fit},
		{k.Paint, k.Erase, k.Brush, k.Help, k.Quit},
	}
}
