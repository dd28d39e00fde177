// Package tui renders a live status screen for a running loop and maps
// keys to pause, resume, and quit.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"tapbot/internal/clicker"
)

// UI owns the terminal while a loop runs in another goroutine.
type UI struct {
	screen tcell.Screen
	loop   *clicker.Loop
	device string
	mode   string
}

func New(loop *clicker.Loop, device, mode string) (*UI, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	return &UI{screen: screen, loop: loop, device: device, mode: mode}, nil
}

// Run blocks until the user quits or ctx ends. Quit keys call cancel so
// the loop stops with the UI.
func (u *UI) Run(ctx context.Context, cancel context.CancelFunc) {
	defer u.screen.Fini()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	u.draw()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !u.handleInput(ev, cancel) {
				return
			}
		case <-ticker.C:
			u.draw()
		}
	}
}

func (u *UI) handleInput(ev tcell.Event, cancel context.CancelFunc) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch {
		case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
			cancel()
			return false
		case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
			cancel()
			return false
		case ev.Key() == tcell.KeyRune && (ev.Rune() == 'p' || ev.Rune() == ' '):
			u.loop.Control().Toggle()
			u.draw()
		}
	case *tcell.EventResize:
		u.screen.Sync()
		u.draw()
	}
	return true
}

func (u *UI) draw() {
	snap := u.loop.Snapshot()
	state := u.loop.Control().State()
	u.screen.Clear()

	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	label := tcell.StyleDefault.Foreground(tcell.ColorGray)
	value := tcell.StyleDefault

	u.text(1, 0, title, "tapbot")
	u.text(9, 0, label, fmt.Sprintf("device=%s mode=%s", u.device, u.mode))

	stateStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	switch state {
	case clicker.StatePaused:
		stateStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case clicker.StateKilled:
		stateStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	}
	u.text(1, 2, label, "state")
	u.text(13, 2, stateStyle, state.String())

	uptime := "-"
	if !snap.StartedAt.IsZero() {
		uptime = time.Since(snap.StartedAt).Truncate(time.Second).String()
	}
	rows := []struct {
		name string
		val  string
	}{
		{"uptime", uptime},
		{"iterations", fmt.Sprintf("%d", snap.Iterations)},
		{"clicks", fmt.Sprintf("%d", snap.Clicks)},
		{"scans", fmt.Sprintf("%d (misses %d)", snap.Scans, snap.Misses)},
		{"errors", fmt.Sprintf("capture %d  match %d  tap %d",
			snap.CaptureErrors, snap.MatchErrors, snap.TapErrors)},
	}
	y := 3
	for _, r := range rows {
		u.text(1, y, label, r.name)
		u.text(13, y, value, r.val)
		y++
	}

	if snap.HasTarget {
		u.text(1, y, label, "target")
		u.text(13, y, value, fmt.Sprintf("(%d,%d) score %.3f",
			snap.Target.X, snap.Target.Y, snap.LastScore))
		y++
	}
	if snap.LastError != "" {
		u.text(1, y, label, "last error")
		u.text(13, y, tcell.StyleDefault.Foreground(tcell.ColorRed), snap.LastError)
		y++
	}

	u.text(1, y+1, label, "[p] pause/resume  [q]/[esc] quit")
	u.screen.Show()
}

func (u *UI) text(x, y int, style tcell.Style, s string) {
	col := x
	for _, r := range s {
		u.screen.SetContent(col, y, r, nil, style)
		col++
	}
}
