package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"
)

// InitGui initializes the gocui screen.
func (app *ChatApp) InitGui() error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return fmt.Errorf("failed to initialize gocui: %w", err)
	}
	app.Gui = g
	g.SetManagerFunc(app.layout)

	if err := g.SetKeybinding("input", gocui.KeyEnter, gocui.ModNone, app.sendMessageHandler); err != nil {
		return fmt.Errorf("failed to set input keybinding: %w", err)
	}
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, app.quit); err != nil {
		return fmt.Errorf("failed to set quit keybinding: %w", err)
	}
	return nil
}

// redrawMessages repaints the messages view from app.messages.
func (app *ChatApp) redrawMessages(g *gocui.Gui) error {
	v, err := g.View("messages")
	if err != nil {
		return err
	}
	v.Clear()
	app.messageLock.Lock()
	defer app.messageLock.Unlock()
	for _, msg := range app.messages {
		fmt.Fprintln(v, msg)
	}
	return nil
}

// sendMessageHandler fires on Enter in the input view.
func (app *ChatApp) sendMessageHandler(g *gocui.Gui, v *gocui.View) error {
	message := strings.TrimSpace(v.Buffer())
	v.Clear()
	v.SetCursor(0, 0)
	if message == "" {
		return nil
	}
	if err := app.SendLine(message); err != nil {
		app.appendMessage(fmt.Sprintf("-- send failed: %v --", err))
	}
	return nil
}

func (app *ChatApp) quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// layout lays out the message scrollback above a single-line input box,
// laid out as a scrollback pane above a single-line input box.
func (app *ChatApp) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView("messages", 0, 0, maxX-1, maxY-5); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Chat with relay at " + app.peer.String()
		v.Autoscroll = true
		v.Wrap = true
		app.redrawMessages(g)
	}

	if v, err := g.SetView("input", 0, maxY-4, maxX-1, maxY-2); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Type a message"
		v.Editable = true
		v.Wrap = true
		g.SetCurrentView("input")
	}

	return nil
}
