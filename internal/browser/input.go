package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/IshaanNene/partscout/internal/humanize"
)

// pointer drives the page mouse for a Humanizer.
type pointer struct {
	page *rod.Page
}

func (m pointer) MoveTo(pt humanize.Point) error {
	return m.page.Mouse.MoveTo(proto.Point{X: pt.X, Y: pt.Y})
}

func (m pointer) Down() error {
	return m.page.Mouse.Down(proto.InputMouseButtonLeft, 1)
}

func (m pointer) Up() error {
	return m.page.Mouse.Up(proto.InputMouseButtonLeft, 1)
}

func (m pointer) Scroll(dy float64) error {
	return m.page.Mouse.Scroll(0, dy, 5)
}

// keyboard sends single characters. Printable ASCII goes through key events
// so keydown/keyup listeners fire; anything else is inserted as text.
type keyboard struct {
	page *rod.Page
}

func (k keyboard) TypeRune(r rune) error {
	if r >= 0x20 && r <= 0x7e {
		return k.page.Keyboard.Type(input.Key(r))
	}
	return k.page.InsertText(string(r))
}

// elementBox returns the element's bounding box in viewport coordinates.
func elementBox(el *rod.Element) (humanize.Box, error) {
	shape, err := el.Shape()
	if err != nil {
		return humanize.Box{}, err
	}
	b := shape.Box()
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return humanize.Box{}, fmt.Errorf("element has no layout box")
	}
	return humanize.Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}, nil
}
