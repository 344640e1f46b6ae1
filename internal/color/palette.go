package color

import (
	"fmt"
	"math/rand"
	"strings"
)

// Palette is a fixed pool of mixable colors. It backs both the demo
// mixer and target selection; the real game feeds its discovered-color
// set in through the same interfaces.
type Palette struct {
	colors []Color
}

func DefaultPalette() *Palette {
	return &Palette{colors: []Color{
		New("Red", 255, 0, 0),
		New("Blue", 0, 0, 255),
		New("Yellow", 255, 255, 0),
		New("Vivid Orange", 255, 165, 0),
		New("Vivid Teal", 0, 128, 128),
		New("Vivid Magenta", 255, 0, 255),
		New("Forest Green", 34, 139, 34),
		New("Royal Purple", 120, 81, 169),
	}}
}

// RandomTarget picks any pool color that is itself a mix, never a
// primary, so the target is always reachable by mixing.
func (p *Palette) RandomTarget() (Color, bool) {
	candidates := make([]Color, 0, len(p.colors))
	for _, c := range p.colors {
		switch c.Name {
		case "Red", "Blue", "Yellow":
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return Color{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// ByName looks up a pool color case-insensitively.
func (p *Palette) ByName(name string) (Color, error) {
	for _, c := range p.colors {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Color{}, fmt.Errorf("unknown color %q", name)
}

// Mix averages the channel values of the inputs. This stands in for
// the game's full mixing heuristic, which lives outside this core.
func (p *Palette) Mix(inputs []Color) (Color, bool) {
	if len(inputs) < 2 {
		return Color{}, false
	}
	var r, g, b int
	for _, c := range inputs {
		r += c.Channels[0]
		g += c.Channels[1]
		b += c.Channels[2]
	}
	n := len(inputs)
	mixed := New("Mixed Hue", r/n, g/n, b/n)
	for _, c := range p.colors {
		if c.Hex == mixed.Hex {
			return c, true
		}
	}
	return mixed, true
}
