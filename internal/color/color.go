package color

import (
	"fmt"
	"math"
)

// Color is an immutable color value: a display name, a hex identity,
// and its RGB channel values.
type Color struct {
	Name     string `json:"name"`
	Hex      string `json:"hex"`
	Channels [3]int `json:"channels"`
}

func New(name string, r, g, b int) Color {
	return Color{
		Name:     name,
		Hex:      fmt.Sprintf("#%02X%02X%02X", r, g, b),
		Channels: [3]int{r, g, b},
	}
}

// Distance returns the Euclidean distance between two colors' channel
// values. Lower is better; 0 is an exact match.
func Distance(a, b Color) float64 {
	var sum float64
	for i := 0; i < 3; i++ {
		d := float64(a.Channels[i] - b.Channels[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mixer turns a set of selected inputs into a result color. A false
// return means the combination produced nothing.
type Mixer interface {
	Mix(inputs []Color) (Color, bool)
}

// TargetPool supplies candidate target colors for new sessions.
type TargetPool interface {
	RandomTarget() (Color, bool)
}

// FallbackTarget is substituted when the pool has nothing to offer, so
// matchmaking never blocks on target generation.
func FallbackTarget() Color {
	return New("Target Grey", 128, 128, 128)
}
