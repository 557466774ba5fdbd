package app

import (
	"fmt"
	"hash/fnv"
	"math"
)

const (
	colorSaturation = 0.7
	colorLightness  = 0.5
	colorAlpha      = 0.9
)

// Color derives a stable chart color from a site link, so a site keeps its color no matter
// how many other sites the user has or in which order they come.
func Color(link string) string {
	h := fnv.New32a()
	h.Write([]byte(link))

	hue := float64(h.Sum32() % 360)
	r, g, b := hslToRGB(hue, colorSaturation, colorLightness)

	return fmt.Sprintf("rgba(%d, %d, %d, %.1f)", r, g, b, colorAlpha)
}

func hslToRGB(hue, saturation, lightness float64) (int, int, int) {
	c := (1 - math.Abs(2*lightness-1)) * saturation
	x := c * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := lightness - c/2

	var r, g, b float64

	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return channel(r + m), channel(g + m), channel(b + m)
}

func channel(v float64) int {
	return int(math.Round(v * 255))
}
