package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// defaultColor is what a canvas paints with when given an unusable colour.
var defaultColor = color.NRGBA{A: 0xff}

// ParseColor parses a CSS colour: #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(),
// rgba(), "transparent" or a CSS colour keyword.
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return defaultColor, fmt.Errorf("empty colour")
	}
	if v == "transparent" {
		return color.NRGBA{}, nil
	}
	if strings.HasPrefix(v, "#") {
		return parseHex(v[1:])
	}
	if strings.HasPrefix(v, "rgb") {
		return parseFunctional(v)
	}
	if c, ok := colornames.Map[v]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return defaultColor, fmt.Errorf("unknown colour %q", s)
}

func parseHex(h string) (color.NRGBA, error) {
	switch len(h) {
	case 3, 4:
		var expanded strings.Builder
		for _, r := range h {
			expanded.WriteRune(r)
			expanded.WriteRune(r)
		}
		h = expanded.String()
	case 6, 8:
	default:
		return defaultColor, fmt.Errorf("invalid hex colour #%s", h)
	}
	if len(h) == 6 {
		h += "ff"
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return defaultColor, fmt.Errorf("invalid hex colour #%s", h)
	}
	return color.NRGBA{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}

func parseFunctional(v string) (color.NRGBA, error) {
	open := strings.IndexByte(v, '(')
	if open < 0 || !strings.HasSuffix(v, ")") {
		return defaultColor, fmt.Errorf("invalid colour %q", v)
	}
	name := v[:open]
	if name != "rgb" && name != "rgba" {
		return defaultColor, fmt.Errorf("unsupported colour function %q", name)
	}
	body := strings.NewReplacer("/", ",", " ", ",").Replace(v[open+1 : len(v)-1])
	var parts []string
	for _, p := range strings.Split(body, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 3 && len(parts) != 4 {
		return defaultColor, fmt.Errorf("invalid colour %q", v)
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		c, err := parseChannel(parts[i])
		if err != nil {
			return defaultColor, fmt.Errorf("invalid colour %q: %w", v, err)
		}
		ch[i] = c
	}
	alpha := uint8(0xff)
	if len(parts) == 4 {
		a, err := parseAlpha(parts[3])
		if err != nil {
			return defaultColor, fmt.Errorf("invalid colour %q: %w", v, err)
		}
		alpha = a
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, nil
}

func parseChannel(s string) (uint8, error) {
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clampByte(f * 255 / 100), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clampByte(f), nil
}

func parseAlpha(s string) (uint8, error) {
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clampByte(f * 255 / 100), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clampByte(f * 255), nil
}

func clampByte(f float64) uint8 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(math.Round(f))
}
