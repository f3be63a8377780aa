package fetch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pspoerri/tileview/internal/coord"
	"github.com/pspoerri/tileview/internal/tile"
)

// ErrInvalidTemplate is returned by ParseTemplate.
var ErrInvalidTemplate = errors.New("invalid tile url template")

// Template expands tile keys into URLs. Supported placeholders:
//
//	{z} {x} {y}  zoom and XYZ tile index
//	{-y}         TMS row, counted from the south
//	{q}          Bing-style quadkey
//	{s}          one of the configured subdomains
type Template struct {
	raw        string
	subdomains []string
}

// ParseTemplate validates raw. It must address a tile either through {q} or
// through {z}, {x} and one of {y} / {-y}.
func ParseTemplate(raw string, subdomains []string) (*Template, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	hasQ := strings.Contains(raw, "{q}")
	hasXYZ := strings.Contains(raw, "{z}") && strings.Contains(raw, "{x}") &&
		(strings.Contains(raw, "{y}") || strings.Contains(raw, "{-y}"))
	if !hasQ && !hasXYZ {
		return nil, fmt.Errorf("%w: %q needs {z}, {x} and {y} or {-y}, or {q}", ErrInvalidTemplate, raw)
	}
	if strings.Contains(raw, "{s}") && len(subdomains) == 0 {
		return nil, fmt.Errorf("%w: %q uses {s} but no subdomains are configured", ErrInvalidTemplate, raw)
	}
	return &Template{raw: raw, subdomains: subdomains}, nil
}

// String returns the unexpanded template.
func (t *Template) String() string { return t.raw }

// Expand returns the URL of key. The same key always yields the same URL,
// including the subdomain choice.
func (t *Template) Expand(key tile.Key) string {
	n := coord.TilesPerAxis(key.Zoom)
	pairs := []string{
		"{z}", strconv.Itoa(key.Zoom),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
		"{-y}", strconv.Itoa(n - 1 - key.Y),
	}
	if strings.Contains(t.raw, "{q}") {
		pairs = append(pairs, "{q}", Quadkey(key.X, key.Y, key.Zoom))
	}
	if len(t.subdomains) > 0 {
		pairs = append(pairs, "{s}", t.subdomains[(key.X+key.Y)%len(t.subdomains)])
	}
	return strings.NewReplacer(pairs...).Replace(t.raw)
}

// Quadkey returns the Bing Maps quadkey of XYZ tile x/y. Zoom 0 yields "".
func Quadkey(x, y, zoom int) string {
	var b strings.Builder
	b.Grow(zoom)
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}
