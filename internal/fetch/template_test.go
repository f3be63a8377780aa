package fetch

import (
	"errors"
	"testing"

	"github.com/pspoerri/tileview/internal/tile"
)

func TestTemplateExpand(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		subdomains []string
		key        tile.Key
		want       string
	}{
		{"osm", "https://tile.openstreetmap.org/{z}/{x}/{y}.png", nil,
			tile.Key{X: 268, Y: 179, Zoom: 9}, "https://tile.openstreetmap.org/9/268/179.png"},
		{"tms flip", "https://tms.example/{z}/{x}/{-y}.png", nil,
			tile.Key{X: 2, Y: 1, Zoom: 3}, "https://tms.example/3/2/6.png"},
		{"tms flip zoom 0", "https://tms.example/{z}/{x}/{-y}.png", nil,
			tile.Key{}, "https://tms.example/0/0/0.png"},
		{"quadkey", "https://t.example/tiles/{q}.jpeg", nil,
			tile.Key{X: 3, Y: 5, Zoom: 3}, "https://t.example/tiles/213.jpeg"},
		{"subdomain", "https://{s}.tile.example/{z}/{x}/{y}.png", []string{"a", "b", "c"},
			tile.Key{X: 1, Y: 1, Zoom: 2}, "https://c.tile.example/2/1/1.png"},
		{"subdomain wraps", "https://{s}.tile.example/{z}/{x}/{y}.png", []string{"a", "b", "c"},
			tile.Key{X: 2, Y: 1, Zoom: 2}, "https://a.tile.example/2/2/1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseTemplate(tt.raw, tt.subdomains)
			if err != nil {
				t.Fatalf("ParseTemplate: %v", err)
			}
			if got := tmpl.Expand(tt.key); got != tt.want {
				t.Errorf("Expand(%v) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		subdomains []string
	}{
		{"empty", "", nil},
		{"missing x", "https://t.example/{z}/{y}.png", nil},
		{"missing z", "https://t.example/{x}/{y}.png", nil},
		{"missing y", "https://t.example/{z}/{x}.png", nil},
		{"subdomain without list", "https://{s}.t.example/{z}/{x}/{y}.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.raw, tt.subdomains)
			if !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("ParseTemplate(%q) error = %v, want ErrInvalidTemplate", tt.raw, err)
			}
		})
	}
}

func TestQuadkey(t *testing.T) {
	tests := []struct {
		x, y, z int
		want    string
	}{
		{0, 0, 0, ""},
		{0, 0, 1, "0"},
		{1, 0, 1, "1"},
		{0, 1, 1, "2"},
		{1, 1, 1, "3"},
		{3, 5, 3, "213"},
		{35210, 21493, 16, "1202102332221212"},
	}
	for _, tt := range tests {
		if got := Quadkey(tt.x, tt.y, tt.z); got != tt.want {
			t.Errorf("Quadkey(%d, %d, %d) = %q, want %q", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
}
