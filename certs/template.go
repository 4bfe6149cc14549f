package certs

import (
	"fmt"
	"strconv"
	"strings"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation accepts "portrait"/"landscape" and the single-letter P/L forms.
// Anything else is portrait.
func ParseOrientation(s string) Orientation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "landscape":
		return Landscape
	default:
		return Portrait
	}
}

type Alignment string

const (
	AlignLeft   Alignment = "L"
	AlignCenter Alignment = "C"
	AlignRight  Alignment = "R"
)

// ParseAlignment maps L/C/R and left/center/right. Unknown values are kept as-is;
// the layout engine centers them.
func ParseAlignment(s string) Alignment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "left":
		return AlignLeft
	case "r", "right":
		return AlignRight
	case "", "c", "center", "centre":
		return AlignCenter
	default:
		return Alignment(s)
	}
}

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ParseHexColor parses "#rrggbb", "rrggbb" or the short "#rgb" form
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// FieldSlot is one positioned text region. X and Y are in mm.
type FieldSlot struct {
	Name      string    `json:"name"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"` // wrap boundary
	Alignment Alignment `json:"alignment"`
	Visible   bool      `json:"visible"`
}

const (
	DefaultSlotWidth  = 100.0
	DefaultFontFamily = "Helvetica"
	DefaultFontStyle  = "B"
	DefaultFontSize   = 16.0
)

// Template is read-only once handed to the layout engine
type Template struct {
	ID              string      `json:"id,omitempty"`
	CertificateType string      `json:"certificate_type"`
	Orientation     Orientation `json:"orientation"`
	FontFamily      string      `json:"font_family"`
	FontStyle       string      `json:"font_style"`
	FontSize        float64     `json:"font_size"` // pt
	FontColor       RGB         `json:"font_color"`
	BackgroundImage string      `json:"background_image"`
	Fields          []FieldSlot `json:"fields"`
}

// Slot finds a slot by name
func (t *Template) Slot(name string) (FieldSlot, bool) {
	for _, s := range t.Fields {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSlot{}, false
}

// RequiredFields lists the names of visible slots in template order
func (t *Template) RequiredFields() []string {
	names := make([]string, 0, len(t.Fields))
	for _, s := range t.Fields {
		if s.Visible {
			names = append(names, s.Name)
		}
	}
	return names
}

// Normalize fills defaults. A set font size is kept as is.
func (t *Template) Normalize() {
	if t.Orientation != Landscape {
		t.Orientation = Portrait
	}
	if strings.TrimSpace(t.FontFamily) == "" {
		t.FontFamily = DefaultFontFamily
	}
	if t.FontStyle == "" {
		t.FontStyle = DefaultFontStyle
	}
	if t.FontSize <= 0 {
		t.FontSize = DefaultFontSize
	}
	for i := range t.Fields {
		if t.Fields[i].Width <= 0 {
			t.Fields[i].Width = DefaultSlotWidth
		}
		if t.Fields[i].Alignment == "" {
			t.Fields[i].Alignment = AlignCenter
		}
	}
}

// Validate reports structural problems as a MissingFieldPositions error
func (t *Template) Validate() error {
	if len(t.Fields) == 0 {
		return NewError(KindMissingFieldPositions, "", fmt.Errorf("template %q has no field slots", t.CertificateType))
	}
	seen := make(map[string]struct{}, len(t.Fields))
	for i, s := range t.Fields {
		if s.Name == "" {
			return NewError(KindMissingFieldPositions, "", fmt.Errorf("slot #%d has no name", i+1))
		}
		if _, dup := seen[s.Name]; dup {
			return NewError(KindMissingFieldPositions, "", fmt.Errorf("duplicate slot %q", s.Name))
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
