package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/zeptools/gw-certs/certs"
)

// Approximate metrics in mm per pt of font size. Not glyph metrics.
const (
	charWidthDivisor = 5.0 // cw = font_size * 0.2
	lineHeightFactor = 0.5
	floorEpsilon     = 1e-9
)

// DrawInstruction is one text line in canvas units (mm), alignment already applied
type DrawInstruction struct {
	Slot string  `json:"slot"`
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type Plan struct {
	Instructions []DrawInstruction `json:"instructions"`
	Skipped      []string          `json:"skipped,omitempty"` // invisible or empty slots
}

func CharWidth(fontSize float64) float64 {
	return fontSize / charWidthDivisor
}

func LineHeight(fontSize float64) float64 {
	return fontSize * lineHeightFactor
}

// TextWidth of already normalized text
func TextWidth(text string, fontSize float64) float64 {
	return float64(CharCount(text)) * CharWidth(fontSize)
}

// CharsPerLine is floor(width/cw), never below 1
func CharsPerLine(width, fontSize float64) int {
	n := int(math.Floor(width/CharWidth(fontSize) + floorEpsilon))
	if n < 1 {
		return 1
	}
	return n
}

// AlignX returns the left edge for a line of textWidth in slot
func AlignX(slot certs.FieldSlot, textWidth float64) float64 {
	switch slot.Alignment {
	case certs.AlignLeft:
		return slot.X - slot.Width/2
	case certs.AlignRight:
		return slot.X + slot.Width/2 - textWidth
	default:
		return slot.X - textWidth/2
	}
}

// Layout computes the draw plan of values on t.
// Slots bind by name; a value whose name has no slot is rejected.
// The result depends only on its inputs.
func Layout(t certs.Template, values map[string]string) (Plan, error) {
	if err := checkBindings(t, values); err != nil {
		return Plan{}, err
	}
	var plan Plan
	for _, slot := range t.Fields {
		if !slot.Visible {
			plan.Skipped = append(plan.Skipped, slot.Name)
			continue
		}
		text := Normalize(values[slot.Name])
		if text == "" {
			plan.Skipped = append(plan.Skipped, slot.Name)
			continue
		}
		plan.Instructions = append(plan.Instructions, placeSlot(slot, text, t.FontSize)...)
	}
	return plan, nil
}

func placeSlot(slot certs.FieldSlot, text string, fontSize float64) []DrawInstruction {
	width := TextWidth(text, fontSize)
	if width <= slot.Width {
		return []DrawInstruction{{Slot: slot.Name, Text: text, X: AlignX(slot, width), Y: slot.Y}}
	}
	lines := Wrap(text, CharsPerLine(slot.Width, fontSize))
	lh := LineHeight(fontSize)
	out := make([]DrawInstruction, 0, len(lines))
	for i, line := range lines {
		out = append(out, DrawInstruction{
			Slot: slot.Name,
			Text: line,
			X:    AlignX(slot, TextWidth(line, fontSize)),
			Y:    slot.Y + float64(i)*lh,
		})
	}
	return out
}

func checkBindings(t certs.Template, values map[string]string) error {
	var unbound []string
	for name := range values {
		if _, ok := t.Slot(name); !ok {
			unbound = append(unbound, name)
		}
	}
	if len(unbound) == 0 {
		return nil
	}
	sort.Strings(unbound)
	return certs.NewError(certs.KindMissingFieldPositions, "",
		fmt.Errorf("template %q has no slot for %s", t.CertificateType, strings.Join(unbound, ", ")))
}
