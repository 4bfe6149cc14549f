package records

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/zeptools/gw-certs/certs"
)

// slots beyond this index are ignored when decoding
const maxTemplateSlots = 32

// FindTemplate loads the template record of certType and decodes it for a record of postType
func FindTemplate(ctx context.Context, s Store, certType string, postType string) (certs.Template, error) {
	ids, err := s.Find(ctx, TypeTemplate, []Filter{{Key: MetaCertificateType, Value: certType}}, Sort{Key: "id"})
	if err != nil {
		return certs.Template{}, err
	}
	if len(ids) == 0 {
		return certs.Template{}, certs.NewError(certs.KindMissingTemplate, "", fmt.Errorf("no template for certificate type %q", certType))
	}
	rec, err := s.Get(ctx, ids[0])
	if err != nil {
		return certs.Template{}, err
	}
	return DecodeTemplate(rec, postType)
}

// DecodeTemplate reads a template record's meta.
// Slots come from field_{i}_* keys, i from 1. A template without field_{i}_name keys
// takes its slot names from DefaultFields(postType). Slots without numeric positions are dropped.
func DecodeTemplate(rec *Record, postType string) (certs.Template, error) {
	t := certs.Template{
		ID:              rec.ID,
		CertificateType: rec.MetaValue(MetaCertificateType),
		Orientation:     certs.ParseOrientation(rec.MetaValue("template_orientation", "orientation")),
		BackgroundImage: rec.MetaValue("template_url", "background_image"),
		FontStyle:       certs.DefaultFontStyle,
	}
	family, style := fontMeta(rec.MetaValue("font_family"), rec.MetaValue("font_style"))
	t.FontFamily = family
	if style != "" {
		t.FontStyle = style
	}
	if v := rec.MetaValue("font_size"); v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Printf("[WARN][RECORDS] template %s: font_size %q: %v", rec.ID, v, err)
		}
		t.FontSize = size
	}
	if v := rec.MetaValue("font_color"); v != "" {
		c, err := certs.ParseHexColor(v)
		if err != nil {
			log.Printf("[WARN][RECORDS] template %s: %v", rec.ID, err)
		}
		t.FontColor = c
	}

	defaults := DefaultFields(postType)
	named := false
	for i := 1; i <= maxTemplateSlots; i++ {
		if rec.MetaValue(slotKey(i, "name")) != "" {
			named = true
			break
		}
	}
	for i := 1; i <= maxTemplateSlots; i++ {
		name := rec.MetaValue(slotKey(i, "name"))
		if !named && i <= len(defaults) {
			name = defaults[i-1]
		}
		rawX, rawY := rec.MetaValue(slotKey(i, "position_x")), rec.MetaValue(slotKey(i, "position_y"))
		if name == "" && rawX == "" && rawY == "" {
			continue
		}
		x, errX := strconv.ParseFloat(rawX, 64)
		y, errY := strconv.ParseFloat(rawY, 64)
		if name == "" || errX != nil || errY != nil {
			log.Printf("[WARN][RECORDS] template %s: slot %d (%q) has no usable position x=%q y=%q", rec.ID, i, name, rawX, rawY)
			continue
		}
		slot := certs.FieldSlot{
			Name:      name,
			X:         x,
			Y:         y,
			Alignment: certs.ParseAlignment(rec.MetaValue(slotKey(i, "alignment"))),
			Visible:   truthy(rec.MetaValue(slotKey(i, "visible"))),
		}
		if w, err := strconv.ParseFloat(rec.MetaValue(slotKey(i, "width")), 64); err == nil {
			slot.Width = w
		}
		t.Fields = append(t.Fields, slot)
	}

	t.Normalize()
	if err := t.Validate(); err != nil {
		return certs.Template{}, err
	}
	return t, nil
}

func slotKey(i int, attr string) string {
	return "field_" + strconv.Itoa(i) + "_" + attr
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// fontMeta untangles the legacy use of font_style for the family name
func fontMeta(family, style string) (string, string) {
	if family != "" {
		return family, style
	}
	if isStyleFlags(style) {
		return "", strings.ToUpper(style)
	}
	return style, ""
}

func isStyleFlags(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range strings.ToUpper(s) {
		if c != 'B' && c != 'I' && c != 'U' {
			return false
		}
	}
	return true
}
