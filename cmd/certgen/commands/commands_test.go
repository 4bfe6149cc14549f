package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"

	"github.com/zeptools/gw-certs/layout"
)

const honorTemplate = `{
	"certificate_type": "honor",
	"orientation": "landscape",
	"font_size": 12,
	"fields": [
		{"name": "student_name", "x": 148, "y": 90, "width": 30, "alignment": "C", "visible": true},
		{"name": "school_name", "x": 148, "y": 120, "width": 120, "alignment": "L", "visible": true},
		{"name": "issue_date", "x": 148, "y": 150, "visible": false}
	]
}`

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "honor.json")
	if err := os.WriteFile(path, []byte(honorTemplate), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLayoutCommand(t *testing.T) {
	tpl := writeTemplate(t)
	out, err := runRoot(t, "layout", "-t", tpl,
		"--set", "student_name=Alexandria Montgomery-Whitfield",
		"--set", "school_name=Lincoln High")
	if err != nil {
		t.Fatalf("layout: %v\n%s", err, out)
	}
	var plan layout.Plan
	if err = json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("output is not a plan: %v\n%s", err, out)
	}
	var texts []string
	for _, in := range plan.Instructions {
		texts = append(texts, in.Text)
	}
	if got := strings.Join(texts, "|"); got != "Alexandria|Montgomery-Whitfield|Lincoln High" {
		t.Errorf("lines = %q", got)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0] != "issue_date" {
		t.Errorf("skipped = %v", plan.Skipped)
	}
}

func TestLayoutCommandErrors(t *testing.T) {
	tpl := writeTemplate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unbound field", []string{"layout", "-t", tpl, "--set", "teacher_name=Bo"}, "teacher_name"},
		{"bad pair", []string{"layout", "-t", tpl, "--set", "novalue"}, "name=value"},
		{"missing template", []string{"layout", "-t", filepath.Join(t.TempDir(), "nope.json")}, "nope.json"},
		{"no template flag", []string{"layout"}, "template"},
	}
	for _, tt := range tests {
		_, err := runRoot(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestRenderCommandNeedsBackground(t *testing.T) {
	tpl := writeTemplate(t)
	_, err := runRoot(t, "render", "-t", tpl, "--set", "student_name=Ana", "-o", filepath.Join(t.TempDir(), "a.pdf"))
	if err == nil || !strings.Contains(err.Error(), "background") {
		t.Errorf("err = %v", err)
	}
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"a=1", " b =x=y", "c="})
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != "1" || got["b"] != "x=y" || got["c"] != "" || len(got) != 3 {
		t.Errorf("values = %v", got)
	}
}
