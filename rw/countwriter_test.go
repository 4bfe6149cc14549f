package rw

import (
	"bytes"
	"fmt"
	"testing"
)

func TestCountWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := NewCountWriter(&buf)
	for i := 0; i < 3; i++ {
		if _, err := fmt.Fprintf(cw, "chunk-%d;", i); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := cw.BytesWritten(), int64(buf.Len()); got != want || got != 24 {
		t.Errorf("BytesWritten = %d, buffer holds %d", got, want)
	}
}
