package rw

import "io"

// CountWriter counts bytes passed through to w.
// Not safe for concurrent use.
type CountWriter struct {
	w io.Writer
	n int64
}

func NewCountWriter(w io.Writer) *CountWriter {
	return &CountWriter{w: w}
}

// Write implements io.Writer. Short writes are counted as written.
func (cw *CountWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// BytesWritten is the running total across all Write calls
func (cw *CountWriter) BytesWritten() int64 {
	return cw.n
}
