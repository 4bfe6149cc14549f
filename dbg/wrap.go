package dbg

// Packed wraps a response payload with server-side details for debug builds of a client
type Packed[T any] struct {
	Data      T   `json:"data"`
	DebugData any `json:"debug_data,omitempty"`
}

func Pack[T any](data T) *Packed[T] {
	return &Packed[T]{
		Data: data,
	}
}

// With attaches debug data and returns p for chaining
func (p *Packed[T]) With(debugData any) *Packed[T] {
	p.DebugData = debugData
	return p
}
