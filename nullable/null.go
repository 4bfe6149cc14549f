package nullable

import (
	"database/sql"
	"time"

	"github.com/go-json-experiment/json"
)

// Null scans a nullable column and encodes NULL as JSON null.
// Embedding sql.Null gives it sql.Scanner and driver.Valuer.
type Null[T any] struct {
	sql.Null[T]
}

type (
	String = Null[string]
	Time   = Null[time.Time] // RFC 3339 in JSON
)

func (n *Null[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.V)
}

func (n *Null[T]) UnmarshalJSON(data []byte) error {
	var zero T
	if string(data) == "null" {
		n.V, n.Valid = zero, false
		return nil
	}
	if err := json.Unmarshal(data, &n.V); err != nil {
		n.V, n.Valid = zero, false
		return err
	}
	n.Valid = true
	return nil
}

// ForceValue is the zero value for NULL
func (n *Null[T]) ForceValue() T {
	if !n.Valid {
		var zero T
		return zero
	}
	return n.V
}

func (n *Null[T]) IsNil() bool {
	return !n.Valid
}
