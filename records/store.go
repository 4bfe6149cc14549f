package records

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Post types the certificate plugin schema knows
const (
	TypeStudent  = "students"
	TypeTeacher  = "teachers"
	TypeSchool   = "schools"
	TypeTemplate = "certificates"
)

// Meta keys written back onto records
const (
	MetaCertificatePath = "certificate_file_path"
	MetaCertificateURL  = "certificate_file_url"
)

var (
	ErrNotFound      = errors.New("records: record not found")
	ErrInvalidFilter = errors.New("records: invalid filter")
)

// Record is a post with its meta. Meta keys are unique per record; the last write wins.
type Record struct {
	ID       string            `json:"id"`
	PostType string            `json:"post_type"`
	Title    string            `json:"title"`
	Date     time.Time         `json:"date"`
	Meta     map[string]string `json:"meta"`
}

// MetaValue returns the first non-blank value among keys
func (r *Record) MetaValue(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Meta[k]); v != "" {
			return v
		}
	}
	return ""
}

type Compare string

const (
	CompareEqual Compare = "="
	CompareLike  Compare = "LIKE" // value is matched as a substring
)

type Filter struct {
	Key     string  `json:"key"`
	Value   string  `json:"value"`
	Compare Compare `json:"compare,omitempty"` // default "="
}

// Sort orders by "id", "title", "date" or any meta key
type Sort struct {
	Key  string `json:"key,omitempty"`
	Desc bool   `json:"desc,omitempty"`
}

// Store is the record collaborator. Implementations must be safe for concurrent use.
type Store interface {
	// Find returns IDs of postType records matching every filter
	Find(ctx context.Context, postType string, filters []Filter, sort Sort) ([]string, error)
	Get(ctx context.Context, id string) (*Record, error)
	SetMeta(ctx context.Context, id string, key string, value string) error
}

func (f Filter) validate() error {
	if strings.TrimSpace(f.Key) == "" {
		return ErrInvalidFilter
	}
	switch f.Compare {
	case "", CompareEqual, CompareLike:
		return nil
	default:
		return ErrInvalidFilter
	}
}

func (f Filter) match(r *Record) bool {
	v, ok := r.Meta[f.Key]
	if !ok {
		return false
	}
	if f.Compare == CompareLike {
		return strings.Contains(strings.ToLower(v), strings.ToLower(f.Value))
	}
	return v == f.Value
}
